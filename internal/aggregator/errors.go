package aggregator

import (
	"errors"
	"fmt"
)

// FetchError reports that a critical snapshot field could not be read. The
// pair should be requeued and retried up to the configured attempt count.
type FetchError struct {
	Field string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Field, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err is a retryable snapshot failure.
func IsFetchError(err error) bool {
	var f *FetchError
	return errors.As(err, &f)
}
