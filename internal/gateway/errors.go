package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// TransientError marks a failure that is worth retrying against the same
// provider: timeouts, 5xx responses, and rate-limit (429) responses.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable within the current provider.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// ExhaustedError is returned when a call has failed against every configured
// provider. It is reported to the caller and never fatal to the process.
type ExhaustedError struct {
	Method string
	Errs   map[string]error // last error per provider name
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Errs))
	for provider, err := range e.Errs {
		parts = append(parts, fmt.Sprintf("%s: %v", provider, err))
	}
	return fmt.Sprintf("gateway exhausted for %s: [%s]", e.Method, strings.Join(parts, "; "))
}

// IsExhausted reports whether err means all providers failed.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}

// RPCError is a JSON-RPC 2.0 error response. RPC errors are not retried.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}
