package domain

import "time"

// DeliveryStatus is the final outcome of one channel delivery.
type DeliveryStatus string

const (
	DeliveryDelivered        DeliveryStatus = "delivered"
	DeliveryFailed           DeliveryStatus = "failed"
	DeliverySkippedDuplicate DeliveryStatus = "skipped_duplicate"
)

// AlertRecord tracks one channel delivery attempt series for a qualifying
// pair. Created by the dispatcher, mutated only by its retry loop, retained
// for the dedup window.
type AlertRecord struct {
	RecordID      string
	PairID        string
	Channel       string
	Attempts      int
	Status        DeliveryStatus
	PayloadDigest string // sha256 hex of the serialized payload
	CompletedAt   time.Time
	LastError     string // empty unless Status is failed
}
