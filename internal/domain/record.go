package domain

import "time"

// DeliveryStatus tracks the per-(notification, channel) attempt lineage.
//
// State machine:
//
//	pending → delivered | failed | cancelled
//	failed  → retrying  → delivered | failed   (loop until retries exhaust)
//
// Terminal statuses (delivered, failed with retries exhausted, cancelled)
// are never mutated again; the engine is the only writer.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusRetrying  DeliveryStatus = "retrying"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusCancelled DeliveryStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
// Failed is only conditionally terminal (retries may remain); the engine
// moves a record to retrying when it schedules another attempt.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// DeliveryRecord is the mutable state-machine object for one
// (notification, channel) delivery lineage. Mutated only by the engine.
type DeliveryRecord struct {
	ID             string            `json:"id"`
	NotificationID string            `json:"notification_id"`
	UserID         string            `json:"user_id"`
	Channel        Channel           `json:"channel"`
	Status         DeliveryStatus    `json:"status"`
	SentAt         *time.Time        `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty"`
	FailedAt       *time.Time        `json:"failed_at,omitempty"`
	NextRetryAt    *time.Time        `json:"next_retry_at,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	RetryCount     int               `json:"retry_count"`
	Attempts       []time.Time       `json:"attempts,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// StatusSummary is the per-notification view returned by Status queries:
// the latest known state of every channel lineage.
type StatusSummary struct {
	NotificationID string                     `json:"notification_id"`
	Delivered      int                        `json:"delivered"`
	Failed         int                        `json:"failed"`
	Pending        int                        `json:"pending"`
	PerChannel     map[Channel]DeliveryStatus `json:"per_channel"`
}
