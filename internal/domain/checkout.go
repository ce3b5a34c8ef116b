package domain

import "time"

// CheckoutAttempt ties a checkout idempotency key to the order it
// produced. OrderID is filled in once and never overwritten, so a retried
// checkout returns the same order instead of re-decrementing stock.
type CheckoutAttempt struct {
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	RequestHash    string    `db:"request_hash" json:"request_hash"`
	OrderID        *int64    `db:"order_id" json:"order_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
