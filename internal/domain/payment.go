package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

const RefundStatusCompleted = "completed"

type Payment struct {
	ID                int64         `db:"id" json:"id"`
	OrderID           int64         `db:"order_id" json:"order_id"`
	Amount            int64         `db:"amount" json:"amount"`
	Method            string        `db:"method" json:"method"`
	Status            PaymentStatus `db:"status" json:"status"`
	ProviderPaymentID string        `db:"provider_payment_id" json:"provider_payment_id"`
	CompletedAt       *time.Time    `db:"completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentRefund holds one row per provider refund id; the unique refund id
// is the dedup key for redelivered refund webhooks.
type PaymentRefund struct {
	ID           int64     `db:"id" json:"id"`
	PaymentID    int64     `db:"payment_id" json:"payment_id"`
	RefundID     string    `db:"refund_id" json:"refund_id"`
	RefundStatus string    `db:"refund_status" json:"refund_status"`
	RefundAmount int64     `db:"refund_amount" json:"refund_amount"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type PaymentMethod struct {
	ID               int64     `db:"id" json:"id"`
	ProviderMethodID string    `db:"provider_method_id" json:"provider_method_id"`
	Status           string    `db:"status" json:"status"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}
