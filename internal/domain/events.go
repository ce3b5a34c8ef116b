package domain

import "time"

// PaymentReceiptEvent is published through the outbox when a payment is
// first observed completed. The outbox worker stamps event_id before
// producing; the notification consumer dedups on it.
type PaymentReceiptEvent struct {
	EventID       int64     `json:"event_id,omitempty"`
	OrderID       int64     `json:"order_id"`
	PaymentID     int64     `json:"payment_id"`
	CustomerEmail string    `json:"customer_email"`
	Amount        int64     `json:"amount"`
	PaidAt        time.Time `json:"paid_at"`
}
