package domain

import "time"

type Shipment struct {
	ID             int64      `db:"id" json:"id"`
	OrderID        int64      `db:"order_id" json:"order_id"`
	Carrier        string     `db:"carrier" json:"carrier"`
	TrackingNumber string     `db:"tracking_number" json:"tracking_number"`
	ShippedAt      time.Time  `db:"shipped_at" json:"shipped_at"`
	DeliveredAt    *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
}

// DeliveryResult reports the order transition caused by a delivery
// confirmation, for observability.
type DeliveryResult struct {
	OrderID        int64       `json:"order_id"`
	PreviousStatus OrderStatus `json:"previous_status"`
	CurrentStatus  OrderStatus `json:"current_status"`
}
