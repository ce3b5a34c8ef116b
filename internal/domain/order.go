package domain

import (
	"fmt"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// orderTransitions is the only source of truth for legal status edges.
// delivered, cancelled and refunded are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped: {OrderStatusDelivered},
}

func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == target {
			return true
		}
	}

	return false
}

// AllowedPredecessors returns every status an order may be in for the
// target status to be a legal next step. Repositories use it as the
// guard set in conditional UPDATEs.
func AllowedPredecessors(target OrderStatus) []OrderStatus {
	var result []OrderStatus
	for from, nexts := range orderTransitions {
		for _, next := range nexts {
			if next == target {
				result = append(result, from)
			}
		}
	}

	return result
}

func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))

	switch status {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return status, nil
	}

	return "", fmt.Errorf("unknown order status %q: %w", raw, ErrValidation)
}

type Order struct {
	ID            int64       `db:"id" json:"id"`
	CustomerID    int64       `db:"customer_id" json:"customer_id"`
	CustomerEmail string      `db:"customer_email" json:"customer_email,omitempty"`
	Status        OrderStatus `db:"status" json:"status"`
	TotalAmount   int64       `db:"total_amount" json:"total_amount"`
	Currency      string      `db:"currency" json:"currency"`
	PaymentID     *int64      `db:"payment_id" json:"payment_id,omitempty"`
	ShipmentID    *int64      `db:"shipment_id" json:"shipment_id,omitempty"`
	Lines         []OrderLine `json:"lines"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// OrderLine is a frozen copy of cart pricing at checkout time. Lines are
// never re-priced after the order exists.
type OrderLine struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	VariantID int64 `db:"variant_id" json:"variant_id"`
	Quantity  int64 `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}

func (o *Order) CalculateTotal() {
	var total int64
	for _, line := range o.Lines {
		total += line.UnitPrice * line.Quantity
	}
	o.TotalAmount = total
}
