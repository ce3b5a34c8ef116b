package repository

import (
	"fmt"

	"github.com/sakashimaa/go-fulfillment/internal/domain"
)

var (
	ErrOrderNotFound    = fmt.Errorf("order: %w", domain.ErrNotFound)
	ErrShipmentNotFound = fmt.Errorf("shipment: %w", domain.ErrNotFound)
	ErrPaymentNotFound  = fmt.Errorf("payment: %w", domain.ErrNotFound)

	ErrInsufficientStock  = fmt.Errorf("insufficient stock: %w", domain.ErrStateConflict)
	ErrIllegalTransition  = fmt.Errorf("illegal order status transition: %w", domain.ErrStateConflict)
	ErrKeyVariantMismatch = fmt.Errorf("idempotency key reused for a different variant: %w", domain.ErrStateConflict)
	ErrKeyReused          = fmt.Errorf("idempotency key reused for a different request: %w", domain.ErrStateConflict)
)
