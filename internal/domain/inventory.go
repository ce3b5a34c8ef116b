package domain

import "time"

const (
	AdjustReasonOrder   = "ORDER"
	AdjustReasonRestock = "RESTOCK"
	AdjustReasonManual  = "MANUAL"
)

type VariantStock struct {
	VariantID int64     `db:"variant_id" json:"variant_id"`
	Quantity  int64     `db:"quantity" json:"quantity"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LedgerEntry proves a stock adjustment of a given magnitude was applied
// exactly once. Entries are immutable; the idempotency key is unique.
type LedgerEntry struct {
	ID                int64     `db:"id" json:"id"`
	IdempotencyKey    string    `db:"idempotency_key" json:"idempotency_key"`
	VariantID         int64     `db:"variant_id" json:"variant_id"`
	DeltaQuantity     int64     `db:"delta_quantity" json:"delta_quantity"`
	ResultingQuantity int64     `db:"resulting_quantity" json:"resulting_quantity"`
	Reason            string    `db:"reason" json:"reason"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
