package domain

import "sort"

// Cart is owned by the cart store; the core only reads it and deletes it
// after a successful checkout.
type Cart struct {
	ID            string     `json:"id"`
	CustomerID    int64      `json:"customer_id,omitempty"`
	CustomerEmail string     `json:"customer_email,omitempty"`
	Items         []CartItem `json:"items"`
}

type CartItem struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int64 `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

// SortedItems returns the cart lines in ascending variant order. Checkout
// adjusts stock in this order so concurrent checkouts over overlapping
// variants cannot deadlock on row locks.
func (c *Cart) SortedItems() []CartItem {
	items := make([]CartItem, len(c.Items))
	copy(items, c.Items)

	sort.Slice(items, func(i, j int) bool {
		return items[i].VariantID < items[j].VariantID
	})

	return items
}
