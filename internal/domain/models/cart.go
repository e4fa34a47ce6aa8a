package models

import "time"

// CheckoutStage names the points where the cart is reconciled.
type CheckoutStage string

const (
	StageDeliveryDetails CheckoutStage = "delivery_details"
	StagePayment         CheckoutStage = "payment"
)

// Valid reports whether the stage is a known checkout stage.
func (s CheckoutStage) Valid() bool {
	return s == StageDeliveryDetails || s == StagePayment
}

// CartLine is one client-held cart row.
type CartLine struct {
	ItemID    string  `json:"item_id"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// CartSnapshot is the last trusted state of a cart.
type CartSnapshot struct {
	CartID  string     `json:"cart_id"`
	Lines   []CartLine `json:"lines"`
	TakenAt time.Time  `json:"taken_at"`
}

// Clone returns a deep copy so callers never share line slices.
func (s CartSnapshot) Clone() CartSnapshot {
	out := s
	out.Lines = append([]CartLine(nil), s.Lines...)
	return out
}

// DiscountConfig describes the store-wide percentage discount.
type DiscountConfig struct {
	Enabled       bool
	Percentage    float64
	MinimumAmount float64
}

// Reconciliation is the outcome of comparing a client total against the
// recomputed one.
type Reconciliation struct {
	CartID        string        `json:"cart_id"`
	Stage         CheckoutStage `json:"stage"`
	Subtotal      float64       `json:"subtotal"`
	Discount      float64       `json:"discount"`
	Total         float64       `json:"total"`
	AssertedTotal float64       `json:"asserted_total"`
	Difference    float64       `json:"difference"`
	Matched       bool          `json:"matched"`
	Restored      *CartSnapshot `json:"restored,omitempty"`
}
