package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	DefaultMinQuantity = 0.1
	DefaultMaxQuantity = 1000
)

// Limits bounds the quantities accepted for a single line.
type Limits struct {
	Min float64
	Max float64
}

// DefaultLimits returns the storefront defaults.
func DefaultLimits() Limits {
	return Limits{Min: DefaultMinQuantity, Max: DefaultMaxQuantity}
}

// Result is the outcome of normalizing a requested quantity.
type Result struct {
	Valid      bool    `json:"valid"`
	Normalized float64 `json:"normalized"`
	Message    string  `json:"message,omitempty"`
}

// Normalizer validates and clamps quantities. It holds no mutable state.
type Normalizer struct {
	limits Limits
}

// NewNormalizer builds a Normalizer, falling back to defaults for unusable limits.
func NewNormalizer(limits Limits) *Normalizer {
	if limits.Min <= 0 || math.IsNaN(limits.Min) {
		limits.Min = DefaultMinQuantity
	}
	if limits.Max < limits.Min || math.IsNaN(limits.Max) {
		limits.Max = math.Max(DefaultMaxQuantity, limits.Min)
	}
	return &Normalizer{limits: limits}
}

// Limits returns the configured bounds.
func (n *Normalizer) Limits() Limits {
	return n.limits
}

// Quantity rounds q to one decimal place and clamps it into range. When strict
// is set a quantity below the minimum is rejected instead of raised, which is
// what blocking actions such as adding to a cart need.
func (n *Normalizer) Quantity(q float64, strict bool) Result {
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return Result{Valid: false, Message: "quantity must be a finite number"}
	}

	rounded := Round(q, 1)

	if rounded < n.limits.Min {
		if strict {
			return Result{
				Valid:      false,
				Normalized: n.limits.Min,
				Message:    fmt.Sprintf("minimum quantity is %s", formatQty(n.limits.Min)),
			}
		}
		return Result{
			Valid:      true,
			Normalized: n.limits.Min,
			Message:    fmt.Sprintf("quantity raised to minimum %s", formatQty(n.limits.Min)),
		}
	}

	if rounded > n.limits.Max {
		return Result{
			Valid:      true,
			Normalized: n.limits.Max,
			Message:    fmt.Sprintf("quantity capped at maximum %s", formatQty(n.limits.Max)),
		}
	}

	return Result{Valid: true, Normalized: rounded}
}

// LineTotal returns round(unitPrice * quantity, 2), rounding half away from zero.
func LineTotal(unitPrice, quantity float64) decimal.Decimal {
	return decimal.NewFromFloat(unitPrice).Mul(decimal.NewFromFloat(quantity)).Round(2)
}

// Round rounds v to the given number of decimal places, half away from zero,
// without the drift of float multiplication.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func formatQty(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}
