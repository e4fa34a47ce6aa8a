package pricing

import (
	"math"
	"testing"
)

func TestQuantityRoundsToOneDecimal(t *testing.T) {
	n := NewNormalizer(DefaultLimits())

	res := n.Quantity(2.35, false)
	if !res.Valid {
		t.Fatalf("expected valid result, got %+v", res)
	}
	if res.Normalized != 2.4 {
		t.Errorf("expected 2.4, got %v", res.Normalized)
	}
	if res.Message != "" {
		t.Errorf("expected no message, got %q", res.Message)
	}
}

func TestQuantityBelowMinimum(t *testing.T) {
	n := NewNormalizer(DefaultLimits())

	strict := n.Quantity(0.04, true)
	if strict.Valid {
		t.Fatalf("expected strict quantity below minimum to be invalid")
	}
	if strict.Message != "minimum quantity is 0.1" {
		t.Errorf("unexpected message %q", strict.Message)
	}

	lenient := n.Quantity(0.04, false)
	if !lenient.Valid || lenient.Normalized != 0.1 {
		t.Errorf("expected clamp to 0.1, got %+v", lenient)
	}
}

func TestQuantityAboveMaximumIsClamped(t *testing.T) {
	n := NewNormalizer(Limits{Min: 0.5, Max: 20})

	res := n.Quantity(25, true)
	if !res.Valid {
		t.Fatalf("expected clamped quantity to stay valid")
	}
	if res.Normalized != 20 {
		t.Errorf("expected 20, got %v", res.Normalized)
	}
}

func TestQuantityRejectsNonFinite(t *testing.T) {
	n := NewNormalizer(DefaultLimits())

	for _, q := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if res := n.Quantity(q, false); res.Valid {
			t.Errorf("expected %v to be invalid", q)
		}
	}
}

func TestNewNormalizerFallsBackOnBadLimits(t *testing.T) {
	n := NewNormalizer(Limits{Min: -1, Max: -5})
	limits := n.Limits()
	if limits.Min != DefaultMinQuantity || limits.Max != DefaultMaxQuantity {
		t.Errorf("expected default limits, got %+v", limits)
	}
}

func TestLineTotalRoundsHalfUp(t *testing.T) {
	cases := []struct {
		price, qty float64
		want       string
	}{
		{price: 1.005, qty: 1, want: "1.01"},
		{price: 0.1, qty: 3, want: "0.30"},
		{price: 349.99, qty: 1.5, want: "524.99"},
		{price: 120, qty: 2.5, want: "300.00"},
	}

	for _, tc := range cases {
		got := LineTotal(tc.price, tc.qty).StringFixed(2)
		if got != tc.want {
			t.Errorf("LineTotal(%v, %v) = %s, want %s", tc.price, tc.qty, got, tc.want)
		}
	}
}
