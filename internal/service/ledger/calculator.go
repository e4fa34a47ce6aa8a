package ledger

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

// Values holds the derived columns of a ledger entry.
type Values struct {
	Total     float64
	NetAmount float64
}

// ComputeLedgerValues derives total and net amount from an entry's fields and
// the balance carried from the previous day. A negative net amount is returned
// as is.
func ComputeLedgerValues(yesterdayNet, todayQuantity, todaySale, returnToMarket, adjustQuantity float64) Values {
	total := yesterdayNet + todayQuantity
	return Values{
		Total:     total,
		NetAmount: total - todaySale - returnToMarket + adjustQuantity,
	}
}

// Recompute refreshes the derived columns of e in place.
func Recompute(e *models.LedgerEntry) {
	v := ComputeLedgerValues(e.YesterdayNet, e.TodayQuantity, e.TodaySale, e.ReturnToMarket, e.AdjustQuantity)
	e.Total = v.Total
	e.NetAmount = v.NetAmount
}

// CoerceNumber converts loosely typed form input into a number. Missing or
// non-numeric values become 0; ok is false whenever a value was coerced.
func CoerceNumber(v any) (value float64, ok bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case float64:
		return finite(n)
	case float32:
		return finite(float64(n))
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// InputFromMap builds a LedgerInput from a raw JSON object. It never fails;
// the names of fields that had to be coerced to 0 are returned instead.
func InputFromMap(raw map[string]any) (models.LedgerInput, []string) {
	var coerced []string
	field := func(key string) float64 {
		v, ok := CoerceNumber(raw[key])
		if !ok {
			coerced = append(coerced, key)
		}
		return v
	}

	in := models.LedgerInput{
		TodayQuantity:  field("today_quantity"),
		TodaySale:      field("today_sale"),
		ReturnToMarket: field("return_to_market"),
		AdjustQuantity: field("adjust_quantity"),
	}
	if id, ok := raw["item_id"].(string); ok {
		in.ItemID = strings.TrimSpace(id)
	}
	return in, coerced
}
