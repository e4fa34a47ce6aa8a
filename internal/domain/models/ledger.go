package models

import "time"

// DateLayout is the canonical calendar-day key used by the ledger.
const DateLayout = "2006-01-02"

// LedgerEntry captures one item's stock movement for one calendar day.
type LedgerEntry struct {
	ID             string    `bson:"_id" json:"id"`
	ItemID         string    `bson:"item_id" json:"item_id"`
	Date           string    `bson:"date" json:"date"`
	YesterdayNet   float64   `bson:"yesterday_net" json:"yesterday_net"`
	TodayQuantity  float64   `bson:"today_quantity" json:"today_quantity"`
	Total          float64   `bson:"total" json:"total"`
	TodaySale      float64   `bson:"today_sale" json:"today_sale"`
	ReturnToMarket float64   `bson:"return_to_market" json:"return_to_market"`
	AdjustQuantity float64   `bson:"adjust_quantity" json:"adjust_quantity"`
	NetAmount      float64   `bson:"net_amount" json:"net_amount"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// LedgerInput is what an operator submits for one item on one day. Derived
// values are never accepted from the caller.
type LedgerInput struct {
	ItemID         string  `json:"item_id"`
	TodayQuantity  float64 `json:"today_quantity"`
	TodaySale      float64 `json:"today_sale"`
	ReturnToMarket float64 `json:"return_to_market"`
	AdjustQuantity float64 `json:"adjust_quantity"`
}

// IsZero reports whether the input records nothing at all.
func (in LedgerInput) IsZero() bool {
	return in.TodayQuantity == 0 && in.TodaySale == 0 && in.ReturnToMarket == 0 && in.AdjustQuantity == 0
}

// Negative flags an oversell or a data-entry reversal.
func (e LedgerEntry) Negative() bool {
	return e.NetAmount < 0
}

// SaveFailure describes one ledger entry that could not be saved.
type SaveFailure struct {
	ItemID   string `json:"item_id"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// SaveReport is the per-item outcome of a ledger batch save.
type SaveReport struct {
	Date    string        `json:"date"`
	Saved   []LedgerEntry `json:"saved"`
	Skipped []string      `json:"skipped,omitempty"`
	Failed  []SaveFailure `json:"failed,omitempty"`
}

// DeleteReport is the outcome of a best-effort bulk delete.
type DeleteReport struct {
	Matched int      `json:"matched"`
	Deleted int      `json:"deleted"`
	Failed  []string `json:"failed,omitempty"`
	Cutoff  string   `json:"cutoff,omitempty"`
}
