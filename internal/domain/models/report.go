package models

// DaySummary aggregates every ledger entry recorded for one date.
type DaySummary struct {
	Date           string   `json:"date"`
	Items          int      `json:"items"`
	TodayQuantity  float64  `json:"today_quantity"`
	TodaySale      float64  `json:"today_sale"`
	ReturnToMarket float64  `json:"return_to_market"`
	AdjustQuantity float64  `json:"adjust_quantity"`
	NetAmount      float64  `json:"net_amount"`
	NegativeItems  []string `json:"negative_items,omitempty"`
}
