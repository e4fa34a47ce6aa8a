package models

import "time"

// RatePoint records a unit price that was in effect from a given date.
type RatePoint struct {
	Date string `bson:"date" json:"date"`
	Rate int64  `bson:"rate" json:"rate"`
}

// CatalogItem is the slice of a catalog record the back office may mutate.
// Rate is expressed in currency minor units.
type CatalogItem struct {
	ID          string      `bson:"_id" json:"id"`
	Name        string      `bson:"name" json:"name"`
	Rate        int64       `bson:"rate" json:"rate"`
	Available   bool        `bson:"available" json:"available"`
	RateHistory []RatePoint `bson:"rate_history" json:"rate_history"`
	UpdatedAt   time.Time   `bson:"updated_at" json:"updated_at"`
}

// CatalogChange is a fully resolved mutation applied by the bulk engine.
type CatalogChange struct {
	ItemID    string
	Rate      *int64
	Available *bool
	Date      string
	At        time.Time
}

// Apply mutates item according to the change. The rate history is appended
// only when the rate actually moves.
func (c CatalogChange) Apply(item *CatalogItem) {
	if c.Rate != nil && *c.Rate != item.Rate {
		item.Rate = *c.Rate
		item.RateHistory = append(item.RateHistory, RatePoint{Date: c.Date, Rate: *c.Rate})
	}
	if c.Available != nil {
		item.Available = *c.Available
	}
	item.UpdatedAt = c.At
}
