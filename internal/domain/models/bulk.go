package models

import "time"

// AuditStatus is the final outcome recorded for a bulk update.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailed  AuditStatus = "failed"
)

// MaxBulkAttempts is the largest attempt budget a bulk request may ask for.
const MaxBulkAttempts = 10

// BulkChange is one requested catalog change.
type BulkChange struct {
	ItemID    string `json:"item_id" validate:"required"`
	Rate      *int64 `json:"rate,omitempty" validate:"omitempty,gte=0"`
	Available *bool  `json:"available,omitempty"`
}

// BulkUpdateRequest is the typed payload accepted by the bulk engine.
type BulkUpdateRequest struct {
	RequestID  string       `json:"request_id,omitempty" validate:"omitempty,max=128"`
	MaxRetries int          `json:"max_retries,omitempty" validate:"gte=0,lte=10"`
	Changes    []BulkChange `json:"changes" validate:"required,min=1,dive"`
}

// BulkUpdateResult always reports the final outcome of a bulk call.
type BulkUpdateResult struct {
	Success          bool     `json:"success"`
	UpdatedCount     int      `json:"updated_count"`
	Attempts         int      `json:"attempts"`
	Errors           []string `json:"errors,omitempty"`
	TouchedItemIDs   []string `json:"touched_item_ids,omitempty"`
	TouchedItemNames []string `json:"touched_item_names,omitempty"`
}

// AuditLogEntry is written once per bulk call and never mutated.
type AuditLogEntry struct {
	ID             string      `bson:"_id" json:"id"`
	Operator       string      `bson:"operator" json:"operator"`
	Timestamp      time.Time   `bson:"timestamp" json:"timestamp"`
	ItemIDs        []string    `bson:"item_ids" json:"item_ids"`
	RequestedCount int         `bson:"requested_count" json:"requested_count"`
	Attempts       int         `bson:"attempts" json:"attempts"`
	Status         AuditStatus `bson:"status" json:"status"`
	Error          string      `bson:"error,omitempty" json:"error,omitempty"`
}
