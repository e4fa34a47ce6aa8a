package sheets

import (
	"context"
	"testing"
	"time"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

type captureRows struct {
	sheetRange string
	values     []interface{}
}

func (c *captureRows) WriteRow(_ context.Context, sheetRange string, values []interface{}) error {
	c.sheetRange = sheetRange
	c.values = values
	return nil
}

func TestAuditSheetWritesOneRow(t *testing.T) {
	rows := &captureRows{}
	sheet := NewAuditSheet(rows, "Audit!A:H")

	err := sheet.WriteAudit(context.Background(), models.AuditLogEntry{
		ID:             "a1",
		Operator:       "priya",
		Timestamp:      time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC),
		ItemIDs:        []string{"1", "2"},
		RequestedCount: 2,
		Attempts:       3,
		Status:         models.AuditFailed,
		Error:          "write conflict",
	})
	if err != nil {
		t.Fatalf("write audit: %v", err)
	}

	if rows.sheetRange != "Audit!A:H" || len(rows.values) != 8 {
		t.Fatalf("unexpected row %q %v", rows.sheetRange, rows.values)
	}
	if rows.values[1] != "2026-03-05T09:30:00Z" || rows.values[3] != "failed" || rows.values[6] != "1,2" {
		t.Errorf("unexpected cells %v", rows.values)
	}
}
