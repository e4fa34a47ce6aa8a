package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/freshledger/internal/config"
	"github.com/mamadbah2/freshledger/internal/domain/models"
)

// RowWriter appends rows to a spreadsheet range.
type RowWriter interface {
	WriteRow(ctx context.Context, sheetRange string, values []interface{}) error
}

// GoogleSheetRepository implements RowWriter using the official Google Sheets API.
type GoogleSheetRepository struct {
	service       *sheetsapi.Service
	spreadsheetID string
	logger        *zap.Logger
}

// NewGoogleSheetRepository builds a Google Sheets backed repository instance.
func NewGoogleSheetRepository(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*GoogleSheetRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &GoogleSheetRepository{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
	}, nil
}

// WriteRow appends the provided values to the supplied sheet range.
func (r *GoogleSheetRepository) WriteRow(ctx context.Context, sheetRange string, values []interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}

	payload := &sheetsapi.ValueRange{Values: [][]interface{}{values}}

	call := r.service.Spreadsheets.Values.Append(r.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append row into range %s: %w", sheetRange, err)
	}

	r.logger.Debug("row appended to sheet", zap.String("range", sheetRange))
	return nil
}

// AuditSheet mirrors bulk audit entries into a reporting tab.
type AuditSheet struct {
	rows       RowWriter
	sheetRange string
}

func NewAuditSheet(rows RowWriter, sheetRange string) *AuditSheet {
	return &AuditSheet{rows: rows, sheetRange: sheetRange}
}

// WriteAudit appends one row: id, timestamp, operator, status, attempts,
// requested count, item ids, error.
func (a *AuditSheet) WriteAudit(ctx context.Context, entry models.AuditLogEntry) error {
	return a.rows.WriteRow(ctx, a.sheetRange, AuditRow(entry))
}

// AuditRow flattens an audit entry into sheet cells.
func AuditRow(entry models.AuditLogEntry) []interface{} {
	return []interface{}{
		entry.ID,
		entry.Timestamp.UTC().Format(time.RFC3339),
		entry.Operator,
		string(entry.Status),
		entry.Attempts,
		entry.RequestedCount,
		strings.Join(entry.ItemIDs, ","),
		entry.Error,
	}
}
