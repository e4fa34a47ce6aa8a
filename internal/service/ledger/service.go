package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

const (
	defaultSaveAttempts = 3
	defaultConcurrency  = 4

	saveBackoffBase = 100 * time.Millisecond
	saveBackoffMax  = time.Second
)

// Repository is the backing store contract of the daily ledger.
type Repository interface {
	GetEntry(ctx context.Context, itemID, date string) (*models.LedgerEntry, error)
	ListByDate(ctx context.Context, date string) ([]models.LedgerEntry, error)
	// ListByItem returns the item's entries with date >= from, oldest first.
	// An empty from means no lower bound; limit <= 0 means no limit.
	ListByItem(ctx context.Context, itemID, from string, limit int) ([]models.LedgerEntry, error)
	ListBefore(ctx context.Context, cutoff string) ([]models.LedgerEntry, error)
	// UpsertEntry inserts or updates the entry keyed by (ItemID, Date),
	// preserving CreatedAt of an existing record.
	UpsertEntry(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error)
	DeleteEntry(ctx context.Context, id string) error
}

// Service implements the daily ledger store on top of a Repository.
type Service struct {
	repo         Repository
	logger       *zap.Logger
	now          func() time.Time
	location     *time.Location
	saveAttempts int
	concurrency  int
	sleep        func(ctx context.Context, d time.Duration) error
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the time source used for "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the timezone calendar days are computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithSaveAttempts bounds how many times a single entry save is tried.
func WithSaveAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.saveAttempts = n
		}
	}
}

// WithConcurrency bounds the number of outstanding entry saves in a batch.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithSleep replaces the wait between save attempts, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// NewService wires a ledger service.
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:         repo,
		logger:       logger,
		now:          time.Now,
		location:     time.UTC,
		saveAttempts: defaultSaveAttempts,
		concurrency:  defaultConcurrency,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current calendar day in the service timezone.
func (s *Service) Today() string {
	return s.now().In(s.location).Format(models.DateLayout)
}

// PreviousNet returns the net amount recorded for itemID on the day before
// date, or 0 when there is no such entry. It always reads the store.
func (s *Service) PreviousNet(ctx context.Context, itemID, date string) (float64, error) {
	day, err := parseDay(date)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(itemID) == "" {
		return 0, models.NewValidationError("item_id", "must be provided")
	}
	return s.previousNet(ctx, itemID, day)
}

func (s *Service) previousNet(ctx context.Context, itemID string, day time.Time) (float64, error) {
	prev := day.AddDate(0, 0, -1).Format(models.DateLayout)
	entry, err := s.repo.GetEntry(ctx, itemID, prev)
	if errors.Is(err, models.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load previous entry for %s on %s: %w", itemID, prev, err)
	}
	return entry.NetAmount, nil
}

// OpenSession prepares the entries an operator edits for date. Stored entries
// get their carried balance re-read; items without an entry get a blank draft.
func (s *Service) OpenSession(ctx context.Context, date string, itemIDs []string) ([]models.LedgerEntry, error) {
	day, err := parseDay(date)
	if err != nil {
		return nil, err
	}
	ids := uniqueIDs(itemIDs)
	if len(ids) == 0 {
		return nil, models.NewValidationError("items", "at least one item is required")
	}

	entries := make([]models.LedgerEntry, 0, len(ids))
	for _, id := range ids {
		carried, err := s.previousNet(ctx, id, day)
		if err != nil {
			return nil, err
		}

		entry := models.LedgerEntry{ItemID: id, Date: date}
		stored, err := s.repo.GetEntry(ctx, id, date)
		switch {
		case err == nil:
			entry = *stored
		case errors.Is(err, models.ErrNotFound):
		default:
			return nil, fmt.Errorf("load entry for %s on %s: %w", id, date, err)
		}

		entry.YesterdayNet = carried
		Recompute(&entry)
		entries = append(entries, entry)
	}

	return entries, nil
}

// SaveBatch upserts the entries of one date. Each entry is saved and retried
// on its own; failures are reported per item and never roll back the others.
func (s *Service) SaveBatch(ctx context.Context, date string, inputs []models.LedgerInput) (models.SaveReport, error) {
	day, err := parseDay(date)
	if err != nil {
		return models.SaveReport{}, err
	}
	if len(inputs) == 0 {
		return models.SaveReport{}, models.NewValidationError("entries", "at least one entry is required")
	}

	type outcome struct {
		entry   *models.LedgerEntry
		skipped bool
		failure *models.SaveFailure
	}

	outcomes := make([]outcome, len(inputs))
	seen := make(map[string]bool, len(inputs))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for i, in := range inputs {
		in.ItemID = strings.TrimSpace(in.ItemID)
		if seen[in.ItemID] && in.ItemID != "" {
			outcomes[i] = outcome{failure: &models.SaveFailure{ItemID: in.ItemID, Error: "duplicate item in batch"}}
			continue
		}
		seen[in.ItemID] = true

		wg.Add(1)
		go func(i int, in models.LedgerInput) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			entry, attempts, err := s.saveWithRetry(ctx, day, in)
			switch {
			case err != nil:
				s.logger.Warn("ledger entry not saved",
					zap.String("item_id", in.ItemID),
					zap.String("date", date),
					zap.Int("attempts", attempts),
					zap.Error(err))
				outcomes[i] = outcome{failure: &models.SaveFailure{ItemID: in.ItemID, Attempts: attempts, Error: err.Error()}}
			case entry == nil:
				outcomes[i] = outcome{skipped: true}
			default:
				if entry.Negative() {
					s.logger.Info("ledger entry has negative net amount",
						zap.String("item_id", entry.ItemID),
						zap.String("date", date),
						zap.Float64("net_amount", entry.NetAmount))
				}
				outcomes[i] = outcome{entry: entry}
			}
		}(i, in)
	}
	wg.Wait()

	report := models.SaveReport{Date: date, Saved: []models.LedgerEntry{}}
	for i, o := range outcomes {
		switch {
		case o.failure != nil:
			report.Failed = append(report.Failed, *o.failure)
		case o.skipped:
			report.Skipped = append(report.Skipped, inputs[i].ItemID)
		case o.entry != nil:
			report.Saved = append(report.Saved, *o.entry)
		}
	}

	s.logger.Info("ledger batch saved",
		zap.String("date", date),
		zap.Int("saved", len(report.Saved)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)))

	return report, nil
}

func (s *Service) saveWithRetry(ctx context.Context, day time.Time, in models.LedgerInput) (*models.LedgerEntry, int, error) {
	if verr := validateInput(in); verr != nil {
		return nil, 0, verr
	}

	var lastErr error
	for attempt := 1; attempt <= s.saveAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, err
		}

		entry, err := s.saveOne(ctx, day, in)
		if err == nil {
			return entry, attempt, nil
		}
		lastErr = err
		s.logger.Debug("ledger entry save attempt failed",
			zap.String("item_id", in.ItemID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < s.saveAttempts {
			if err := s.sleep(ctx, SaveBackoff(attempt)); err != nil {
				return nil, attempt, lastErr
			}
		}
	}
	return nil, s.saveAttempts, lastErr
}

// SaveBackoff is the wait after a failed save attempt:
// min(100ms * 2^(attempt-1), 1s).
func SaveBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := saveBackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= saveBackoffMax {
			return saveBackoffMax
		}
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) saveOne(ctx context.Context, day time.Time, in models.LedgerInput) (*models.LedgerEntry, error) {
	date := day.Format(models.DateLayout)

	if in.IsZero() {
		_, err := s.repo.GetEntry(ctx, in.ItemID, date)
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	carried, err := s.previousNet(ctx, in.ItemID, day)
	if err != nil {
		return nil, err
	}

	entry := models.LedgerEntry{
		ItemID:         in.ItemID,
		Date:           date,
		YesterdayNet:   carried,
		TodayQuantity:  in.TodayQuantity,
		TodaySale:      in.TodaySale,
		ReturnToMarket: in.ReturnToMarket,
		AdjustQuantity: in.AdjustQuantity,
		UpdatedAt:      s.now().UTC(),
	}
	Recompute(&entry)

	saved, err := s.repo.UpsertEntry(ctx, entry)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// ListByDate returns every entry stored for date.
func (s *Service) ListByDate(ctx context.Context, date string) ([]models.LedgerEntry, error) {
	if _, err := parseDay(date); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListByDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list entries for %s: %w", date, err)
	}
	return entries, nil
}

// Summary aggregates the entries of one date.
func (s *Service) Summary(ctx context.Context, date string) (models.DaySummary, error) {
	entries, err := s.ListByDate(ctx, date)
	if err != nil {
		return models.DaySummary{}, err
	}

	summary := models.DaySummary{Date: date, Items: len(entries)}
	for _, e := range entries {
		summary.TodayQuantity += e.TodayQuantity
		summary.TodaySale += e.TodaySale
		summary.ReturnToMarket += e.ReturnToMarket
		summary.AdjustQuantity += e.AdjustQuantity
		summary.NetAmount += e.NetAmount
		if e.Negative() {
			summary.NegativeItems = append(summary.NegativeItems, e.ItemID)
		}
	}
	return summary, nil
}

// ItemHistory returns up to limit entries of one item, oldest first.
func (s *Service) ItemHistory(ctx context.Context, itemID string, limit int) ([]models.LedgerEntry, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, models.NewValidationError("item_id", "must be provided")
	}
	entries, err := s.repo.ListByItem(ctx, itemID, "", limit)
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", itemID, err)
	}
	return entries, nil
}

// Delete removes one entry immediately.
func (s *Service) Delete(ctx context.Context, sess models.Session, itemID, date string) error {
	if _, err := parseDay(date); err != nil {
		return err
	}
	entry, err := s.repo.GetEntry(ctx, itemID, date)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteEntry(ctx, entry.ID); err != nil {
		return fmt.Errorf("delete entry %s: %w", entry.ID, err)
	}

	s.logger.Info("ledger entry deleted",
		zap.String("operator", sess.Name()),
		zap.String("item_id", itemID),
		zap.String("date", date))
	return nil
}

// DeleteDate removes every entry of date. Individual failures are logged and
// the remaining deletes continue.
func (s *Service) DeleteDate(ctx context.Context, sess models.Session, date string) (models.DeleteReport, error) {
	if !sess.IsAdmin() {
		return models.DeleteReport{}, models.ErrForbidden
	}
	if _, err := parseDay(date); err != nil {
		return models.DeleteReport{}, err
	}

	entries, err := s.repo.ListByDate(ctx, date)
	if err != nil {
		return models.DeleteReport{}, fmt.Errorf("list entries for %s: %w", date, err)
	}

	report := s.deleteAll(ctx, entries)
	s.logger.Info("ledger date deleted",
		zap.String("operator", sess.Name()),
		zap.String("date", date),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// PurgeOlderThan deletes every entry dated before today minus days.
func (s *Service) PurgeOlderThan(ctx context.Context, sess models.Session, days int) (models.DeleteReport, error) {
	if !sess.IsAdmin() {
		return models.DeleteReport{}, models.ErrForbidden
	}
	if days < 0 {
		return models.DeleteReport{}, models.NewValidationError("days", "must not be negative")
	}

	today, _ := parseDay(s.Today())
	cutoff := today.AddDate(0, 0, -days).Format(models.DateLayout)

	entries, err := s.repo.ListBefore(ctx, cutoff)
	if err != nil {
		return models.DeleteReport{}, fmt.Errorf("list entries before %s: %w", cutoff, err)
	}

	report := s.deleteAll(ctx, entries)
	report.Cutoff = cutoff
	s.logger.Info("ledger purged",
		zap.String("operator", sess.Name()),
		zap.String("cutoff", cutoff),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

func (s *Service) deleteAll(ctx context.Context, entries []models.LedgerEntry) models.DeleteReport {
	report := models.DeleteReport{Matched: len(entries)}
	for _, e := range entries {
		if err := s.repo.DeleteEntry(ctx, e.ID); err != nil {
			s.logger.Error("failed to delete ledger entry",
				zap.String("id", e.ID),
				zap.String("item_id", e.ItemID),
				zap.String("date", e.Date),
				zap.Error(err))
			report.Failed = append(report.Failed, e.ID)
			continue
		}
		report.Deleted++
	}
	return report
}

// RecomputeForward re-derives the carried balance of every entry of itemID
// dated from onwards, in date order, and saves the entries that changed.
// Editing a past day never does this on its own.
func (s *Service) RecomputeForward(ctx context.Context, sess models.Session, itemID, from string) ([]models.LedgerEntry, error) {
	if !sess.IsAdmin() {
		return nil, models.ErrForbidden
	}
	start, err := parseDay(from)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, models.NewValidationError("item_id", "must be provided")
	}

	entries, err := s.repo.ListByItem(ctx, itemID, from, 0)
	if err != nil {
		return nil, fmt.Errorf("list entries for %s from %s: %w", itemID, from, err)
	}

	carried, err := s.previousNet(ctx, itemID, start)
	if err != nil {
		return nil, err
	}
	prevDay := start.AddDate(0, 0, -1)

	var changed []models.LedgerEntry
	for _, e := range entries {
		day, err := parseDay(e.Date)
		if err != nil {
			return changed, err
		}
		if !day.AddDate(0, 0, -1).Equal(prevDay) {
			carried = 0
		}

		if e.YesterdayNet != carried {
			e.YesterdayNet = carried
			Recompute(&e)
			e.UpdatedAt = s.now().UTC()
			saved, err := s.repo.UpsertEntry(ctx, e)
			if err != nil {
				return changed, fmt.Errorf("save recomputed entry %s: %w", e.Date, err)
			}
			e = saved
			changed = append(changed, e)
		}

		carried = e.NetAmount
		prevDay = day
	}

	s.logger.Info("ledger balances recomputed",
		zap.String("operator", sess.Name()),
		zap.String("item_id", itemID),
		zap.String("from", from),
		zap.Int("changed", len(changed)))
	return changed, nil
}

func validateInput(in models.LedgerInput) error {
	verr := &models.ValidationError{}
	if in.ItemID == "" {
		verr.Add("item_id", "must be provided")
	}
	if in.TodayQuantity < 0 {
		verr.Add("today_quantity", "must not be negative")
	}
	if in.TodaySale < 0 {
		verr.Add("today_sale", "must not be negative")
	}
	if in.ReturnToMarket < 0 {
		verr.Add("return_to_market", "must not be negative")
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

func parseDay(date string) (time.Time, error) {
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return time.Time{}, models.NewValidationError("date", "must use YYYY-MM-DD")
	}
	return day, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
