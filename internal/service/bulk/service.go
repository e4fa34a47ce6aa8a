package bulk

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

// ErrDuplicateRequest is returned when a request id was already claimed.
var ErrDuplicateRequest = errors.New("duplicate bulk update request")

const (
	DefaultMaxRetries = 3
	baseBackoff       = time.Second
	maxBackoff        = 5 * time.Second
	requestClaimTTL   = 24 * time.Hour
)

// CatalogRepository resolves and atomically mutates catalog items.
type CatalogRepository interface {
	// GetItems returns every requested item or an error wrapping
	// models.ErrNotFound for the first missing one.
	GetItems(ctx context.Context, ids []string) (map[string]models.CatalogItem, error)
	// ApplyChanges writes all changes in one transaction, or none.
	ApplyChanges(ctx context.Context, changes []models.CatalogChange) ([]models.CatalogItem, error)
}

// AuditWriter records the final outcome of a bulk call.
type AuditWriter interface {
	WriteAudit(ctx context.Context, entry models.AuditLogEntry) error
}

// RequestClaimer de-duplicates client request ids. Claim returns false when
// key was already claimed; Release frees a key whose call failed.
type RequestClaimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Service is the atomic bulk update engine.
type Service struct {
	catalog    CatalogRepository
	audit      AuditWriter
	claims     RequestClaimer
	validate   *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	maxRetries int
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithMaxRetries sets the default attempt budget when a request carries none.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithRequestClaimer enables request id de-duplication.
func WithRequestClaimer(c RequestClaimer) Option {
	return func(s *Service) {
		s.claims = c
	}
}

// NewService wires the bulk engine.
func NewService(catalog CatalogRepository, audit AuditWriter, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		catalog:    catalog,
		audit:      audit,
		validate:   newValidator(),
		logger:     logger,
		now:        time.Now,
		sleep:      sleepContext,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backoff returns the wait before the attempt following attempt:
// min(1s * 2^(attempt-1), 5s).
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// BulkUpdate validates, resolves and atomically applies req. Validation errors
// are returned as *models.ValidationError and never retried; transient store
// failures retry the whole batch. Every call that passes validation writes exactly one
// audit entry.
func (s *Service) BulkUpdate(ctx context.Context, sess models.Session, req models.BulkUpdateRequest) (models.BulkUpdateResult, error) {
	if !sess.IsAdmin() {
		return models.BulkUpdateResult{}, models.ErrForbidden
	}

	if verr := s.validateRequest(req); verr != nil {
		s.logger.Warn("bulk update rejected", zap.String("operator", sess.Name()), zap.Error(verr))
		return failedResult(verr), verr
	}

	claimKey := ""
	if req.RequestID != "" && s.claims != nil {
		key := "bulk:" + req.RequestID
		ok, err := s.claims.Claim(ctx, key, requestClaimTTL)
		switch {
		case err != nil:
			s.logger.Warn("bulk request claim unavailable, continuing", zap.String("request_id", req.RequestID), zap.Error(err))
		case !ok:
			return failedResult(ErrDuplicateRequest), ErrDuplicateRequest
		default:
			claimKey = key
		}
	}

	ids := make([]string, 0, len(req.Changes))
	for _, c := range req.Changes {
		ids = append(ids, c.ItemID)
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.maxRetries
	}

	started := s.now().UTC()
	entry := models.AuditLogEntry{
		ID:             uuid.NewString(),
		Operator:       sess.Name(),
		ItemIDs:        ids,
		RequestedCount: len(req.Changes),
	}

	// The audit entry and the claim release must land even when the caller
	// has gone away.
	durable := context.WithoutCancel(ctx)

	items, err := s.catalog.GetItems(ctx, ids)
	if err != nil {
		err = fmt.Errorf("resolve items: %w", err)
		entry.Timestamp = started
		s.writeAudit(durable, entry, err)
		s.releaseClaim(durable, claimKey)
		s.logger.Warn("bulk update resolution failed", zap.String("operator", sess.Name()), zap.Error(err))
		return failedResult(err), err
	}

	changes := make([]models.CatalogChange, 0, len(req.Changes))
	day := started.Format(models.DateLayout)
	for _, c := range req.Changes {
		changes = append(changes, models.CatalogChange{
			ItemID:    c.ItemID,
			Rate:      c.Rate,
			Available: c.Available,
			Date:      day,
			At:        started,
		})
	}

	var (
		updated  []models.CatalogItem
		lastErr  error
		abortErr error
		attempts int
		errs     []string
	)
	for attempts = 1; attempts <= maxRetries; attempts++ {
		updated, lastErr = s.catalog.ApplyChanges(ctx, changes)
		if lastErr == nil {
			break
		}
		errs = append(errs, fmt.Sprintf("attempt %d: %v", attempts, lastErr))
		s.logger.Warn("bulk update attempt failed",
			zap.String("operator", sess.Name()),
			zap.Int("attempt", attempts),
			zap.Int("max_retries", maxRetries),
			zap.Error(lastErr))

		// Only transactional failures are worth another attempt.
		if !errors.Is(lastErr, models.ErrTransientStore) || attempts == maxRetries {
			break
		}
		if err := s.sleep(ctx, Backoff(attempts)); err != nil {
			abortErr = err
			errs = append(errs, fmt.Sprintf("aborted: %v", err))
			break
		}
	}
	entry.Attempts = attempts
	entry.Timestamp = s.now().UTC()

	if lastErr != nil {
		s.writeAudit(durable, entry, lastErr)
		s.releaseClaim(durable, claimKey)
		s.logger.Error("bulk update failed",
			zap.String("operator", sess.Name()),
			zap.Int("attempts", attempts),
			zap.Strings("item_ids", ids),
			zap.NamedError("aborted", abortErr),
			zap.Error(lastErr))

		err := fmt.Errorf("bulk update failed after %d attempts: %w", attempts, lastErr)
		if abortErr != nil {
			err = fmt.Errorf("bulk update aborted after %d attempts: %w (last error: %w)", attempts, abortErr, lastErr)
		}
		return models.BulkUpdateResult{Success: false, Attempts: attempts, Errors: errs}, err
	}

	s.writeAudit(durable, entry, nil)

	result := models.BulkUpdateResult{
		Success:      true,
		UpdatedCount: len(updated),
		Attempts:     attempts,
	}
	for _, item := range updated {
		result.TouchedItemIDs = append(result.TouchedItemIDs, item.ID)
		name := item.Name
		if name == "" {
			name = items[item.ID].Name
		}
		result.TouchedItemNames = append(result.TouchedItemNames, name)
	}

	s.logger.Info("bulk update applied",
		zap.String("operator", sess.Name()),
		zap.Int("updated", result.UpdatedCount),
		zap.Int("attempts", attempts))
	return result, nil
}

func (s *Service) validateRequest(req models.BulkUpdateRequest) *models.ValidationError {
	verr := &models.ValidationError{}

	if len(req.Changes) == 0 {
		verr.Add("changes", "at least one change is required")
		return verr
	}

	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				verr.Add(fieldPath(fe.Namespace()), reasonFor(fe))
			}
		} else {
			verr.Add("request", err.Error())
		}
	}

	seen := make(map[string]int, len(req.Changes))
	for i, c := range req.Changes {
		key := fmt.Sprintf("changes[%d]", i)
		if c.ItemID == "" {
			continue
		}
		if strings.TrimSpace(c.ItemID) != c.ItemID {
			verr.Add(key+".item_id", "must not have surrounding spaces")
		}
		if first, dup := seen[c.ItemID]; dup {
			verr.Add(key+".item_id", fmt.Sprintf("duplicates changes[%d]", first))
		} else {
			seen[c.ItemID] = i
		}
		if c.Rate == nil && c.Available == nil {
			verr.Add(key, "must set rate or available")
		}
	}

	if verr.Empty() {
		return nil
	}
	return verr
}

func (s *Service) writeAudit(ctx context.Context, entry models.AuditLogEntry, cause error) {
	entry.Status = models.AuditSuccess
	if cause != nil {
		entry.Status = models.AuditFailed
		entry.Error = cause.Error()
	}
	if s.audit == nil {
		return
	}
	if err := s.audit.WriteAudit(ctx, entry); err != nil {
		s.logger.Error("failed to write bulk audit entry",
			zap.String("audit_id", entry.ID),
			zap.String("status", string(entry.Status)),
			zap.Error(err))
	}
}

func (s *Service) releaseClaim(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.claims.Release(ctx, key); err != nil {
		s.logger.Warn("failed to release bulk request claim", zap.String("key", key), zap.Error(err))
	}
}

func failedResult(err error) models.BulkUpdateResult {
	return models.BulkUpdateResult{Success: false, Errors: []string{err.Error()}}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldPath drops the struct name: "BulkUpdateRequest.changes[1].rate" -> "changes[1].rate".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must be provided"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "min":
		return "must contain at least " + fe.Param() + " element(s)"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag()
	}
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
