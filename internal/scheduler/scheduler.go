package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/cache"
	"github.com/mamadbah2/freshledger/internal/domain/models"
)

const (
	purgeLockKey = "lock:ledger:purge"
	jobTimeout   = 2 * time.Minute
)

// systemSession is the identity scheduled jobs act under.
var systemSession = models.Session{Operator: "scheduler", Role: models.RoleAdmin}

// LedgerJobs is the slice of the ledger service the scheduler drives.
type LedgerJobs interface {
	Today() string
	PurgeOlderThan(ctx context.Context, sess models.Session, days int) (models.DeleteReport, error)
	Summary(ctx context.Context, date string) (models.DaySummary, error)
}

// Locker guards jobs that must run on a single replica.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (cache.Unlock, error)
}

// Config selects the jobs to schedule. Empty specs disable a job.
type Config struct {
	RetentionDays int
	PurgeSpec     string
	SummarySpec   string
	Location      *time.Location
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron   *cron.Cron
	ledger LedgerJobs
	locker Locker
	cfg    Config
	logger *zap.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(cfg Config, ledger LedgerJobs, locker Locker, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = cache.NoopLocker{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		ledger: ledger,
		locker: locker,
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers the enabled jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler")

	if s.cfg.RetentionDays > 0 && s.cfg.PurgeSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.PurgeSpec, s.runPurge); err != nil {
			return fmt.Errorf("schedule ledger purge %q: %w", s.cfg.PurgeSpec, err)
		}
		s.logger.Info("ledger purge scheduled", zap.String("spec", s.cfg.PurgeSpec), zap.Int("retention_days", s.cfg.RetentionDays))
	}

	if s.cfg.SummarySpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.SummarySpec, s.runSummary); err != nil {
			return fmt.Errorf("schedule ledger summary %q: %w", s.cfg.SummarySpec, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	_, _ = s.Purge(ctx)
}

// Purge deletes entries past the retention window unless another replica is
// already doing it.
func (s *Scheduler) Purge(ctx context.Context) (models.DeleteReport, error) {
	unlock, err := s.locker.TryLock(ctx, purgeLockKey, jobTimeout)
	if errors.Is(err, cache.ErrLockHeld) {
		s.logger.Info("ledger purge already running elsewhere, skipping")
		return models.DeleteReport{}, err
	}
	if err != nil {
		s.logger.Error("failed to obtain purge lock", zap.Error(err))
		return models.DeleteReport{}, err
	}
	defer func() {
		if err := unlock(context.Background()); err != nil {
			s.logger.Warn("failed to release purge lock", zap.Error(err))
		}
	}()

	report, err := s.ledger.PurgeOlderThan(ctx, systemSession, s.cfg.RetentionDays)
	if err != nil {
		s.logger.Error("ledger purge failed", zap.Error(err))
		return report, err
	}
	s.logger.Info("ledger purge finished",
		zap.String("cutoff", report.Cutoff),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

func (s *Scheduler) runSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	_, _ = s.CloseDay(ctx)
}

// CloseDay logs yesterday's totals and flags items that closed negative.
func (s *Scheduler) CloseDay(ctx context.Context) (models.DaySummary, error) {
	today, err := time.Parse(models.DateLayout, s.ledger.Today())
	if err != nil {
		return models.DaySummary{}, err
	}
	date := today.AddDate(0, 0, -1).Format(models.DateLayout)

	summary, err := s.ledger.Summary(ctx, date)
	if err != nil {
		s.logger.Error("failed to build ledger summary", zap.String("date", date), zap.Error(err))
		return summary, err
	}

	fields := []zap.Field{
		zap.String("date", date),
		zap.Int("items", summary.Items),
		zap.Float64("today_sale", summary.TodaySale),
		zap.Float64("net_amount", summary.NetAmount),
	}
	if len(summary.NegativeItems) > 0 {
		s.logger.Warn("ledger day closed with negative balances", append(fields, zap.Strings("items", summary.NegativeItems))...)
	} else {
		s.logger.Info("ledger day closed", fields...)
	}
	return summary, nil
}
