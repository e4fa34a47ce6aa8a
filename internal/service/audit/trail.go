// Package audit records bulk update outcomes in the primary store and mirrors
// them to optional sinks such as a reporting sheet or a webhook.
package audit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Store is the append-only audit collection.
type Store interface {
	WriteAudit(ctx context.Context, entry models.AuditLogEntry) error
	ListAudit(ctx context.Context, limit int) ([]models.AuditLogEntry, error)
}

// Sink receives a copy of every entry once it is stored.
type Sink interface {
	WriteAudit(ctx context.Context, entry models.AuditLogEntry) error
}

type namedSink struct {
	name string
	sink Sink
}

// Trail fans audit entries out to the store and the configured sinks.
type Trail struct {
	store  Store
	sinks  []namedSink
	logger *zap.Logger
}

func NewTrail(store Store, logger *zap.Logger) *Trail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trail{store: store, logger: logger}
}

// AddSink registers a mirror. Sink failures are logged and never surface.
func (t *Trail) AddSink(name string, sink Sink) {
	t.sinks = append(t.sinks, namedSink{name: name, sink: sink})
}

// WriteAudit stores entry and then mirrors it. Only the store error is
// returned.
func (t *Trail) WriteAudit(ctx context.Context, entry models.AuditLogEntry) error {
	if err := t.store.WriteAudit(ctx, entry); err != nil {
		return fmt.Errorf("store audit entry %s: %w", entry.ID, err)
	}

	for _, s := range t.sinks {
		if err := s.sink.WriteAudit(ctx, entry); err != nil {
			t.logger.Warn("audit sink failed",
				zap.String("sink", s.name),
				zap.String("audit_id", entry.ID),
				zap.Error(err))
		}
	}
	return nil
}

// Recent lists the newest entries for an admin.
func (t *Trail) Recent(ctx context.Context, sess models.Session, limit int) ([]models.AuditLogEntry, error) {
	if !sess.IsAdmin() {
		return nil, models.ErrForbidden
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	entries, err := t.store.ListAudit(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
