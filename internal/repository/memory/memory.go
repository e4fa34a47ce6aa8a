// Package memory provides a process-local backing store used for local runs
// and tests. It honors the same contracts as the MongoDB repositories,
// including all-or-nothing catalog batches.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

// Store is an in-process backing store for the ledger, catalog and audit log.
type Store struct {
	mu      sync.RWMutex
	entries map[string]models.LedgerEntry
	byKey   map[string]string
	items   map[string]models.CatalogItem
	audit   []models.AuditLogEntry
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[string]models.LedgerEntry),
		byKey:   make(map[string]string),
		items:   make(map[string]models.CatalogItem),
	}
}

func entryKey(itemID, date string) string {
	return itemID + "|" + date
}

// GetEntry returns the entry of itemID on date.
func (s *Store) GetEntry(_ context.Context, itemID, date string) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[entryKey(itemID, date)]
	if !ok {
		return nil, models.ErrNotFound
	}
	entry := s.entries[id]
	return &entry, nil
}

// ListByDate returns every entry recorded on date.
func (s *Store) ListByDate(_ context.Context, date string) ([]models.LedgerEntry, error) {
	return s.filter(func(e models.LedgerEntry) bool { return e.Date == date }, 0), nil
}

// ListByItem returns the item's entries from the given day, oldest first.
func (s *Store) ListByItem(_ context.Context, itemID, from string, limit int) ([]models.LedgerEntry, error) {
	return s.filter(func(e models.LedgerEntry) bool {
		return e.ItemID == itemID && e.Date >= from
	}, limit), nil
}

// ListBefore returns every entry dated before cutoff.
func (s *Store) ListBefore(_ context.Context, cutoff string) ([]models.LedgerEntry, error) {
	return s.filter(func(e models.LedgerEntry) bool { return e.Date < cutoff }, 0), nil
}

func (s *Store) filter(keep func(models.LedgerEntry) bool, limit int) []models.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.LedgerEntry, 0)
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ItemID < out[j].ItemID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// UpsertEntry inserts or replaces the entry keyed by item and date.
func (s *Store) UpsertEntry(_ context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey(entry.ItemID, entry.Date)
	if id, ok := s.byKey[key]; ok {
		existing := s.entries[id]
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	} else {
		entry.ID = uuid.NewString()
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = entry.UpdatedAt
		}
		s.byKey[key] = entry.ID
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.UpdatedAt
	}

	s.entries[entry.ID] = entry
	return entry, nil
}

// DeleteEntry removes an entry by id.
func (s *Store) DeleteEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return models.ErrNotFound
	}
	delete(s.entries, id)
	delete(s.byKey, entryKey(entry.ItemID, entry.Date))
	return nil
}

// ListItems returns all catalog items sorted by name.
func (s *Store) ListItems(_ context.Context) ([]models.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.CatalogItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetItem returns one catalog item.
func (s *Store) GetItem(_ context.Context, id string) (*models.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := cloneItem(item)
	return &out, nil
}

// CreateItem adds a catalog item, generating an id when none is set.
func (s *Store) CreateItem(_ context.Context, item models.CatalogItem) (models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if _, exists := s.items[item.ID]; exists {
		return models.CatalogItem{}, fmt.Errorf("catalog item %s: %w", item.ID, models.ErrAlreadyExists)
	}
	s.items[item.ID] = cloneItem(item)
	return item, nil
}

// GetItems resolves every id or fails on the first missing one.
func (s *Store) GetItems(_ context.Context, ids []string) (map[string]models.CatalogItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.CatalogItem, len(ids))
	for _, id := range ids {
		item, ok := s.items[id]
		if !ok {
			return nil, fmt.Errorf("catalog item %s: %w", id, models.ErrNotFound)
		}
		out[id] = cloneItem(item)
	}
	return out, nil
}

// ApplyChanges applies every change or none of them.
func (s *Store) ApplyChanges(_ context.Context, changes []models.CatalogChange) ([]models.CatalogItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]models.CatalogItem, len(changes))
	order := make([]string, 0, len(changes))
	for _, c := range changes {
		item, ok := staged[c.ItemID]
		if !ok {
			current, exists := s.items[c.ItemID]
			if !exists {
				return nil, fmt.Errorf("catalog item %s: %w", c.ItemID, models.ErrNotFound)
			}
			item = cloneItem(current)
			order = append(order, c.ItemID)
		}
		c.Apply(&item)
		staged[c.ItemID] = item
	}

	out := make([]models.CatalogItem, 0, len(order))
	for _, id := range order {
		s.items[id] = staged[id]
		out = append(out, cloneItem(staged[id]))
	}
	return out, nil
}

// WriteAudit appends an audit entry.
func (s *Store) WriteAudit(_ context.Context, entry models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.ItemIDs = append([]string(nil), entry.ItemIDs...)
	s.audit = append(s.audit, entry)
	return nil
}

// ListAudit returns the most recent audit entries first.
func (s *Store) ListAudit(_ context.Context, limit int) ([]models.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.AuditLogEntry, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		out = append(out, s.audit[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneItem(item models.CatalogItem) models.CatalogItem {
	item.RateHistory = append([]models.RatePoint(nil), item.RateHistory...)
	return item
}
