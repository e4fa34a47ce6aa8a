package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

// Repository is the catalog slice of the backing store.
type Repository interface {
	ListItems(ctx context.Context) ([]models.CatalogItem, error)
	GetItem(ctx context.Context, id string) (*models.CatalogItem, error)
	CreateItem(ctx context.Context, item models.CatalogItem) (models.CatalogItem, error)
}

// Service exposes read access to the catalog and lets admins seed new items.
// Rate and availability changes go through the bulk engine.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a catalog service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// List returns every catalog item.
func (s *Service) List(ctx context.Context) ([]models.CatalogItem, error) {
	items, err := s.repo.ListItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	return items, nil
}

// Get returns one catalog item.
func (s *Service) Get(ctx context.Context, id string) (*models.CatalogItem, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get catalog item %s: %w", id, err)
	}
	return item, nil
}

// Create adds an item and opens its rate history with the initial rate. An
// item without an id gets a generated one.
func (s *Service) Create(ctx context.Context, sess models.Session, item models.CatalogItem) (models.CatalogItem, error) {
	if !sess.IsAdmin() {
		return models.CatalogItem{}, models.ErrForbidden
	}

	item.ID = strings.TrimSpace(item.ID)
	item.Name = strings.TrimSpace(item.Name)
	verr := &models.ValidationError{}
	if item.Name == "" {
		verr.Add("name", "must be provided")
	}
	if item.Rate < 0 {
		verr.Add("rate", "must be >= 0")
	}
	if !verr.Empty() {
		return models.CatalogItem{}, verr
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := s.now().UTC()
	item.UpdatedAt = now
	item.RateHistory = []models.RatePoint{{Date: now.Format(models.DateLayout), Rate: item.Rate}}

	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return models.CatalogItem{}, fmt.Errorf("create catalog item: %w", err)
	}
	s.logger.Info("catalog item created",
		zap.String("operator", sess.Name()),
		zap.String("item_id", created.ID),
		zap.Int64("rate", created.Rate))
	return created, nil
}
