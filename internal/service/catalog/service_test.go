package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mamadbah2/freshledger/internal/domain/models"
	"github.com/mamadbah2/freshledger/internal/repository/memory"
)

func TestCreateSeedsRateHistory(t *testing.T) {
	svc := NewService(memory.New(), nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }

	item, err := svc.Create(context.Background(), models.Session{Operator: "priya", Role: models.RoleAdmin},
		models.CatalogItem{ID: " rohu ", Name: "Rohu", Rate: 25000, Available: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.ID != "rohu" || len(item.RateHistory) != 1 || item.RateHistory[0].Date != "2026-03-01" {
		t.Fatalf("unexpected item %+v", item)
	}

	got, err := svc.Get(context.Background(), "rohu")
	if err != nil || got.Rate != 25000 {
		t.Fatalf("get: %+v %v", got, err)
	}
}

// passthroughRepo stores items exactly as given, like the MongoDB repository.
type passthroughRepo struct {
	created []models.CatalogItem
}

func (r *passthroughRepo) ListItems(context.Context) ([]models.CatalogItem, error) {
	return r.created, nil
}

func (r *passthroughRepo) GetItem(_ context.Context, id string) (*models.CatalogItem, error) {
	for i := range r.created {
		if r.created[i].ID == id {
			return &r.created[i], nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *passthroughRepo) CreateItem(_ context.Context, item models.CatalogItem) (models.CatalogItem, error) {
	for _, existing := range r.created {
		if existing.ID == item.ID {
			return models.CatalogItem{}, models.ErrAlreadyExists
		}
	}
	r.created = append(r.created, item)
	return item, nil
}

func TestCreateGeneratesMissingID(t *testing.T) {
	repo := &passthroughRepo{}
	svc := NewService(repo, nil)
	admin := models.Session{Operator: "priya", Role: models.RoleAdmin}

	first, err := svc.Create(context.Background(), admin, models.CatalogItem{Name: "Katla", Rate: 28000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.Create(context.Background(), admin, models.CatalogItem{ID: "  ", Name: "Pabda", Rate: 42000})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct generated ids, got %q and %q", first.ID, second.ID)
	}
	if repo.created[0].ID != first.ID {
		t.Errorf("expected the generated id to reach the store, got %q", repo.created[0].ID)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(memory.New(), nil)
	admin := models.Session{Operator: "priya", Role: models.RoleAdmin}

	_, err := svc.Create(context.Background(), admin, models.CatalogItem{Rate: -1})
	var verr *models.ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) != 2 {
		t.Fatalf("expected name and rate errors, got %v", err)
	}

	_, err = svc.Create(context.Background(), models.Session{Role: models.RoleStaff}, models.CatalogItem{Name: "Katla"})
	if !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestGetMissingItem(t *testing.T) {
	svc := NewService(memory.New(), nil)
	if _, err := svc.Get(context.Background(), "ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
