package mongodb

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

func newTestRepository(t *testing.T) *MongoDBRepository {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbName := "freshledger_test_" + uuid.NewString()[:8]
	repo, err := NewMongoDBRepository(ctx, uri, dbName, nil)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	t.Cleanup(func() {
		_ = repo.db.Drop(context.Background())
		_ = repo.Close(context.Background())
	})
	return repo
}

func TestUpsertEntryKeepsIdentity(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first, err := repo.UpsertEntry(ctx, models.LedgerEntry{
		ItemID: "rohu", Date: "2026-03-01", TodayQuantity: 50, TodaySale: 30, Total: 50, NetAmount: 20,
		UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second, err := repo.UpsertEntry(ctx, models.LedgerEntry{
		ItemID: "rohu", Date: "2026-03-01", TodayQuantity: 50, TodaySale: 35, Total: 50, NetAmount: 15,
		UpdatedAt: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID || !second.CreatedAt.Equal(first.CreatedAt) || second.NetAmount != 15 {
		t.Fatalf("expected in-place update, got %+v then %+v", first, second)
	}

	entries, err := repo.ListByDate(ctx, "2026-03-01")
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one entry, got %d (%v)", len(entries), err)
	}

	if err := repo.DeleteEntry(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetEntry(ctx, "rohu", "2026-03-01"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListByItemAndBefore(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, d := range []string{"2026-03-03", "2026-03-01", "2026-03-02"} {
		if _, err := repo.UpsertEntry(ctx, models.LedgerEntry{ItemID: "katla", Date: d, TodayQuantity: 1, Total: 1, NetAmount: 1}); err != nil {
			t.Fatalf("upsert %s: %v", d, err)
		}
	}

	history, err := repo.ListByItem(ctx, "katla", "2026-03-02", 0)
	if err != nil || len(history) != 2 || history[0].Date != "2026-03-02" {
		t.Fatalf("unexpected history %+v (%v)", history, err)
	}

	old, err := repo.ListBefore(ctx, "2026-03-02")
	if err != nil || len(old) != 1 || old[0].Date != "2026-03-01" {
		t.Fatalf("unexpected entries before cutoff %+v (%v)", old, err)
	}
}

func TestApplyChangesIsAllOrNothing(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.CreateItem(ctx, models.CatalogItem{ID: "1", Name: "Rohu", Rate: 250, Available: true}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := repo.CreateItem(ctx, models.CatalogItem{ID: "1", Name: "Rohu"}); !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	rate := int64(300)
	now := time.Now().UTC()
	_, err := repo.ApplyChanges(ctx, []models.CatalogChange{
		{ItemID: "1", Rate: &rate, Date: "2026-03-05", At: now},
		{ItemID: "missing", Rate: &rate, Date: "2026-03-05", At: now},
	})
	if !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrTransientStore) {
		t.Fatalf("expected the missing item to abort the batch, got %v", err)
	}

	item, err := repo.GetItem(ctx, "1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item.Rate != 250 || len(item.RateHistory) != 0 {
		t.Fatalf("expected aborted transaction to leave item untouched, got %+v", item)
	}

	updated, err := repo.ApplyChanges(ctx, []models.CatalogChange{{ItemID: "1", Rate: &rate, Date: "2026-03-05", At: now}})
	if err != nil {
		t.Skipf("transactions unavailable (standalone server?): %v", err)
	}
	if len(updated) != 1 || updated[0].Rate != 300 || len(updated[0].RateHistory) != 1 {
		t.Fatalf("unexpected update %+v", updated)
	}
}

func TestAuditNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := repo.WriteAudit(ctx, models.AuditLogEntry{
			ID: uuid.NewString(), Operator: "priya", Timestamp: base.Add(time.Duration(i) * time.Minute),
			ItemIDs: []string{"1"}, RequestedCount: 1, Attempts: 1, Status: models.AuditSuccess,
		})
		if err != nil {
			t.Fatalf("write audit: %v", err)
		}
	}

	entries, err := repo.ListAudit(ctx, 2)
	if err != nil || len(entries) != 2 {
		t.Fatalf("unexpected audit list %+v (%v)", entries, err)
	}
	if !entries[0].Timestamp.After(entries[1].Timestamp) {
		t.Errorf("expected newest first, got %v then %v", entries[0].Timestamp, entries[1].Timestamp)
	}
}
