package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestMemorySnapshotsIsolateCallers(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySnapshots(time.Hour)

	snap := models.CartSnapshot{CartID: "c1", Lines: []models.CartLine{{ItemID: "rohu", Quantity: 1.5, UnitPrice: 400}}}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap.Lines[0].Quantity = 99

	got, err := store.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Lines[0].Quantity != 1.5 {
		t.Errorf("stored snapshot was mutated through caller slice: %+v", got.Lines)
	}
}

func TestMemorySnapshotsExpire(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySnapshots(time.Minute)
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_ = store.Save(ctx, models.CartSnapshot{CartID: "c1"})
	now = now.Add(2 * time.Minute)

	if _, err := store.Load(ctx, "c1"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected expired snapshot to be gone, got %v", err)
	}
}

func TestMemoryClaims(t *testing.T) {
	ctx := context.Background()
	claims := NewMemoryClaims()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := claims.Claim(ctx, "bulk:r1", time.Hour); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one claim to win, got %d", wins.Load())
	}

	_ = claims.Release(ctx, "bulk:r1")
	if ok, _ := claims.Claim(ctx, "bulk:r1", time.Hour); !ok {
		t.Error("expected claim to succeed after release")
	}
}

func TestRedisSnapshots(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	store := NewRedisSnapshots(client, time.Minute)
	client.Del(ctx, snapshotPrefix+"test-cart")

	if _, err := store.Load(ctx, "test-cart"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	snap := models.CartSnapshot{CartID: "test-cart", Lines: []models.CartLine{{ItemID: "katla", Quantity: 2, UnitPrice: 320.5}}}
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, "test-cart")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Lines) != 1 || got.Lines[0].UnitPrice != 320.5 {
		t.Errorf("unexpected snapshot %+v", got)
	}

	ttl, _ := client.TTL(ctx, snapshotPrefix+"test-cart").Result()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("unexpected ttl %v", ttl)
	}
}

func TestRedisClaimsConcurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	claims := NewRedisClaims(client)
	client.Del(ctx, "bulk:test-claim")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := claims.Claim(ctx, "bulk:test-claim", time.Minute)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected 1 winning claim, got %d", wins.Load())
	}
	_ = claims.Release(ctx, "bulk:test-claim")
}

func TestRedisLockerSingleRunner(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	locker := NewRedisLocker(client)
	client.Del(ctx, "lock:test-purge")

	unlock, err := locker.TryLock(ctx, "lock:test-purge", time.Minute)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := locker.TryLock(ctx, "lock:test-purge", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	if err := unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	unlock, err = locker.TryLock(ctx, "lock:test-purge", time.Minute)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	_ = unlock(ctx)
}
