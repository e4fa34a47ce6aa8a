// Package cache holds the short-lived state shared between replicas: cart
// snapshots, bulk request claims and the purge job lock. Every concern has a
// Redis implementation and a process-local one used when Redis is not
// configured.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

// ErrLockHeld is returned when another replica holds the requested lock.
var ErrLockHeld = errors.New("lock held by another runner")

// Unlock releases a lock obtained from a Locker.
type Unlock func(ctx context.Context) error

// MemorySnapshots keeps cart snapshots in process memory.
type MemorySnapshots struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	carts map[string]memorySnapshot
}

type memorySnapshot struct {
	snap    models.CartSnapshot
	expires time.Time
}

// NewMemorySnapshots creates a snapshot store whose entries expire after ttl.
func NewMemorySnapshots(ttl time.Duration) *MemorySnapshots {
	return &MemorySnapshots{
		ttl:   ttl,
		now:   time.Now,
		carts: make(map[string]memorySnapshot),
	}
}

// Load returns a copy of the cart's snapshot.
func (m *MemorySnapshots) Load(_ context.Context, cartID string) (*models.CartSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.carts[cartID]
	if !ok || (!stored.expires.IsZero() && m.now().After(stored.expires)) {
		return nil, models.ErrNotFound
	}
	snap := stored.snap.Clone()
	return &snap, nil
}

// Save stores a copy of snap.
func (m *MemorySnapshots) Save(_ context.Context, snap models.CartSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := memorySnapshot{snap: snap.Clone()}
	if m.ttl > 0 {
		stored.expires = m.now().Add(m.ttl)
	}
	m.carts[snap.CartID] = stored
	return nil
}

// MemoryClaims de-duplicates request keys within one process.
type MemoryClaims struct {
	mu   sync.Mutex
	now  func() time.Time
	keys map[string]time.Time
}

// NewMemoryClaims creates an empty claim set.
func NewMemoryClaims() *MemoryClaims {
	return &MemoryClaims{now: time.Now, keys: make(map[string]time.Time)}
}

// Claim takes key unless an unexpired claim holds it.
func (m *MemoryClaims) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.keys[key]; ok && now.Before(expires) {
		return false, nil
	}
	m.keys[key] = now.Add(ttl)
	return true, nil
}

// Release drops the claim on key.
func (m *MemoryClaims) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// NoopLocker always grants the lock. It is used for single-replica runs.
type NoopLocker struct{}

// TryLock always succeeds.
func (NoopLocker) TryLock(_ context.Context, _ string, _ time.Duration) (Unlock, error) {
	return func(context.Context) error { return nil }, nil
}
