package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/mamadbah2/freshledger/internal/domain/models"
)

const snapshotPrefix = "cart:snapshot:"

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}

// RedisSnapshots stores cart snapshots as JSON with a TTL.
type RedisSnapshots struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshots creates a Redis snapshot store with the given TTL.
func NewRedisSnapshots(client *redis.Client, ttl time.Duration) *RedisSnapshots {
	return &RedisSnapshots{client: client, ttl: ttl}
}

// Load reads the cart's snapshot.
func (r *RedisSnapshots) Load(ctx context.Context, cartID string) (*models.CartSnapshot, error) {
	val, err := r.client.Get(ctx, snapshotPrefix+cartID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, models.Transient("load cart snapshot", err)
	}

	var snap models.CartSnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, fmt.Errorf("decode cart snapshot %s: %w", cartID, err)
	}
	return &snap, nil
}

// Save writes snap and refreshes its TTL.
func (r *RedisSnapshots) Save(ctx context.Context, snap models.CartSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode cart snapshot %s: %w", snap.CartID, err)
	}
	if err := r.client.Set(ctx, snapshotPrefix+snap.CartID, payload, r.ttl).Err(); err != nil {
		return models.Transient("save cart snapshot", err)
	}
	return nil
}

// RedisClaims claims request keys with SETNX so a key is honored once across
// replicas until it expires.
type RedisClaims struct {
	client *redis.Client
}

// NewRedisClaims creates a claim set backed by SETNX.
func NewRedisClaims(client *redis.Client) *RedisClaims {
	return &RedisClaims{client: client}
}

// Claim sets key if it is absent.
func (r *RedisClaims) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, "1", ttl).Result()
}

// Release deletes key.
func (r *RedisClaims) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// RedisLocker hands out distributed locks backed by redislock.
type RedisLocker struct {
	locker *redislock.Client
}

// NewRedisLocker creates a locker backed by redislock.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{locker: redislock.New(client)}
}

// TryLock obtains key once without retrying. ErrLockHeld means another runner
// owns it.
func (r *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	lock, err := r.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}
