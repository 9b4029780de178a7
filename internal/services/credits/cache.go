package credits

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/appforge-ai/appforge-backend/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix  = "credits:"
	defaultTTLSeconds = 3600
)

// BalanceCache is the Redis fast path for credit balances. Atomic DECR/INCR
// on the cached value is the only per-user serialization the coordinator
// relies on, so no application-level locks exist.
type BalanceCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewBalanceCache(client *redis.Client, config *models.CreditCacheConfig) *BalanceCache {
	prefix := defaultKeyPrefix
	ttlSeconds := defaultTTLSeconds

	if config != nil {
		if config.KeyPrefix != "" {
			prefix = config.KeyPrefix
		}
		if config.TTLSeconds > 0 {
			ttlSeconds = config.TTLSeconds
		}
	}

	return &BalanceCache{
		client: client,
		prefix: prefix,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

func (c *BalanceCache) key(userID string) string {
	return c.prefix + userID
}

// Get returns the cached balance for a user. The second return value is false
// when no entry exists (expired or never hydrated).
func (c *BalanceCache) Get(ctx context.Context, userID string) (int64, bool, error) {
	val, err := c.client.Get(ctx, c.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cached balance: %w", err)
	}

	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Corrupt entry, drop it so the next read rehydrates
		_ = c.client.Del(ctx, c.key(userID)).Err()
		return 0, false, nil
	}

	return balance, true, nil
}

// Set writes a balance with the configured TTL
func (c *BalanceCache) Set(ctx context.Context, userID string, balance int64) error {
	if err := c.client.Set(ctx, c.key(userID), balance, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache balance: %w", err)
	}
	return nil
}

// decrIfPresent decrements the cached balance only when an entry exists. A
// bare DECRBY on a key that expired mid-deduction would recreate it at -n
// with no TTL, and that entry would shadow the durable balance forever.
var decrIfPresent = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("DECRBY", KEYS[1], ARGV[1])
end
return false
`)

// DecrBy atomically decrements the cached balance and returns the new value.
// The second return value is false when no entry exists to decrement.
func (c *BalanceCache) DecrBy(ctx context.Context, userID string, n int64) (int64, bool, error) {
	val, err := decrIfPresent.Run(ctx, c.client, []string{c.key(userID)}, n).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to decrement cached balance: %w", err)
	}
	return val, true, nil
}

// addIfPresent increments the cached balance only when an entry exists. A
// blind INCRBY on a missing key would create an entry with no TTL that
// shadows the durable balance forever.
var addIfPresent = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("INCRBY", KEYS[1], ARGV[1])
end
return false
`)

// AddIfPresent increments the cached balance when the key is present, used
// for grants and for returning a reservation taken by DecrBy. A missing key
// is left missing; the next read hydrates the fresh durable balance instead.
func (c *BalanceCache) AddIfPresent(ctx context.Context, userID string, delta int64) error {
	err := addIfPresent.Run(ctx, c.client, []string{c.key(userID)}, delta).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to apply grant to cached balance: %w", err)
	}
	return nil
}

// Del removes the cached balance so the next read rehydrates from the
// durable store
func (c *BalanceCache) Del(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached balance: %w", err)
	}
	return nil
}
