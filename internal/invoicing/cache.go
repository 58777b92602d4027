package invoicing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "payalloc:run:version"
	cacheKeyPrefix  = "payalloc:run"
)

// Cache stores finished runs in Redis under versioned fingerprint keys.
// Bumping the version invalidates every cached run at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// Key composes the cache key for a run fingerprint with the current version.
func (c *Cache) Key(ctx context.Context, fingerprint string) (string, error) {
	if fingerprint == "" {
		return "", errors.New("cache: fingerprint required")
	}
	if !c.enabled() {
		return strings.Join([]string{cacheKeyPrefix, fingerprint}, ":"), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:%d", cacheKeyPrefix, fingerprint, ver), nil
}

// Get loads a cached run. The boolean is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (Run, bool, error) {
	if !c.enabled() || key == "" {
		return Run{}, false, nil
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	var run Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return Run{}, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return run, true, nil
}

// Put stores the run under key for the configured TTL.
func (c *Cache) Put(ctx context.Context, key string, run Run) error {
	if !c.enabled() || key == "" {
		return nil
	}
	raw, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates the cache by incrementing the global version.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Result()
}
