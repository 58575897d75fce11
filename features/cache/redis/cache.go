// Package redis provides a Redis-backed knowledge cache so worker fleets
// share one cache instead of warming an in-process LRU each. Wire it via
// knowledge.ServiceOptions.Cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xians-ai/sdk-go/runtime/knowledge"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

const keyPrefix = "xians:knowledge:"

type (
	// Options configures the cache.
	Options struct {
		// Client is a pre-configured go-redis client. Required.
		Client goredis.UniversalClient
		// TTL bounds entry staleness. Zero means five minutes.
		TTL time.Duration
		// Logger receives cache diagnostics. Nil means noop.
		Logger telemetry.Logger
	}

	// Cache implements knowledge.Cache on Redis. Failures degrade to cache
	// misses; the knowledge provider remains the source of truth.
	Cache struct {
		client goredis.UniversalClient
		ttl    time.Duration
		logger telemetry.Logger
	}
)

// New builds the cache.
func New(opts Options) (*Cache, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = knowledge.DefaultCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if opts.Client == nil {
		return nil, errors.New("redis cache: client is required")
	}
	return &Cache{client: opts.Client, ttl: ttl, logger: logger}, nil
}

var _ knowledge.Cache = (*Cache)(nil)

// Get returns the cached entry, treating any Redis failure as a miss.
func (c *Cache) Get(ctx context.Context, key string) (*knowledge.Knowledge, bool) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Warn(ctx, "knowledge cache read failed", "key", key, "err", err)
		}
		return nil, false
	}
	var k knowledge.Knowledge
	if err := json.Unmarshal(raw, &k); err != nil {
		c.logger.Warn(ctx, "knowledge cache entry corrupt", "key", key, "err", err)
		return nil, false
	}
	return &k, true
}

// Add stores the entry with the cache TTL.
func (c *Cache) Add(ctx context.Context, key string, k *knowledge.Knowledge) {
	raw, err := json.Marshal(k)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn(ctx, "knowledge cache write failed", "key", key, "err", err)
	}
}

// Remove invalidates the entry.
func (c *Cache) Remove(ctx context.Context, key string) {
	if err := c.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		c.logger.Warn(ctx, "knowledge cache invalidation failed", "key", key, "err", err)
	}
}
