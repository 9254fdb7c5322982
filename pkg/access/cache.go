package access

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hearthshare/larder/pkg/catalog"
	"github.com/hearthshare/larder/pkg/observability"
)

// CacheOptions configures the two-level access-context cache.
type CacheOptions struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	L1Size        int
	TTL           time.Duration
}

type l1Entry struct {
	ctx       AccessContext
	expiresAt time.Time
}

// Cache memoizes resolved access contexts: an in-process LRU in front of
// Redis, both TTL-bounded. Mutating components invalidate a household's
// entries after forks and subscription changes.
type Cache struct {
	l1      *lru.Cache[string, l1Entry]
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewCache connects to Redis and builds the L1 LRU. metrics may be nil.
func NewCache(opts CacheOptions, metrics *observability.Metrics) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	size := opts.L1Size
	if size <= 0 {
		size = 1024
	}
	l1, err := lru.New[string, l1Entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create L1 cache: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Cache{l1: l1, redis: client, ttl: ttl, metrics: metrics}, nil
}

func cacheKey(householdID int64, resourceType catalog.ResourceType, id int64) string {
	return fmt.Sprintf("access:%d:%s:%d", householdID, resourceType, id)
}

func householdKeyPattern(householdID int64) string {
	return fmt.Sprintf("access:%d:*", householdID)
}

// Get returns a cached access context if present and unexpired.
func (c *Cache) Get(ctx context.Context, householdID int64, resourceType catalog.ResourceType, id int64) (*AccessContext, bool) {
	key := cacheKey(householdID, resourceType, id)

	if entry, ok := c.l1.Get(key); ok {
		if time.Now().Before(entry.expiresAt) {
			c.hit("l1")
			ac := entry.ctx
			return &ac, true
		}
		c.l1.Remove(key)
	}
	c.miss("l1")

	data, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		c.miss("redis")
		return nil, false
	}

	var ac AccessContext
	if err := json.Unmarshal([]byte(data), &ac); err != nil {
		return nil, false
	}
	c.hit("redis")

	c.l1.Add(key, l1Entry{ctx: ac, expiresAt: time.Now().Add(c.ttl)})
	return &ac, true
}

// Set stores a resolved access context in both levels.
func (c *Cache) Set(ctx context.Context, householdID int64, resourceType catalog.ResourceType, id int64, ac *AccessContext) {
	key := cacheKey(householdID, resourceType, id)

	c.l1.Add(key, l1Entry{ctx: *ac, expiresAt: time.Now().Add(c.ttl)})

	if data, err := json.Marshal(ac); err == nil {
		c.redis.Set(ctx, key, data, c.ttl)
	}
}

// InvalidateHousehold drops every cached context for a household. Called by
// the copy-on-write engine and subscription manager after mutations.
func (c *Cache) InvalidateHousehold(ctx context.Context, householdID int64) {
	prefix := fmt.Sprintf("access:%d:", householdID)
	for _, key := range c.l1.Keys() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			c.l1.Remove(key)
		}
	}

	keys, err := c.redis.Keys(ctx, householdKeyPattern(householdID)).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	c.redis.Del(ctx, keys...)
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.redis.Close()
}

func (c *Cache) hit(level string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(level).Inc()
	}
}

func (c *Cache) miss(level string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(level).Inc()
	}
}
