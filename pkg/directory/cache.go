package directory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gravitational/trace"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/crewware/teamcore/pkg/observability"
	"github.com/crewware/teamcore/pkg/perm"
)

// CacheConfig controls the display cache tiers
type CacheConfig struct {
	MaxEntries int
	LocalTTL   time.Duration
	RedisTTL   time.Duration
}

// DefaultCacheConfig returns sensible cache defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 4096,
		LocalTTL:   time.Minute,
		RedisTTL:   15 * time.Minute,
	}
}

// CachedLookup layers an in-process LRU and an optional Redis tier over
// a backing Lookup. Concurrent misses for the same principal are
// collapsed into a single backend query.
type CachedLookup struct {
	backend Lookup
	local   *lru.LRU[string, Display]
	redis   *redis.Client
	group   singleflight.Group
	config  CacheConfig
	metrics *observability.Metrics
}

// NewCachedLookup creates the cache layer. The redis client may be nil,
// in which case only the local tier is used.
func NewCachedLookup(backend Lookup, redisClient *redis.Client, config CacheConfig, metrics *observability.Metrics) *CachedLookup {
	if config.MaxEntries <= 0 {
		config = DefaultCacheConfig()
	}
	return &CachedLookup{
		backend: backend,
		local:   lru.NewLRU[string, Display](config.MaxEntries, nil, config.LocalTTL),
		redis:   redisClient,
		config:  config,
		metrics: metrics,
	}
}

// Display resolves a principal's display info, consulting the local
// tier, then Redis, then the backing store.
func (c *CachedLookup) Display(ctx context.Context, p perm.Principal) (Display, error) {
	if p.IsZero() {
		return Display{}, trace.BadParameter("principal is required")
	}

	key := cacheKey(p)
	if d, ok := c.local.Get(key); ok {
		c.recordHit("local")
		return d, nil
	}

	if c.redis != nil {
		cached, err := c.redis.Get(ctx, key).Result()
		if err == nil {
			var d Display
			if err := json.Unmarshal([]byte(cached), &d); err == nil {
				c.local.Add(key, d)
				c.recordHit("redis")
				return d, nil
			}
		}
	}

	c.recordMiss()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		d, err := c.backend.Display(ctx, p)
		if err != nil {
			return Display{}, err
		}
		c.local.Add(key, d)
		if c.redis != nil {
			if payload, err := json.Marshal(d); err == nil {
				c.redis.Set(ctx, key, payload, c.config.RedisTTL)
			}
		}
		return d, nil
	})
	if err != nil {
		return Display{}, trace.Wrap(err)
	}
	return v.(Display), nil
}

// Invalidate drops a principal from both cache tiers. Called after
// renames and departures so stale names do not linger.
func (c *CachedLookup) Invalidate(ctx context.Context, p perm.Principal) {
	key := cacheKey(p)
	c.local.Remove(key)
	if c.redis != nil {
		c.redis.Del(ctx, key)
	}
}

func (c *CachedLookup) recordHit(tier string) {
	if c.metrics != nil {
		c.metrics.DisplayCacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

func (c *CachedLookup) recordMiss() {
	if c.metrics != nil {
		c.metrics.DisplayCacheMissesTotal.Inc()
	}
}
