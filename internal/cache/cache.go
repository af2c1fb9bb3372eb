// Package cache provides a small key/TTL cache used by the classifier
// verdict cache, backed by Redis when configured and falling back to an
// in-process cache otherwise.
package cache

import (
	"context"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Cache is a minimal get/set-with-TTL key-value store.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string, ttl time.Duration)
}

// memoryCache wraps patrickmn/go-cache for deployments with no Redis
// configured.
type memoryCache struct {
	inner *gocache.Cache
}

// NewMemoryCache builds an in-process cache with the given default TTL.
func NewMemoryCache(defaultTTL time.Duration) Cache {
	return &memoryCache{inner: gocache.New(defaultTTL, defaultTTL*2)}
}

func (m *memoryCache) Get(_ context.Context, key string) (string, bool) {
	v, found := m.inner.Get(key)
	if !found {
		return "", false
	}
	return v.(string), true
}

func (m *memoryCache) Set(_ context.Context, key string, value string, ttl time.Duration) {
	m.inner.Set(key, value, ttl)
}

// redisCache wraps go-redis for deployments sharing a cache across gateway
// instances.
type redisCache struct {
	client *redis.Client
}

// NewRedisCache connects to the given Redis address, selecting db 0.
func NewRedisCache(addr, password string) Cache {
	return &redisCache{client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: 0})}
}

func (r *redisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (r *redisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) {
	r.client.Set(ctx, key, value, ttl)
}

// VerdictCache memoizes classifier verdicts by the exact last user message
// text, avoiding repeat LLM-tier calls for repeated prompts within the TTL.
// Prompts that differ in any character are cached separately.
type VerdictCache struct {
	cache Cache
	ttl   time.Duration
}

// NewVerdictCache wraps any Cache for verdict storage.
func NewVerdictCache(c Cache, ttl time.Duration) *VerdictCache {
	return &VerdictCache{cache: c, ttl: ttl}
}

// Get returns a cached JSON-encoded verdict for text, if present.
func (v *VerdictCache) Get(ctx context.Context, text string) (string, bool) {
	return v.cache.Get(ctx, "verdict:"+text)
}

// Set JSON-encodes value (a verdict) and stores it for text; a value that
// cannot be encoded is not stored.
func (v *VerdictCache) Set(ctx context.Context, text string, value interface{}) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return
	}
	v.cache.Set(ctx, "verdict:"+text, string(encoded), v.ttl)
}
