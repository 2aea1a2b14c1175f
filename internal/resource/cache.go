package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-pathways/internal/curriculum"
)

// Cache maps (path, subtopic) to an ordered resource list. A hit holding an
// empty list is a cached empty and distinct from a miss.
type Cache interface {
	Get(ctx context.Context, pathID string, subtopicID int) (resources []curriculum.Resource, ok bool, err error)
	Set(ctx context.Context, pathID string, subtopicID int, resources []curriculum.Resource) error
	Delete(ctx context.Context, pathID string, subtopicID int) error
}

type cacheKey struct {
	pathID     string
	subtopicID int
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[cacheKey][]curriculum.Resource
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[cacheKey][]curriculum.Resource)}
}

func (c *MemoryCache) Get(_ context.Context, pathID string, subtopicID int) ([]curriculum.Resource, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.entries[cacheKey{pathID, subtopicID}]
	if !ok {
		return nil, false, nil
	}
	return cloneResources(res), true, nil
}

func (c *MemoryCache) Set(_ context.Context, pathID string, subtopicID int, resources []curriculum.Resource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{pathID, subtopicID}] = cloneResources(resources)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, pathID string, subtopicID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{pathID, subtopicID})
	return nil
}

// Clear drops every entry.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of cached subtopics.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache shares resource lists between server processes. Entries never
// expire; Set and Delete are the only invalidation.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a cache tier shared through client. Entries never expire.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, pathID string, subtopicID int) ([]curriculum.Resource, bool, error) {
	raw, err := c.client.Get(ctx, redisKey(pathID, subtopicID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var res []curriculum.Resource
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("decode cached resources: %w", err)
	}
	if res == nil {
		res = []curriculum.Resource{}
	}
	return res, true, nil
}

func (c *RedisCache) Set(ctx context.Context, pathID string, subtopicID int, resources []curriculum.Resource) error {
	if resources == nil {
		resources = []curriculum.Resource{}
	}
	raw, err := json.Marshal(resources)
	if err != nil {
		return fmt.Errorf("encode resources: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(pathID, subtopicID), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, pathID string, subtopicID int) error {
	if err := c.client.Del(ctx, redisKey(pathID, subtopicID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func redisKey(pathID string, subtopicID int) string {
	return "learnpath:resources:" + pathID + ":" + strconv.Itoa(subtopicID)
}

// tiered reads through a local cache into an optional shared one. Shared
// tier failures degrade to a miss and are logged, never returned.
type tiered struct {
	local  *MemoryCache
	shared Cache
}

func (t *tiered) Get(ctx context.Context, pathID string, subtopicID int) ([]curriculum.Resource, bool, error) {
	if res, ok, _ := t.local.Get(ctx, pathID, subtopicID); ok {
		return res, true, nil
	}
	if t.shared == nil {
		return nil, false, nil
	}
	res, ok, err := t.shared.Get(ctx, pathID, subtopicID)
	if err != nil {
		slog.Warn("shared resource cache read failed",
			"path_id", pathID,
			"subtopic_id", subtopicID,
			"error", err,
		)
		return nil, false, nil
	}
	if ok {
		_ = t.local.Set(ctx, pathID, subtopicID, res)
	}
	return res, ok, nil
}

func (t *tiered) Set(ctx context.Context, pathID string, subtopicID int, resources []curriculum.Resource) error {
	_ = t.local.Set(ctx, pathID, subtopicID, resources)
	if t.shared != nil {
		if err := t.shared.Set(ctx, pathID, subtopicID, resources); err != nil {
			slog.Warn("shared resource cache write failed",
				"path_id", pathID,
				"subtopic_id", subtopicID,
				"error", err,
			)
		}
	}
	return nil
}

func (t *tiered) Delete(ctx context.Context, pathID string, subtopicID int) error {
	_ = t.local.Delete(ctx, pathID, subtopicID)
	if t.shared != nil {
		if err := t.shared.Delete(ctx, pathID, subtopicID); err != nil {
			slog.Warn("shared resource cache delete failed",
				"path_id", pathID,
				"subtopic_id", subtopicID,
				"error", err,
			)
		}
	}
	return nil
}

func cloneResources(in []curriculum.Resource) []curriculum.Resource {
	out := make([]curriculum.Resource, len(in))
	copy(out, in)
	return out
}
