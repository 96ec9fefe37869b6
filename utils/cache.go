package utils

import (
	"Go_Uploader/internal/repo"
	"Go_Uploader/internal/session"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON values under string keys. A missing key is reported as
// redis.Nil.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// CacheManager holds the upload snapshots polled by status requests.
type CacheManager struct {
	cache Cache
}

var globalCacheManager *CacheManager
var cacheManagerOnce sync.Once

// NewCacheManager wraps a cache.
func NewCacheManager(cache Cache) *CacheManager {
	return &CacheManager{cache: cache}
}

// InitCacheManager initializes the cache manager on repo.Redis.
func InitCacheManager() {
	cacheManagerOnce.Do(func() {
		globalCacheManager = NewCacheManager(NewRedisCache(repo.Redis))
	})
}

// GetCacheManager returns the cache manager.
func GetCacheManager() *CacheManager {
	if globalCacheManager == nil {
		InitCacheManager()
	}
	return globalCacheManager
}

// BuildCacheKey builds a cache key.
func BuildCacheKey(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key += fmt.Sprintf(":%v", param)
	}
	return key
}

const CacheKeyUploadSnapshot = "upload:snapshot"

// GetUploadSnapshot reads the last event cached for a file.
func (m *CacheManager) GetUploadSnapshot(ctx context.Context, name string) (*session.Event, bool) {
	var ev session.Event
	if err := m.cache.Get(ctx, BuildCacheKey(CacheKeyUploadSnapshot, name), &ev); err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("snapshot cache: read %s failed: %v", name, err)
		}
		return nil, false
	}
	return &ev, true
}

// SetUploadSnapshot caches the last event of a file.
func (m *CacheManager) SetUploadSnapshot(ctx context.Context, ev session.Event, expiration time.Duration) error {
	return m.cache.Set(ctx, BuildCacheKey(CacheKeyUploadSnapshot, ev.Name), ev, expiration)
}

// InvalidateUploadSnapshot drops the cached event of a file.
func (m *CacheManager) InvalidateUploadSnapshot(ctx context.Context, name string) error {
	return m.cache.Delete(ctx, BuildCacheKey(CacheKeyUploadSnapshot, name))
}
