package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Deduper remembers keys for a TTL. Seen reports true when the key was
// already claimed, and claims it otherwise. Release drops a claim.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

const keyPrefix = "mailleopard:event:"

// RedisDeduper shares claims across processes through SET NX.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

// NewRedisDeduperFromURL parses a redis:// URL and pings the server.
func NewRedisDeduperFromURL(ctx context.Context, url string, ttl time.Duration) (*RedisDeduper, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisDeduper(client, ttl), nil
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	claimed, err := d.client.SetNX(ctx, keyPrefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return !claimed, nil
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (d *RedisDeduper) Close() error {
	return d.client.Close()
}

// MemoryDeduper is the single-process fallback.
type MemoryDeduper struct {
	cache *gocache.Cache
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{cache: gocache.New(ttl, ttl/2)}
}

func (d *MemoryDeduper) Seen(_ context.Context, key string) (bool, error) {
	// Add fails when the key exists and has not expired.
	if err := d.cache.Add(key, struct{}{}, gocache.DefaultExpiration); err != nil {
		return true, nil
	}
	return false, nil
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.cache.Delete(key)
	return nil
}
