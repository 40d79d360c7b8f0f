package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions locates the remote store.
type RedisOptions struct {
	// Addr is the server address in "host:port" form.
	Addr string `yaml:"addr"`

	// Password is sent with AUTH when not empty.
	Password string `yaml:"password,omitempty"`

	// DB selects the logical database.
	DB int `yaml:"db,omitempty"`

	// Prefix is prepended to every key so several tools can share one DB.
	Prefix string `yaml:"prefix,omitempty"`

	// DialTimeout bounds connection attempts. Zero uses the client default.
	DialTimeout time.Duration `yaml:"-"`
}

// RedisCache stores entries in Redis and relies on its key expiry.
// A failed connection surfaces as an error from each call; Manager turns
// those into misses.
type RedisCache struct {
	client *redis.Client
	prefix string
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedisCache creates a client for opts. It does not dial; the first
// command does.
func NewRedisCache(opts RedisOptions) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:        opts.Addr,
			Password:    opts.Password,
			DB:          opts.DB,
			DialTimeout: opts.DialTimeout,
		}),
		prefix: opts.Prefix,
	}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) count(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
}

// Get fetches key. A missing key is not an error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.count(false)
		return nil, false, nil
	}
	if err != nil {
		c.count(false)
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	c.count(true)
	return v, true, nil
}

// Set stores value with the server-side expiry set to ttl. Redis has no
// zero expiry, so a zero TTL becomes one millisecond.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		// Already expired: drop any older value instead of storing this one.
		if _, err := c.Delete(ctx, key); err != nil {
			return err
		}
		return nil
	}

	var expiration time.Duration
	switch {
	case ttl < 0:
		expiration = 0
	case ttl < time.Millisecond:
		expiration = time.Millisecond
	default:
		expiration = ttl
	}
	if err := c.client.Set(ctx, c.key(key), value, expiration).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Del(ctx, c.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Clear flushes the selected database.
func (c *RedisCache) Clear(ctx context.Context) error {
	if err := c.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("redis flushdb: %w", err)
	}
	return nil
}

// Exists reports whether key is present and unexpired.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Stats reports DBSIZE and, when the server supports it, memory usage from INFO.
func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("redis dbsize: %w", err)
	}

	details := map[string]string{
		"addr": c.client.Options().Addr,
	}
	if info, err := c.client.Info(ctx, "memory").Result(); err == nil {
		for k, v := range parseInfo(info) {
			if k == "used_memory_human" || k == "maxmemory_human" {
				details[k] = v
			}
		}
	}

	return Stats{
		Backend: KindRedis.String(),
		Items:   size,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Details: details,
	}, nil
}

// parseInfo splits the "key:value" lines of an INFO reply.
func parseInfo(info string) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if k, v, ok := strings.Cut(line, ":"); ok {
			out[k] = v
		}
	}
	return out
}

// Close closes the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
