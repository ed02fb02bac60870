package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"energylink/config"
	"energylink/models"

	"github.com/redis/go-redis/v9"
)

// Entry is a cached snapshot and the time it was stored.
type Entry struct {
	Snapshot models.PriceSnapshot `json:"snapshot"`
	StoredAt time.Time            `json:"storedAt"`
}

// Cache holds the current snapshot per key and a bounded history.
type Cache interface {
	// Get returns the entry for key; ok is false when nothing is stored.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)
	// Put stores entry as current and pushes its snapshot onto the history.
	Put(ctx context.Context, key string, entry Entry) error
	// History returns stored snapshots newest first.
	History(ctx context.Context, key string) ([]models.PriceSnapshot, error)
	Clear(ctx context.Context) error
	Close() error
}

// OpenCache builds the cache named by cfg.Driver.
func OpenCache(cfg config.CacheConfig, ttl time.Duration, historyLimit int) (Cache, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryCache(ttl, historyLimit), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisCache(client, cfg.Redis.Prefix, ttl, historyLimit), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}

// MemoryCache keeps everything in process. History entries older than the
// TTL are dropped on the next Put.
type MemoryCache struct {
	ttl   time.Duration
	limit int

	mu      sync.RWMutex
	current map[string]Entry
	history map[string][]Entry
}

func NewMemoryCache(ttl time.Duration, historyLimit int) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		limit:   historyLimit,
		current: make(map[string]Entry),
		history: make(map[string][]Entry),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.current[key]
	return e, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current[key] = entry

	h := append([]Entry{entry}, c.history[key]...)
	if c.ttl > 0 {
		h = slices.DeleteFunc(h, func(e Entry) bool { return cacheExpired(e.StoredAt, entry.StoredAt, c.ttl) })
	}
	if c.limit > 0 && len(h) > c.limit {
		h = h[:c.limit]
	}
	c.history[key] = h
	return nil
}

func (c *MemoryCache) History(_ context.Context, key string) ([]models.PriceSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := c.history[key]
	out := make([]models.PriceSnapshot, len(h))
	for i, e := range h {
		out[i] = e.Snapshot
	}
	return out, nil
}

func (c *MemoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.current)
	clear(c.history)
	return nil
}

func (c *MemoryCache) Close() error { return nil }

// RedisCache stores entries as JSON strings with a key TTL. History is a list
// trimmed to the limit whose expiry is refreshed on every push.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	limit  int
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, historyLimit int) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, limit: historyLimit}
}

func (c *RedisCache) currentKey(key string) string {
	return fmt.Sprintf("%sprice:%s:current", c.prefix, key)
}

func (c *RedisCache) historyKey(key string) string {
	return fmt.Sprintf("%sprice:%s:history", c.prefix, key)
}

func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := c.client.Get(ctx, c.currentKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("get cached price: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached price: %w", err)
	}
	return e, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode price: %w", err)
	}
	snap, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("encode price: %w", err)
	}

	hk := c.historyKey(key)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.currentKey(key), data, c.ttl)
		pipe.LPush(ctx, hk, snap)
		if c.limit > 0 {
			pipe.LTrim(ctx, hk, 0, int64(c.limit-1))
		}
		if c.ttl > 0 {
			pipe.Expire(ctx, hk, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store price: %w", err)
	}
	return nil
}

func (c *RedisCache) History(ctx context.Context, key string) ([]models.PriceSnapshot, error) {
	raw, err := c.client.LRange(ctx, c.historyKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read price history: %w", err)
	}
	out := make([]models.PriceSnapshot, 0, len(raw))
	for _, r := range raw {
		var s models.PriceSnapshot
		if err := json.Unmarshal([]byte(r), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Clear removes every key under the prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"price:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan price keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *RedisCache) Close() error { return c.client.Close() }

// cacheExpired reports whether an entry stored at storedAt is past ttl at now.
// A non-positive ttl disables caching.
func cacheExpired(storedAt, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || storedAt.IsZero() {
		return true
	}
	return now.Sub(storedAt) > ttl
}
