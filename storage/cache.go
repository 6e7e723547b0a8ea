package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/EliorMigdal/kaplat-ex7/domain"
)

// Cache wraps a single backend with Redis-backed caching for counts and
// listings. Every write through the cache evicts the backend's entries.
type Cache struct {
	base   domain.Store
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache creates a caching wrapper around base. Keys are namespaced by
// backend so both stores can share one Redis.
func NewCache(base domain.Store, backend domain.Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		base:   base,
		redis:  client,
		ttl:    ttl,
		prefix: "todos:" + string(backend) + ":",
	}
}

func (c *Cache) Count(ctx context.Context, filter domain.StatusFilter) (int, error) {
	gen, ok := c.generation(ctx)
	key := c.countKey(gen, filter)
	var n int
	if ok && c.load(ctx, key, &n) {
		return n, nil
	}
	n, err := c.base.Count(ctx, filter)
	if err != nil {
		return 0, err
	}
	if ok {
		c.store(ctx, key, n)
	}
	return n, nil
}

func (c *Cache) List(ctx context.Context, filter domain.StatusFilter, sortKey domain.SortKey) ([]domain.Todo, error) {
	gen, ok := c.generation(ctx)
	key := c.listKey(gen, filter, sortKey)
	var todos []domain.Todo
	if ok && c.load(ctx, key, &todos) {
		return todos, nil
	}
	todos, err := c.base.List(ctx, filter, sortKey)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, key, todos)
	}
	return todos, nil
}

// TitleExists, Get and Status back conflict checks and repairs and are never
// cached.
func (c *Cache) TitleExists(ctx context.Context, title string) (bool, error) {
	return c.base.TitleExists(ctx, title)
}

func (c *Cache) Get(ctx context.Context, id int64) (domain.Todo, error) {
	return c.base.Get(ctx, id)
}

func (c *Cache) Status(ctx context.Context, id int64) (domain.Status, error) {
	return c.base.Status(ctx, id)
}

func (c *Cache) Insert(ctx context.Context, t domain.Todo) error {
	defer c.evict(ctx)
	return c.base.Insert(ctx, t)
}

func (c *Cache) UpdateStatus(ctx context.Context, id int64, status domain.Status) error {
	defer c.evict(ctx)
	return c.base.UpdateStatus(ctx, id, status)
}

func (c *Cache) Delete(ctx context.Context, id int64) error {
	defer c.evict(ctx)
	return c.base.Delete(ctx, id)
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

// generation returns the current cache generation of the backend. Entries
// are keyed by generation, so a read that raced with a write fills a key no
// later read looks at. ok is false when Redis is unavailable.
func (c *Cache) generation(ctx context.Context) (int64, bool) {
	if c.redis == nil {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	return gen, err == nil
}

// evict moves the backend to a new generation and drops the cached entries.
// It also runs after failed writes since a failure may still have been
// applied.
func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	_ = c.redis.Incr(ctx, c.generationKey()).Err()

	iter := c.redis.Scan(ctx, 0, c.prefix+"data:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		_, _ = c.redis.Del(ctx, keys...).Result()
	}
}

func (c *Cache) generationKey() string {
	return c.prefix + "gen"
}

func (c *Cache) countKey(gen int64, filter domain.StatusFilter) string {
	return c.prefix + "data:" + strconv.FormatInt(gen, 10) + ":count:" + string(filter)
}

func (c *Cache) listKey(gen int64, filter domain.StatusFilter, sortKey domain.SortKey) string {
	return c.prefix + "data:" + strconv.FormatInt(gen, 10) + ":list:" + string(filter) + ":" + string(sortKey)
}
