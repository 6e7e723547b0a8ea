package storage

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReserver stores title reservations in Redis so every instance sees
// a create in progress.
type RedisReserver struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReserver creates a reserver using the provided Redis client. ttl
// bounds how long a crashed request can hold a title.
func NewRedisReserver(client *redis.Client, ttl time.Duration) *RedisReserver {
	return &RedisReserver{client: client, ttl: ttl}
}

func (r *RedisReserver) key(title string) string {
	return "todos:title:" + title
}

// Reserve records the title if it is not already reserved. It returns true
// when the reservation was newly taken.
func (r *RedisReserver) Reserve(ctx context.Context, title string) (bool, error) {
	return r.client.SetNX(ctx, r.key(title), 1, r.ttl).Result()
}

// Release drops a reservation taken by Reserve.
func (r *RedisReserver) Release(ctx context.Context, title string) error {
	return r.client.Del(ctx, r.key(title)).Err()
}

// LocalReserver is the in-process reserver used without Redis.
type LocalReserver struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalReserver() *LocalReserver {
	return &LocalReserver{held: make(map[string]struct{})}
}

func (l *LocalReserver) Reserve(_ context.Context, title string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[title]; ok {
		return false, nil
	}
	l.held[title] = struct{}{}
	return true, nil
}

func (l *LocalReserver) Release(_ context.Context, title string) error {
	l.mu.Lock()
	delete(l.held, title)
	l.mu.Unlock()
	return nil
}
