// Package cache stores rendered pages keyed by request URI.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/folio-cms/folio/internal/pkg/redis"
)

// Store is a byte cache with per-entry TTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Purge drops every entry.
	Purge(ctx context.Context) error
}

// DefaultMaxEntries bounds a Memory store.
const DefaultMaxEntries = 1024

type memEntry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process Store. When full, expired entries are swept first and
// then an arbitrary entry is evicted.
type Memory struct {
	mu    sync.Mutex
	items map[string]memEntry
	max   int
	now   func() time.Time
}

func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{items: make(map[string]memEntry), max: maxEntries, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.items, key)
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[key]; !ok && len(m.items) >= m.max {
		m.evict()
	}
	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.items[key] = e
	return nil
}

func (m *Memory) evict() {
	now := m.now()
	for k, e := range m.items {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(m.items, k)
		}
	}
	for k := range m.items {
		if len(m.items) < m.max {
			return
		}
		delete(m.items, k)
	}
}

func (m *Memory) Purge(context.Context) error {
	m.mu.Lock()
	m.items = make(map[string]memEntry)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// KeyPrefix namespaces page cache keys in a shared Redis.
const KeyPrefix = "folio-page-cache:"

// Redis keeps entries in a shared Redis so several front ends see one cache.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis { return &Redis{client: client} }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok, err := r.client.Get(ctx, KeyPrefix+key)
	if err != nil {
		return nil, false
	}
	return v, ok
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, KeyPrefix+key, value, ttl)
}

func (r *Redis) Purge(ctx context.Context) error {
	_, err := r.client.DeletePrefix(ctx, KeyPrefix)
	return err
}
