package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"atlas-feed/internal/domain"
)

var _ domain.Cache = (*MemoryCache)(nil)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache — процессный LRU-кэш. maxTTL ограничивает жизнь любой записи,
// а TTL конкретной записи проверяется при чтении.
type MemoryCache struct {
	lru *expirable.LRU[string, memoryEntry]
	now func() time.Time
}

// NewMemory создаёт кэш на size записей.
func NewMemory(size int, maxTTL time.Duration) *MemoryCache {
	if size <= 0 {
		size = 512
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, memoryEntry](size, nil, maxTTL),
		now: time.Now,
	}
}

// Set задаёт значение.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.lru.Add(key, entry)
	return nil
}

// Get возвращает значение, если оно не истекло.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.lru.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Len возвращает число записей.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}
