package utils

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a size-bounded LRU whose entries also expire after a TTL.
// It is safe for concurrent use.
type Cache[V any] struct {
	lru *lru.Cache[string, cacheEntry[V]]
	ttl time.Duration
	now func() time.Time
}

func NewCache[V any](size int, ttl time.Duration) (*Cache[V], error) {
	l, err := lru.New[string, cacheEntry[V]](size)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{lru: l, ttl: ttl, now: time.Now}, nil
}

func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, cacheEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)})
}

// Get returns the cached value, dropping it if it has expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().After(e.expiresAt) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Delete(keys ...string) {
	for _, k := range keys {
		c.lru.Remove(k)
	}
}

func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
