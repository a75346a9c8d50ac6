package cache

import (
	"bytes"
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is an in-process key/value store with a bounded number of entries
// and a per-entry time to live. Values are opaque bytes.
type Cache struct {
	lru *lru.Cache[string, entry]
	now func() time.Time
}

func New(size int) (*Cache, error) {
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{
		lru: c,
		now: time.Now,
	}, nil
}

// Get returns a copy of the stored value. Expired entries are evicted on read.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.lru.Remove(key)
		return nil, false, nil
	}
	return bytes.Clone(e.value), true, nil
}

// Set stores value under key. A non-positive ttl keeps the entry until it is
// evicted or deleted.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: bytes.Clone(value)}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.lru.Add(key, e)
	return nil
}

// Delete is a no-op for absent keys.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *Cache) Len() int {
	return c.lru.Len()
}
