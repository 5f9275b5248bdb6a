// Package cache keeps per-date availability results of many huts in memory.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alex-user-go/hutavail/internal/availability/types"
)

// Cache holds one result store per hut with an optional TTL and collapses
// concurrent identical range requests.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]map[types.Date]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group

	done      chan struct{}
	closeOnce sync.Once
}

type cacheEntry struct {
	result    types.Result
	expiresAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithNow replaces the time source used for expiry.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a new Cache. A ttl of 0 keeps entries until Invalidate or Clear.
func NewCache(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]map[types.Date]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if ttl > 0 {
		go c.cleanup()
	}

	return c
}

// Close stops the background cleanup goroutine.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Key generates a request key for a hut and date range.
func Key(hut string, start, end types.Date) string {
	return fmt.Sprintf("%s:%s:%s", hut, start, end)
}

// For returns the view of a single hut's results.
func (c *Cache) For(hut string) types.Cache {
	return &hutView{cache: c, hut: hut}
}

// Len returns the number of live entries for a hut.
func (c *Cache) Len(hut string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	n := 0
	for _, e := range c.entries[hut] {
		if !c.expired(e, now) {
			n++
		}
	}
	return n
}

// Collapse runs fn once for concurrent callers sharing key. Every caller receives
// the same map and must not modify it. It reports whether the result was shared.
// A caller whose ctx ends stops waiting; fn keeps running for the others.
func (c *Cache) Collapse(ctx context.Context, key string, fn func() (map[types.Date]types.Result, error)) (map[types.Date]types.Result, bool, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		return fn()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.(map[types.Date]types.Result), res.Shared, nil
	case <-ctx.Done():
		return nil, false, context.Cause(ctx)
	}
}

// Invalidate removes every entry of a hut.
func (c *Cache) Invalidate(hut string) {
	c.mu.Lock()
	delete(c.entries, hut)
	c.mu.Unlock()
}

// Clear removes all entries from the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]map[types.Date]cacheEntry)
	c.mu.Unlock()
}

func (c *Cache) get(hut string, d types.Date) (types.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[hut][d]
	if !ok || c.expired(e, c.now()) {
		return types.Result{}, false
	}
	return e.result, true
}

func (c *Cache) put(hut string, d types.Date, r types.Result) {
	e := cacheEntry{result: r}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	store, ok := c.entries[hut]
	if !ok {
		store = make(map[types.Date]cacheEntry)
		c.entries[hut] = store
	}
	store[d] = e
}

func (c *Cache) expired(e cacheEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// cleanup periodically removes expired entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for hut, store := range c.entries {
		for d, e := range store {
			if c.expired(e, now) {
				delete(store, d)
			}
		}
		if len(store) == 0 {
			delete(c.entries, hut)
		}
	}
}

type hutView struct {
	cache *Cache
	hut   string
}

func (v *hutView) Get(d types.Date) (types.Result, bool) {
	return v.cache.get(v.hut, d)
}

func (v *hutView) Put(d types.Date, r types.Result) {
	v.cache.put(v.hut, d, r)
}
