// Package cache provides the recency-ordered tile caches and the
// byte-level caches for encoded tiles and view manifests.
package cache

import (
	"fmt"
	"sync"
)

// DefaultHighWaterMark is the soft tile capacity used when a cache is
// built without an explicit one.
const DefaultHighWaterMark = 2048

type lruEntry[V any] struct {
	key   string
	value V
	newer *lruEntry[V]
	older *lruEntry[V]
}

// LRU is a string-keyed cache ordered by recency of use. It never
// evicts on its own: Set always inserts, and callers drain the
// overflow with Prune (or TileCache.ExpireCache) once Count rises
// above the high water mark. Accessors taking a key panic when the
// key is absent; use Contains or Peek when absence is expected.
type LRU[V any] struct {
	mu            sync.Mutex
	highWaterMark int
	entries       map[string]*lruEntry[V]
	newest        *lruEntry[V]
	oldest        *lruEntry[V]
}

// NewLRU returns an empty cache. A non-positive highWaterMark selects
// DefaultHighWaterMark.
func NewLRU[V any](highWaterMark int) *LRU[V] {
	if highWaterMark <= 0 {
		highWaterMark = DefaultHighWaterMark
	}
	return &LRU[V]{
		highWaterMark: highWaterMark,
		entries:       make(map[string]*lruEntry[V]),
	}
}

// HighWaterMark returns the soft capacity.
func (c *LRU[V]) HighWaterMark() int { return c.highWaterMark }

// Count returns the number of cached entries.
func (c *LRU[V]) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CanExpireCache reports whether the cache sits above its high water
// mark.
func (c *LRU[V]) CanExpireCache() bool { return c.Count() > c.highWaterMark }

// Contains reports whether the key is cached.
func (c *LRU[V]) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Get returns the value for the key and marks it most recently used.
// It panics when the key is absent.
func (c *LRU[V]) Get(key string) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		panic(fmt.Sprintf("cache: get of key %q that does not exist", key))
	}
	c.promoteLocked(e)
	return e.value
}

// Peek returns the value without touching its recency.
func (c *LRU[V]) Peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// PeekLast returns the least recently used value. It panics when the
// cache is empty.
func (c *LRU[V]) PeekLast() V {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.oldest == nil {
		panic("cache: peek last on empty cache")
	}
	return c.oldest.value
}

// PeekLastKey returns the least recently used key. It panics when the
// cache is empty.
func (c *LRU[V]) PeekLastKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.oldest == nil {
		panic("cache: peek last key on empty cache")
	}
	return c.oldest.key
}

// PeekFirstKey returns the most recently used key. It panics when the
// cache is empty.
func (c *LRU[V]) PeekFirstKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.newest == nil {
		panic("cache: peek first key on empty cache")
	}
	return c.newest.key
}

// Pop removes and returns the least recently used value. It panics
// when the cache is empty.
func (c *LRU[V]) Pop() V {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.oldest == nil {
		panic("cache: pop on empty cache")
	}
	e := c.oldest
	c.unlinkLocked(e)
	delete(c.entries, e.key)
	return e.value
}

// Remove removes and returns the value for the key. It panics when
// the key is absent.
func (c *LRU[V]) Remove(key string) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		panic(fmt.Sprintf("cache: remove of key %q that does not exist", key))
	}
	c.unlinkLocked(e)
	delete(c.entries, key)
	return e.value
}

// Replace swaps the value for an existing key, keeping its recency.
// It panics when the key is absent.
func (c *LRU[V]) Replace(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		panic(fmt.Sprintf("cache: replace of key %q that does not exist", key))
	}
	e.value = value
}

// Set inserts a new entry as the most recently used. It panics when
// the key is already cached; use Replace to swap values.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		panic(fmt.Sprintf("cache: set of key %q that is already cached", key))
	}
	e := &lruEntry[V]{key: key, value: value}
	c.entries[key] = e
	c.linkNewestLocked(e)
}

// Prune pops least recently used entries until the cache is back at
// its high water mark, handing each popped value to dispose. A nil
// dispose just drops them.
func (c *LRU[V]) Prune(dispose func(V)) {
	for c.CanExpireCache() {
		v := c.Pop()
		if dispose != nil {
			dispose(v)
		}
	}
}

// Keys returns all keys ordered newest to oldest.
func (c *LRU[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for e := c.newest; e != nil; e = e.older {
		keys = append(keys, e.key)
	}
	return keys
}

// ForEach calls fn for every entry, oldest first. fn must not mutate
// the cache.
func (c *LRU[V]) ForEach(fn func(key string, value V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for e := c.oldest; e != nil; e = e.newer {
		fn(e.key, e.value)
	}
}

// Clear drops every entry without disposing values.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*lruEntry[V])
	c.newest = nil
	c.oldest = nil
}

func (c *LRU[V]) promoteLocked(e *lruEntry[V]) {
	if c.newest == e {
		return
	}
	c.unlinkLocked(e)
	c.linkNewestLocked(e)
}

func (c *LRU[V]) linkNewestLocked(e *lruEntry[V]) {
	e.older = c.newest
	e.newer = nil
	if c.newest != nil {
		c.newest.newer = e
	}
	c.newest = e
	if c.oldest == nil {
		c.oldest = e
	}
}

func (c *LRU[V]) unlinkLocked(e *lruEntry[V]) {
	if e.newer != nil {
		e.newer.older = e.older
	} else {
		c.newest = e.older
	}
	if e.older != nil {
		e.older.newer = e.newer
	} else {
		c.oldest = e.newer
	}
	e.newer = nil
	e.older = nil
}
