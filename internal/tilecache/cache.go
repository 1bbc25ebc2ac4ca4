package tilecache

import (
	"container/list"
	"context"
	"fmt"
	"time"

	"github.com/Amund211/tilecore/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type entry[T any] struct {
	key       domain.TileID
	value     T
	cost      int64
	expires   bool
	expiresAt time.Time
}

// Cache is a least recently used cache bounded by the total cost of its entries.
//
// Entries can carry an expiry. Expired entries stay readable until evicted, so that stale
// tiles can be displayed while their replacement loads.
//
// Cache is not safe for concurrent use.
type Cache[T any] struct {
	nowFunc func() time.Time
	attrs   metric.MeasurementOption

	capacity int64
	size     int64
	lru      *list.List
	entries  map[domain.TileID]*list.Element
}

func New[T any](name string, capacity int64, nowFunc func() time.Time) *Cache[T] {
	if capacity < 0 {
		panic(fmt.Sprintf("tilecache: negative capacity %d", capacity))
	}
	return &Cache[T]{
		nowFunc:  nowFunc,
		attrs:    metric.WithAttributes(attribute.String("cache", name)),
		capacity: capacity,
		lru:      list.New(),
		entries:  make(map[domain.TileID]*list.Element),
	}
}

func (c *Cache[T]) Capacity() int64 {
	return c.capacity
}

// Size is the total cost of all entries
func (c *Cache[T]) Size() int64 {
	return c.size
}

func (c *Cache[T]) Len() int {
	return len(c.entries)
}

func (c *Cache[T]) Exists(key domain.TileID) bool {
	_, ok := c.entries[key]
	return ok
}

// Valid reports whether the entry exists and has not expired
func (c *Cache[T]) Valid(key domain.TileID) bool {
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	e := elem.Value.(*entry[T])
	return !e.expires || c.nowFunc().Before(e.expiresAt)
}

// Get returns the value and marks it as most recently used
func (c *Cache[T]) Get(key domain.TileID) (T, bool) {
	elem, ok := c.entries[key]
	if !ok {
		metrics.misses.Add(context.Background(), 1, c.attrs)
		var empty T
		return empty, false
	}
	metrics.hits.Add(context.Background(), 1, c.attrs)
	c.lru.MoveToFront(elem)
	return elem.Value.(*entry[T]).value, true
}

// Peek returns the value without affecting the eviction order
func (c *Cache[T]) Peek(key domain.TileID) (T, bool) {
	elem, ok := c.entries[key]
	if !ok {
		var empty T
		return empty, false
	}
	return elem.Value.(*entry[T]).value, true
}

// Cost returns the cost the entry was stored with
func (c *Cache[T]) Cost(key domain.TileID) (int64, bool) {
	elem, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	return elem.Value.(*entry[T]).cost, true
}

// Put inserts or replaces the entry and evicts least recently used entries until the cache
// fits its capacity. An entry larger than the capacity is still stored, evicting everything else.
func (c *Cache[T]) Put(key domain.TileID, value T, cost int64) {
	c.insert(&entry[T]{key: key, value: value, cost: cost})
}

func (c *Cache[T]) insert(e *entry[T]) {
	if elem, ok := c.entries[e.key]; ok {
		c.removeElement(elem)
	}
	c.entries[e.key] = c.lru.PushFront(e)
	c.size += e.cost
	c.evict()
}

// Invalidate makes the entry expire at the given time. The entry is kept.
func (c *Cache[T]) Invalidate(key domain.TileID, at time.Time) {
	elem, ok := c.entries[key]
	if !ok {
		return
	}
	e := elem.Value.(*entry[T])
	e.expires, e.expiresAt = true, at
}

// InvalidateAll expires every entry as of now
func (c *Cache[T]) InvalidateAll(now time.Time) {
	for _, elem := range c.entries {
		e := elem.Value.(*entry[T])
		e.expires, e.expiresAt = true, now
	}
}

// Move relocates the entry with its cost and expiry into other, as its most recently used entry
func (c *Cache[T]) Move(key domain.TileID, other *Cache[T]) bool {
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	if other == c {
		return true
	}
	e := elem.Value.(*entry[T])
	c.removeElement(elem)
	other.insert(e)
	return true
}

func (c *Cache[T]) Remove(key domain.TileID) bool {
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	return true
}

func (c *Cache[T]) Clear() {
	c.lru.Init()
	clear(c.entries)
	c.size = 0
}

// Resize changes the capacity, evicting entries if it shrinks
func (c *Cache[T]) Resize(capacity int64) {
	if capacity < 0 {
		panic(fmt.Sprintf("tilecache: negative capacity %d", capacity))
	}
	c.capacity = capacity
	c.evict()
}

// Keys returns a snapshot of the keys, most recently used first
func (c *Cache[T]) Keys() []domain.TileID {
	keys := make([]domain.TileID, 0, len(c.entries))
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*entry[T]).key)
	}
	return keys
}

func (c *Cache[T]) evict() {
	evicted := 0
	for c.size > c.capacity && c.lru.Len() > 1 {
		c.removeElement(c.lru.Back())
		evicted++
	}
	if evicted > 0 {
		metrics.evictions.Add(context.Background(), int64(evicted), c.attrs)
	}
}

func (c *Cache[T]) removeElement(elem *list.Element) {
	e := c.lru.Remove(elem).(*entry[T])
	delete(c.entries, e.key)
	c.size -= e.cost
}
