package cache

import (
	"sync"
)

type basicCache[T any] struct {
	flights map[string]*flight[T]
	mu      sync.Mutex
}

func (c *basicCache[T]) getOrClaim(key string) (*flight[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.flights[key]; ok {
		return f, false
	}

	f := newFlight[T]()
	c.flights[key] = f
	return f, true
}

func (c *basicCache[T]) store(string, *flight[T]) {}

func (c *basicCache[T]) Stop() {}

func (c *basicCache[T]) forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.flights, key)
}

// NewBasicCache never forgets a result
func NewBasicCache[T any]() Cache[T] {
	return &basicCache[T]{
		flights: make(map[string]*flight[T]),
	}
}
