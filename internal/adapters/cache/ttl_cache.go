package cache

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type ttlCache[T any] struct {
	ttl      time.Duration
	cache    *ttlcache.Cache[string, *flight[T]]
	stopOnce sync.Once
}

func (c *ttlCache[T]) getOrClaim(key string) (*flight[T], bool) {
	item, existed := c.cache.GetOrSet(key, newFlight[T]())
	return item.Value(), !existed
}

func (c *ttlCache[T]) store(key string, f *flight[T]) {
	if c.ttl == 0 {
		c.forget(key)
		return
	}
	// Restart the ttl from the moment the result became available
	c.cache.Set(key, f, ttlcache.DefaultTTL)
}

// Stop ends the expiry goroutine. ttlcache blocks on a second Stop, so only the first call stops.
func (c *ttlCache[T]) Stop() {
	c.stopOnce.Do(c.cache.Stop)
}

func (c *ttlCache[T]) forget(key string) {
	c.cache.Delete(key)
}

// NewTTLCache keeps results for ttl after they resolved. A ttl of zero only shares a result
// with the callers that waited for it. Unresolved claims are dropped after ttl as well, so a
// caller that never finishes blocks the key for at most ttl.
func NewTTLCache[T any](ttl time.Duration) Cache[T] {
	cache := ttlcache.New[string, *flight[T]](
		ttlcache.WithTTL[string, *flight[T]](ttl),
		ttlcache.WithDisableTouchOnHit[string, *flight[T]](),
	)
	go cache.Start()
	return &ttlCache[T]{ttl: ttl, cache: cache}
}
