// Package ratelimiting throttles requests to remote tile servers
package ratelimiting

import (
	"context"
	"fmt"
	"net/url"
	"time"

	e "github.com/Amund211/tilecore/internal/errors"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/time/rate"
)

type RateLimiter interface {
	// Consume takes a token for key if one is available
	Consume(key string) bool
	// Wait blocks until a token for key is available or ctx is done
	Wait(ctx context.Context, key string) error
}

type tokenBucketRateLimiter struct {
	limiterByKey    *ttlcache.Cache[string, *rate.Limiter]
	refillPerSecond float64
	burstSize       int
}

func (rateLimiter *tokenBucketRateLimiter) limiterFor(key string) *rate.Limiter {
	limiter, _ := rateLimiter.limiterByKey.GetOrSet(key, rate.NewLimiter(rate.Limit(rateLimiter.refillPerSecond), rateLimiter.burstSize))
	return limiter.Value()
}

func (rateLimiter *tokenBucketRateLimiter) Consume(key string) bool {
	return rateLimiter.limiterFor(key).Allow()
}

func (rateLimiter *tokenBucketRateLimiter) Wait(ctx context.Context, key string) error {
	err := rateLimiter.limiterFor(key).Wait(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", e.ErrRatelimitExceeded, key, err)
	}
	return nil
}

type RefillPerSecond float64
type BurstSize int

// NewTokenBucketRateLimiter keeps one token bucket per key. Buckets of keys that have not been
// used for a while are dropped. The returned function stops the background cleanup.
func NewTokenBucketRateLimiter(refillPerSecond RefillPerSecond, burstSize BurstSize) (RateLimiter, func()) {
	limiterTTLCache := ttlcache.New[string, *rate.Limiter](
		ttlcache.WithTTL[string, *rate.Limiter](30 * time.Minute),
	)
	go limiterTTLCache.Start()

	return &tokenBucketRateLimiter{
		limiterByKey:    limiterTTLCache,
		refillPerSecond: float64(refillPerSecond),
		burstSize:       int(burstSize),
	}, limiterTTLCache.Stop
}

// HostKeyFunc limits per tile server, so that mirrors on different hosts get separate budgets
func HostKeyFunc(u *url.URL) string {
	return fmt.Sprintf("host: %s", u.Host)
}
