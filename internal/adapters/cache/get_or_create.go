package cache

import (
	"context"
	"fmt"

	"github.com/Amund211/tilecore/internal/logging"
)

// GetOrCreate returns the cached result for key, or runs create when nobody else is.
// Returns data, created, error
//
// Callers that find a flight in progress block until it resolves or ctx is done. A failed
// create leaves no entry behind, so one of the waiting callers claims the key and retries.
func GetOrCreate[T any](ctx context.Context, cache Cache[T], key string, create func() (T, error)) (T, bool, error) {
	logger := logging.FromContext(ctx)

	for {
		f, claimed := cache.getOrClaim(key)
		if claimed {
			logger.DebugContext(ctx, "Creating cache entry", "key", key, "cache", "miss")
			data, err := runFlight(cache, key, f, create)
			if err != nil {
				var empty T
				return empty, false, fmt.Errorf("failed to create cache entry: %w", err)
			}
			return data, true, nil
		}

		select {
		case <-f.done:
		case <-ctx.Done():
			var empty T
			return empty, false, fmt.Errorf("gave up waiting for cache entry: %w", ctx.Err())
		}

		if f.valid {
			logger.DebugContext(ctx, "Reusing cache entry", "key", key, "cache", "hit")
			return f.data, false, nil
		}
	}
}

func runFlight[T any](cache Cache[T], key string, f *flight[T], create func() (T, error)) (T, error) {
	resolved := false
	defer func() {
		if !resolved {
			// Forget before waking the waiters, or they would find the abandoned flight again
			cache.forget(key)
			f.abandon()
		}
	}()

	data, err := create()
	if err != nil {
		return data, err
	}

	f.resolve(data)
	resolved = true
	cache.store(key, f)
	return data, nil
}
