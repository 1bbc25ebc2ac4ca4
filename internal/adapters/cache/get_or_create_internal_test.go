package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Data = string

func createCallback(data int) func() (Data, error) {
	return func() (Data, error) {
		return fmt.Sprintf("data%d", data), nil
	}
}

func createUnreachable(t *testing.T) func() (Data, error) {
	return func() (Data, error) {
		t.Error("create called for a key that is already resolved")
		return "", nil
	}
}

// blockingCallback signals started when it runs and returns once release is closed
func blockingCallback(started chan<- struct{}, release <-chan struct{}, data Data, err error) func() (Data, error) {
	return func() (Data, error) {
		close(started)
		<-release
		return data, err
	}
}

func caches() map[string]func() Cache[Data] {
	return map[string]func() Cache[Data]{
		"BasicCache": NewBasicCache[Data],
		"TTLCache": func() Cache[Data] {
			return NewTTLCache[Data](time.Minute)
		},
	}
}

func TestGetOrCreate(t *testing.T) {
	t.Parallel()

	for name, newCache := range caches() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("first caller creates", func(t *testing.T) {
				t.Parallel()

				cache := newCache()
				data, created, err := GetOrCreate(t.Context(), cache, "3/4/2@0", createCallback(1))
				require.NoError(t, err)
				require.True(t, created)
				require.Equal(t, "data1", data)

				data, created, err = GetOrCreate(t.Context(), cache, "3/4/2@0", createUnreachable(t))
				require.NoError(t, err)
				require.False(t, created)
				require.Equal(t, "data1", data)
			})

			t.Run("waiter receives the result of the creator", func(t *testing.T) {
				t.Parallel()

				cache := newCache()
				started := make(chan struct{})
				release := make(chan struct{})

				var wg sync.WaitGroup
				wg.Go(func() {
					data, created, err := GetOrCreate(t.Context(), cache, "key1", blockingCallback(started, release, "data1", nil))
					assert.NoError(t, err)
					assert.True(t, created)
					assert.Equal(t, "data1", data)
				})
				<-started

				wg.Go(func() {
					data, created, err := GetOrCreate(t.Context(), cache, "key1", createUnreachable(t))
					assert.NoError(t, err)
					assert.False(t, created)
					assert.Equal(t, "data1", data)
				})

				close(release)
				wg.Wait()
			})

			t.Run("waiter retries after the creator fails", func(t *testing.T) {
				t.Parallel()

				cache := newCache()
				started := make(chan struct{})
				release := make(chan struct{})
				failure := errors.New("error1")

				var wg sync.WaitGroup
				wg.Go(func() {
					_, created, err := GetOrCreate(t.Context(), cache, "key1", blockingCallback(started, release, "", failure))
					assert.ErrorIs(t, err, failure)
					assert.False(t, created)
				})
				<-started

				wg.Go(func() {
					data, created, err := GetOrCreate(t.Context(), cache, "key1", createCallback(2))
					assert.NoError(t, err)
					assert.True(t, created)
					assert.Equal(t, "data2", data)
				})

				close(release)
				wg.Wait()
			})

			t.Run("cleans up on error", func(t *testing.T) {
				t.Parallel()

				cache := newCache()
				_, _, err := GetOrCreate(t.Context(), cache, "key1", func() (Data, error) {
					return "", errors.New("error10")
				})
				require.Error(t, err)

				// The cache should be empty and allow us to create a new entry
				data, created, err := GetOrCreate(t.Context(), cache, "key1", createCallback(1))
				require.NoError(t, err)
				require.True(t, created)
				require.Equal(t, "data1", data)
			})

			t.Run("cleans up on panic", func(t *testing.T) {
				t.Parallel()

				cache := newCache()
				require.Panics(t, func() {
					_, _, _ = GetOrCreate(t.Context(), cache, "key1", func() (Data, error) {
						panic("decoder exploded")
					})
				})

				data, created, err := GetOrCreate(t.Context(), cache, "key1", createCallback(1))
				require.NoError(t, err)
				require.True(t, created)
				require.Equal(t, "data1", data)
			})

			t.Run("gives up when canceled", func(t *testing.T) {
				t.Parallel()

				cache := newCache()
				// Claimed by someone who never finishes
				_, claimed := cache.getOrClaim("key1")
				require.True(t, claimed)

				ctx, cancel := context.WithCancel(t.Context())
				cancel()

				_, created, err := GetOrCreate(ctx, cache, "key1", createUnreachable(t))
				require.ErrorIs(t, err, context.Canceled)
				require.False(t, created)

				// The claim of the other caller is left alone
				_, claimed = cache.getOrClaim("key1")
				require.False(t, claimed)
			})
		})
	}
}

func TestGetOrCreateZeroTTL(t *testing.T) {
	t.Parallel()

	cache := NewTTLCache[Data](0)

	var calls atomic.Int32
	create := func() (Data, error) {
		return fmt.Sprintf("data%d", calls.Add(1)), nil
	}

	data, created, err := GetOrCreate(t.Context(), cache, "key1", create)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "data1", data)

	data, created, err = GetOrCreate(t.Context(), cache, "key1", create)
	require.NoError(t, err)
	require.True(t, created, "resolved results are not kept")
	require.Equal(t, "data2", data)
}

func TestGetOrCreateRealCache(t *testing.T) {
	t.Parallel()

	t.Run("requests are de-duplicated in highly concurrent environment", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		cache := NewTTLCache[Data](1 * time.Minute)

		for testIndex := range 100 {
			t.Run(fmt.Sprintf("attempt #%d", testIndex), func(t *testing.T) {
				t.Parallel()

				var calls atomic.Int32
				monoStableCallback := func() (Data, error) {
					calls.Add(1)
					return "data1", nil
				}

				var wg sync.WaitGroup
				for range 10 {
					wg.Go(func() {
						data, _, err := GetOrCreate(ctx, cache, fmt.Sprintf("key%d", testIndex), monoStableCallback)
						assert.NoError(t, err)
						assert.Equal(t, "data1", data)
					})
				}
				wg.Wait()

				require.Equal(t, int32(1), calls.Load(), "Callback should only be called once")
			})
		}
	})
}
