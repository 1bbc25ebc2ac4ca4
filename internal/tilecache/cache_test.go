package tilecache_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/tilecache"
	"github.com/stretchr/testify/require"
)

type mockedTime struct {
	current time.Time
}

func (m *mockedTime) Now() time.Time {
	return m.current
}

func (m *mockedTime) advance(d time.Duration) {
	m.current = m.current.Add(d)
}

func newCache(capacity int64) (*tilecache.Cache[string], *mockedTime) {
	mocked := &mockedTime{current: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	return tilecache.New[string]("test", capacity, mocked.Now), mocked
}

func key(n int) domain.TileID {
	return domain.NewMapTile(n, 0, 10, 0).ID()
}

func TestCapacity(t *testing.T) {
	t.Parallel()

	t.Run("size never exceeds capacity", func(t *testing.T) {
		t.Parallel()

		const capacity = 100
		cache, _ := newCache(capacity)

		costs := []int64{10, 40, 30, 25, 5, 60, 1, 99, 50, 50, 20, 100, 3}
		for i, cost := range costs {
			cache.Put(key(i), fmt.Sprintf("value %d", i), cost)

			require.LessOrEqual(t, cache.Size(), int64(capacity), "after put %d", i)
			require.True(t, cache.Exists(key(i)), "just inserted entry must exist")

			var total int64
			for _, k := range cache.Keys() {
				cost, ok := cache.Cost(k)
				require.True(t, ok)
				total += cost
			}
			require.Equal(t, total, cache.Size())
		}
	})

	t.Run("oversized entry is kept alone", func(t *testing.T) {
		t.Parallel()

		cache, _ := newCache(100)
		cache.Put(key(1), "a", 30)
		cache.Put(key(2), "b", 30)

		cache.Put(key(3), "huge", 250)
		require.Equal(t, []domain.TileID{key(3)}, cache.Keys())
		require.Equal(t, int64(250), cache.Size())

		value, ok := cache.Get(key(3))
		require.True(t, ok)
		require.Equal(t, "huge", value)

		// The next insert evicts the oversized entry
		cache.Put(key(4), "d", 10)
		require.Equal(t, []domain.TileID{key(4)}, cache.Keys())
		require.Equal(t, int64(10), cache.Size())
	})

	t.Run("least recently used is evicted first", func(t *testing.T) {
		t.Parallel()

		cache, _ := newCache(30)
		cache.Put(key(1), "a", 10)
		cache.Put(key(2), "b", 10)
		cache.Put(key(3), "c", 10)

		// Touch the oldest entry
		_, ok := cache.Get(key(1))
		require.True(t, ok)

		cache.Put(key(4), "d", 10)
		require.False(t, cache.Exists(key(2)))
		require.True(t, cache.Exists(key(1)))
		require.Equal(t, []domain.TileID{key(4), key(1), key(3)}, cache.Keys())
	})

	t.Run("peek does not touch", func(t *testing.T) {
		t.Parallel()

		cache, _ := newCache(20)
		cache.Put(key(1), "a", 10)
		cache.Put(key(2), "b", 10)

		value, ok := cache.Peek(key(1))
		require.True(t, ok)
		require.Equal(t, "a", value)

		cache.Put(key(3), "c", 10)
		require.False(t, cache.Exists(key(1)))
	})

	t.Run("replacing an entry re-accounts its cost", func(t *testing.T) {
		t.Parallel()

		cache, _ := newCache(100)
		cache.Put(key(1), "a", 40)
		cache.Put(key(1), "a2", 10)

		require.Equal(t, 1, cache.Len())
		require.Equal(t, int64(10), cache.Size())
		value, _ := cache.Get(key(1))
		require.Equal(t, "a2", value)
	})

	t.Run("resize", func(t *testing.T) {
		t.Parallel()

		cache, _ := newCache(100)
		for i := range 5 {
			cache.Put(key(i), "v", 20)
		}
		require.Equal(t, 5, cache.Len())

		cache.Resize(50)
		require.Equal(t, int64(50), cache.Capacity())
		require.Equal(t, []domain.TileID{key(4), key(3)}, cache.Keys())

		cache.Resize(1000)
		require.Equal(t, 2, cache.Len())
	})

	t.Run("clear and remove", func(t *testing.T) {
		t.Parallel()

		cache, _ := newCache(100)
		cache.Put(key(1), "a", 10)
		cache.Put(key(2), "b", 10)

		require.True(t, cache.Remove(key(1)))
		require.False(t, cache.Remove(key(1)))
		require.Equal(t, int64(10), cache.Size())

		cache.Clear()
		require.Equal(t, 0, cache.Len())
		require.Equal(t, int64(0), cache.Size())
		require.Empty(t, cache.Keys())
	})

	t.Run("negative capacity panics", func(t *testing.T) {
		t.Parallel()

		require.Panics(t, func() {
			newCache(-1)
		})
	})
}

func TestExpiry(t *testing.T) {
	t.Parallel()

	t.Run("entries are valid until invalidated", func(t *testing.T) {
		t.Parallel()

		cache, mocked := newCache(100)
		require.False(t, cache.Valid(key(1)))

		cache.Put(key(1), "a", 10)
		require.True(t, cache.Valid(key(1)))

		mocked.advance(24 * time.Hour)
		require.True(t, cache.Valid(key(1)), "entries without expiry never go stale")
	})

	t.Run("invalidate at a later time", func(t *testing.T) {
		t.Parallel()

		cache, mocked := newCache(100)
		cache.Put(key(1), "a", 10)
		cache.Invalidate(key(1), mocked.Now().Add(time.Minute))

		require.True(t, cache.Valid(key(1)))
		mocked.advance(59 * time.Second)
		require.True(t, cache.Valid(key(1)))
		mocked.advance(time.Second)
		require.False(t, cache.Valid(key(1)))

		// Stale entries remain readable
		require.True(t, cache.Exists(key(1)))
		value, ok := cache.Get(key(1))
		require.True(t, ok)
		require.Equal(t, "a", value)
	})

	t.Run("invalidate at the zero time", func(t *testing.T) {
		t.Parallel()

		cache, _ := newCache(100)
		cache.Put(key(1), "a", 10)
		cache.Put(key(2), "b", 10)

		cache.Invalidate(key(1), time.Time{})
		require.False(t, cache.Valid(key(1)))
		require.True(t, cache.Valid(key(2)))

		cache.InvalidateAll(time.Time{})
		require.False(t, cache.Valid(key(2)))
	})

	t.Run("invalidate missing entry is a no-op", func(t *testing.T) {
		t.Parallel()

		cache, mocked := newCache(100)
		cache.Invalidate(key(1), mocked.Now())
		require.False(t, cache.Exists(key(1)))
	})

	t.Run("invalidate all", func(t *testing.T) {
		t.Parallel()

		cache, mocked := newCache(100)
		cache.Put(key(1), "a", 10)
		cache.Put(key(2), "b", 10)

		cache.InvalidateAll(mocked.Now())
		require.False(t, cache.Valid(key(1)))
		require.False(t, cache.Valid(key(2)))
		require.Equal(t, 2, cache.Len())

		// A fresh put clears the expiry
		cache.Put(key(1), "a2", 10)
		require.True(t, cache.Valid(key(1)))
	})
}

func TestMove(t *testing.T) {
	t.Parallel()

	t.Run("move preserves value, cost and expiry", func(t *testing.T) {
		t.Parallel()

		cache, mocked := newCache(100)
		other := tilecache.New[string]("other", 100, mocked.Now)

		cache.Put(key(1), "a", 42)
		cache.Invalidate(key(1), mocked.Now().Add(time.Minute))
		before, ok := cache.Peek(key(1))
		require.True(t, ok)

		require.True(t, cache.Move(key(1), other))
		require.False(t, cache.Exists(key(1)))
		require.Equal(t, int64(0), cache.Size())

		after, ok := other.Get(key(1))
		require.True(t, ok)
		require.Equal(t, before, after)
		cost, ok := other.Cost(key(1))
		require.True(t, ok)
		require.Equal(t, int64(42), cost)
		require.Equal(t, int64(42), other.Size())

		require.True(t, other.Valid(key(1)))
		mocked.advance(time.Minute)
		require.False(t, other.Valid(key(1)))
	})

	t.Run("move missing entry", func(t *testing.T) {
		t.Parallel()

		cache, mocked := newCache(100)
		other := tilecache.New[string]("other", 100, mocked.Now)
		require.False(t, cache.Move(key(1), other))
		require.Equal(t, 0, other.Len())
	})

	t.Run("move respects the target capacity", func(t *testing.T) {
		t.Parallel()

		cache, mocked := newCache(100)
		other := tilecache.New[string]("other", 20, mocked.Now)
		other.Put(key(2), "b", 10)
		other.Put(key(3), "c", 10)

		cache.Put(key(1), "a", 10)
		require.True(t, cache.Move(key(1), other))

		require.Equal(t, []domain.TileID{key(1), key(3)}, other.Keys())
		require.LessOrEqual(t, other.Size(), other.Capacity())
	})

	t.Run("move replaces an existing entry in the target", func(t *testing.T) {
		t.Parallel()

		cache, mocked := newCache(100)
		other := tilecache.New[string]("other", 100, mocked.Now)
		other.Put(key(1), "old", 30)
		cache.Put(key(1), "new", 10)

		require.True(t, cache.Move(key(1), other))
		value, _ := other.Get(key(1))
		require.Equal(t, "new", value)
		require.Equal(t, int64(10), other.Size())
	})

	t.Run("move to self", func(t *testing.T) {
		t.Parallel()

		cache, _ := newCache(100)
		cache.Put(key(1), "a", 10)
		require.True(t, cache.Move(key(1), cache))
		require.True(t, cache.Exists(key(1)))
		require.Equal(t, int64(10), cache.Size())
	})
}
