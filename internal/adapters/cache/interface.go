// Package cache coalesces concurrent requests for the same key, so that only one caller
// performs the expensive work while the others wait for its result.
package cache

// flight is one computation of an entry. done is closed once the entry resolves or the claim
// is abandoned. data and valid must only be read after done is closed.
type flight[T any] struct {
	done  chan struct{}
	data  T
	valid bool
}

func newFlight[T any]() *flight[T] {
	return &flight[T]{done: make(chan struct{})}
}

func (f *flight[T]) resolve(data T) {
	f.data = data
	f.valid = true
	close(f.done)
}

func (f *flight[T]) abandon() {
	close(f.done)
}

// Cache stores flights by key
type Cache[T any] interface {
	// getOrClaim returns the flight for key. claimed is true when the caller created it and
	// must resolve or abandon it.
	getOrClaim(key string) (f *flight[T], claimed bool)
	// store is called after f resolved
	store(key string, f *flight[T])
	// forget drops the entry for key, so that the next caller claims it
	forget(key string)

	// Stop releases background resources. The cache must not be used afterwards.
	Stop()
}
