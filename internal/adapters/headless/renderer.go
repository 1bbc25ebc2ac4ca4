// Package headless stands in for a GPU renderer. It keeps the latest draw list and counts redraws
// so that map sessions can run without a display.
package headless

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Amund211/tilecore/internal/tilelayer"
)

// Renderer keeps the draw list of the last refresh
type Renderer[T any] struct {
	mutex     sync.Mutex
	drawData  []tilelayer.DrawData[T]
	refreshes int
	changes   int
}

func NewRenderer[T any]() *Renderer[T] {
	return &Renderer[T]{}
}

// RefreshTiles reports a change when the set of drawn tiles differs from the previous refresh
func (r *Renderer[T]) RefreshTiles(drawData []tilelayer.DrawData[T]) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.refreshes++
	changed := !slices.EqualFunc(r.drawData, drawData, func(a, b tilelayer.DrawData[T]) bool {
		return a.VisibleTile == b.VisibleTile && a.SourceTile == b.SourceTile && a.Preloading == b.Preloading
	})
	if changed {
		r.changes++
	}
	r.drawData = slices.Clone(drawData)
	return changed
}

// DrawData returns a copy of the last draw list
func (r *Renderer[T]) DrawData() []tilelayer.DrawData[T] {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return slices.Clone(r.drawData)
}

func (r *Renderer[T]) Refreshes() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.refreshes
}

// Changes counts refreshes that changed the drawn tiles
func (r *Renderer[T]) Changes() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.changes
}

// RedrawSignal coalesces redraw requests into a channel with room for one pending signal
type RedrawSignal struct {
	c        chan struct{}
	requests atomic.Int64
}

func NewRedrawSignal() *RedrawSignal {
	return &RedrawSignal{c: make(chan struct{}, 1)}
}

func (s *RedrawSignal) RequestRedraw() {
	s.requests.Add(1)
	select {
	case s.c <- struct{}{}:
	default:
	}
}

func (s *RedrawSignal) C() <-chan struct{} {
	return s.c
}

func (s *RedrawSignal) Requests() int64 {
	return s.requests.Load()
}

// LoadWaiter records tile load listener events
type LoadWaiter struct {
	visible    chan struct{}
	preloading chan struct{}

	visibleEvents    atomic.Int64
	preloadingEvents atomic.Int64
}

func NewLoadWaiter() *LoadWaiter {
	return &LoadWaiter{
		visible:    make(chan struct{}, 1),
		preloading: make(chan struct{}, 1),
	}
}

func (w *LoadWaiter) OnVisibleTilesLoaded() {
	w.visibleEvents.Add(1)
	select {
	case w.visible <- struct{}{}:
	default:
	}
}

func (w *LoadWaiter) OnPreloadingTilesLoaded() {
	w.preloadingEvents.Add(1)
	select {
	case w.preloading <- struct{}{}:
	default:
	}
}

// VisibleLoaded receives a value after visible tiles finished loading
func (w *LoadWaiter) VisibleLoaded() <-chan struct{} {
	return w.visible
}

func (w *LoadWaiter) PreloadingLoaded() <-chan struct{} {
	return w.preloading
}

func (w *LoadWaiter) VisibleEvents() int64 {
	return w.visibleEvents.Load()
}

func (w *LoadWaiter) PreloadingEvents() int64 {
	return w.preloadingEvents.Load()
}

var (
	_ tilelayer.Renderer[struct{}] = (*Renderer[struct{}])(nil)
	_ tilelayer.RedrawRequester    = (*RedrawSignal)(nil)
	_ tilelayer.TileLoadListener   = (*LoadWaiter)(nil)
)
