// Package tilelayer resolves the tiles needed for a view, fetches missing ones in the background
// and keeps the decoded results in a visible and a preloading cache tier.
package tilelayer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/logging"
	"github.com/Amund211/tilecore/internal/tilecache"
	"github.com/Amund211/tilecore/internal/view"
	"github.com/google/uuid"
)

// ZoomRange is an inclusive range of view zoom levels
type ZoomRange struct {
	Min float64
	Max float64
}

func (r ZoomRange) Contains(zoom float64) bool {
	return zoom >= r.Min && zoom <= r.Max
}

// Layer is the tile pipeline of one map layer.
//
// Update is called once per frame with the current view. Each call computes the tiles covering
// the view, hands the renderer a draw list built from the best cached data, and queues fetches
// for anything missing or stale. Completed fetches of visible tiles re-resolve the last view.
type Layer[T any] struct {
	id       uuid.UUID
	ctx      context.Context
	logger   *slog.Logger
	source   DataSource
	decoder  Decoder[T]
	pool     WorkPool
	nowFunc  func() time.Time
	self     weak.Pointer[Layer[T]]
	listener *sourceListener[T]

	registry       *fetchRegistry[T]
	calculating    atomic.Bool
	refreshedTiles atomic.Bool

	// updateMutex serializes resolutions together with their renderer hand-off
	updateMutex sync.Mutex

	mutex  sync.Mutex
	closed bool

	visibleCache    *tilecache.Cache[T]
	preloadingCache *tilecache.Cache[T]

	frameNr             int
	lastFrameNr         int
	preloading          bool
	substitutionPolicy  domain.SubstitutionPolicy
	zoomLevelBias       float64
	maxOverzoomLevel    int
	maxUnderzoomLevel   int
	synchronizedRefresh bool
	visible             bool
	visibleZoomRange    ZoomRange
	updatePriority      int
	seamlessPanning     bool

	renderer         Renderer[T]
	redrawRequester  RedrawRequester
	tileLoadListener TileLoadListener

	view    view.State
	hasView bool

	tilesComputed   bool
	tilesView       view.State
	tilesFrameNr    int
	visibleTiles    []domain.MapTile
	preloadingTiles []domain.MapTile
}

// resolution collects the output of one pass over the visible tiles
type resolution[T any] struct {
	drawData    []DrawData[T]
	submissions []submission[T]
}

// NewLayer creates a layer reading from source and registers it for change notifications.
// Tiles are fetched on pool. nowFunc drives tile expiry.
func NewLayer[T any](ctx context.Context, source DataSource, decoder Decoder[T], pool WorkPool, nowFunc func() time.Time) (*Layer[T], error) {
	if source == nil {
		return nil, fmt.Errorf("%w: nil data source", domain.ErrInvalidArgument)
	}
	if decoder == nil {
		return nil, fmt.Errorf("%w: nil decoder", domain.ErrInvalidArgument)
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: nil work pool", domain.ErrInvalidArgument)
	}
	if source.MinZoom() > source.MaxZoom() {
		return nil, fmt.Errorf("%w: data source min zoom %d above max zoom %d", domain.ErrInvalidArgument, source.MinZoom(), source.MaxZoom())
	}
	if source.MinZoom() < 0 || source.MaxZoom() > domain.MaxSupportedZoom {
		return nil, fmt.Errorf("%w: data source zoom range [%d, %d] outside [0, %d]", domain.ErrInvalidArgument, source.MinZoom(), source.MaxZoom(), domain.MaxSupportedZoom)
	}

	id := uuid.New()
	logger := logging.FromContext(ctx).With("component", "tilelayer", "layerID", id.String())
	ctx = logging.AddToContext(ctx, logger)

	l := &Layer[T]{
		id:                 id,
		ctx:                ctx,
		logger:             logger,
		source:             source,
		decoder:            decoder,
		pool:               pool,
		nowFunc:            nowFunc,
		registry:           newFetchRegistry[T](),
		visibleCache:       tilecache.New[T]("visible", DefaultVisibleCacheCapacity, nowFunc),
		preloadingCache:    tilecache.New[T]("preloading", DefaultPreloadingCacheCapacity, nowFunc),
		frameNr:            0,
		lastFrameNr:        -1,
		substitutionPolicy: domain.SubstitutionAll,
		maxOverzoomLevel:   MaxParentSearchDepth,
		maxUnderzoomLevel:  MaxChildSearchDepth,
		visible:            true,
		visibleZoomRange:   ZoomRange{Min: 0, Max: math.Inf(1)},
		updatePriority:     0,
	}
	l.self = weak.Make(l)
	l.listener = &sourceListener[T]{layer: l.self, logger: logger}
	source.AddChangeListener(l.listener)

	// Unregister from the source if the layer is dropped without Close
	runtime.AddCleanup(l, func(registration sourceRegistration) {
		registration.source.RemoveChangeListener(registration.listener)
	}, sourceRegistration{source: source, listener: l.listener})

	logger.InfoContext(ctx, "Created tile layer", "minZoom", source.MinZoom(), "maxZoom", source.MaxZoom())
	return l, nil
}

type sourceRegistration struct {
	source   DataSource
	listener domain.ChangeListener
}

// sourceListener forwards data source notifications without keeping the layer alive
type sourceListener[T any] struct {
	layer  weak.Pointer[Layer[T]]
	logger *slog.Logger
}

func (s *sourceListener[T]) OnTilesChanged(remove bool) {
	layer := s.layer.Value()
	if layer == nil {
		s.logger.Error("Lost connection to layer")
		return
	}
	layer.TilesChanged(layer.ctx, remove)
}

func (l *Layer[T]) ID() uuid.UUID {
	return l.id
}

func (l *Layer[T]) DataSource() DataSource {
	return l.source
}

// Close unregisters the layer from its data source and cancels queued fetches.
// Updates after Close are ignored.
func (l *Layer[T]) Close() {
	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return
	}
	l.closed = true
	l.mutex.Unlock()

	l.source.RemoveChangeListener(l.listener)
	for _, task := range l.registry.snapshot() {
		task.Cancel()
	}
	l.logger.InfoContext(l.ctx, "Closed tile layer")
}

// Update resolves the tiles for v and hands the result to the renderer
func (l *Layer[T]) Update(ctx context.Context, v view.State) {
	l.updateMutex.Lock()
	defer l.updateMutex.Unlock()

	l.update(ctx, v)
}

// Refresh re-resolves the last view passed to Update. It does nothing before the first Update.
func (l *Layer[T]) Refresh(ctx context.Context) {
	l.updateMutex.Lock()
	defer l.updateMutex.Unlock()

	l.mutex.Lock()
	v, ok := l.view, l.hasView && !l.closed
	l.mutex.Unlock()
	if !ok {
		return
	}

	l.update(ctx, v)
}

func (l *Layer[T]) update(ctx context.Context, v view.State) {
	l.calculating.Store(true)
	defer l.calculating.Store(false)

	// Queued fetches are rescheduled below if they are still needed
	for _, task := range l.registry.snapshot() {
		task.Cancel()
	}

	l.mutex.Lock()
	if l.closed {
		l.mutex.Unlock()
		return
	}
	l.view, l.hasView = v, true

	r := &resolution[T]{}
	if l.loadDataLocked(r, v) {
		l.refreshedTiles.Store(true)
	}
	l.refreshCachesLocked(r)

	renderer := l.renderer
	redrawRequester := l.redrawRequester
	synchronizedRefresh := l.synchronizedRefresh
	l.mutex.Unlock()

	metrics.resolutions.Add(ctx, 1)

	for _, s := range r.submissions {
		if !l.pool.Submit(s.task, s.priority) {
			logging.FromContext(ctx).WarnContext(ctx, "Fetch rejected by pool", "tile", s.task.tile.String())
			s.task.Cancel()
		}
	}

	if renderer == nil {
		return
	}
	if synchronizedRefresh && l.registry.visibleCount() > 0 {
		return
	}
	if renderer.RefreshTiles(r.drawData) && redrawRequester != nil {
		redrawRequester.RequestRedraw()
	}
}

// loadDataLocked fills r for view v. It returns false when the layer is not shown at this view.
func (l *Layer[T]) loadDataLocked(r *resolution[T], v view.State) bool {
	if !l.visible || !l.visibleZoomRange.Contains(v.Zoom()) {
		return false
	}

	if !l.tilesComputed || l.tilesFrameNr != l.frameNr || l.tilesView != v {
		l.calculateVisibleTilesLocked(v)
	}

	l.findTilesLocked(r, l.visibleTiles, false)

	if l.preloading {
		l.findTilesLocked(r, l.preloadingTiles, true)

		// Prefetch the parents of everything in view so zooming out has data at hand
		for _, tiles := range [][]domain.MapTile{l.visibleTiles, l.preloadingTiles} {
			for _, visTile := range tiles {
				if visTile.Zoom > 0 {
					l.fetchTileLocked(r, visTile.Wrapped().Parent(), true, false)
				}
			}
		}
	}
	return true
}

// UpdateTileLoadListener notifies the tile load listener when the last resolution has no
// outstanding fetches. Call it once per drawn frame.
func (l *Layer[T]) UpdateTileLoadListener() {
	l.mutex.Lock()
	listener := l.tileLoadListener
	preloading := l.preloading
	l.mutex.Unlock()

	if listener == nil || l.calculating.Load() {
		return
	}

	refreshed := l.refreshedTiles.Swap(false)
	if refreshed && l.registry.visibleCount() == 0 {
		listener.OnVisibleTilesLoaded()
	}
	if preloading && refreshed && l.registry.preloadingCount() == 0 {
		listener.OnPreloadingTilesLoaded()
	}
}

// IsUpdateInProgress reports whether any fetch is queued or running
func (l *Layer[T]) IsUpdateInProgress() bool {
	return l.registry.len() > 0
}

// TilesChanged drops or expires the cached tiles after the data source changed. Fetches in
// flight are invalidated so their results are not cached.
func (l *Layer[T]) TilesChanged(ctx context.Context, remove bool) {
	l.mutex.Lock()
	for _, task := range l.registry.snapshot() {
		task.Invalidate()
	}
	if remove {
		l.visibleCache.Clear()
		l.preloadingCache.Clear()
	} else {
		// Expired tiles stay displayable until their replacement arrives
		l.visibleCache.InvalidateAll(l.nowFunc())
		l.preloadingCache.Clear()
	}
	// The data extent may have changed
	l.tilesComputed = false
	l.mutex.Unlock()

	logging.FromContext(ctx).InfoContext(ctx, "Data source tiles changed", "remove", remove)
	l.Refresh(ctx)
}

// ClearTileCaches empties the preloading cache, and the visible cache too when all is set
func (l *Layer[T]) ClearTileCaches(all bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.preloadingCache.Clear()
	if all {
		l.visibleCache.Clear()
	}
}

// storeTile writes the result of task into its cache tier unless the task was invalidated
func (l *Layer[T]) storeTile(task *fetchTask[T], payload T, cost int64, maxAge time.Duration) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.closed || task.IsInvalidated() {
		return false
	}

	cache := l.cacheLocked(task.preloading)
	id := task.tile.ID()
	cache.Put(id, payload, cost+ExtraTileFootprint)
	if maxAge >= 0 {
		cache.Invalidate(id, l.nowFunc().Add(maxAge))
	}
	return true
}

func (l *Layer[T]) cacheLocked(preloading bool) *tilecache.Cache[T] {
	if preloading {
		return l.preloadingCache
	}
	return l.visibleCache
}

func (l *Layer[T]) existsLocked(tile domain.MapTile, preloading bool) bool {
	return l.cacheLocked(preloading).Exists(tile.ID())
}

func (l *Layer[T]) validLocked(tile domain.MapTile, preloading bool) bool {
	return l.cacheLocked(preloading).Valid(tile.ID())
}

func (l *Layer[T]) cachedLocked(tile domain.MapTile) bool {
	return l.existsLocked(tile, false) || l.existsLocked(tile, true)
}
