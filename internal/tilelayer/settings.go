package tilelayer

import (
	"fmt"

	"github.com/Amund211/tilecore/internal/domain"
)

func (l *Layer[T]) FrameNr() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.frameNr
}

// SetFrameNr switches an animated layer to another frame. Tiles of the previous frame are used
// as substitutes while the new frame loads.
func (l *Layer[T]) SetFrameNr(frameNr int) {
	if !domain.ValidFrameNr(frameNr) {
		panic(fmt.Sprintf("tilelayer: frame number %d outside [0, %d]", frameNr, domain.MaxFrameNr))
	}

	l.mutex.Lock()
	l.lastFrameNr = l.frameNr
	l.frameNr = frameNr
	l.mutex.Unlock()

	l.Refresh(l.ctx)
}

func (l *Layer[T]) IsPreloading() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.preloading
}

// SetPreloading enables loading of tiles just outside the view and of the parents of visible tiles
func (l *Layer[T]) SetPreloading(preloading bool) {
	l.mutex.Lock()
	l.preloading = preloading
	l.mutex.Unlock()

	l.Refresh(l.ctx)
}

func (l *Layer[T]) SubstitutionPolicy() domain.SubstitutionPolicy {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.substitutionPolicy
}

func (l *Layer[T]) SetSubstitutionPolicy(policy domain.SubstitutionPolicy) {
	l.mutex.Lock()
	l.substitutionPolicy = policy
	l.mutex.Unlock()

	l.Refresh(l.ctx)
}

func (l *Layer[T]) ZoomLevelBias() float64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.zoomLevelBias
}

// SetZoomLevelBias shifts the zoom level tiles are loaded at. Positive values load finer tiles.
func (l *Layer[T]) SetZoomLevelBias(bias float64) {
	l.mutex.Lock()
	l.zoomLevelBias = bias
	l.tilesComputed = false
	l.mutex.Unlock()

	l.Refresh(l.ctx)
}

func (l *Layer[T]) MaxOverzoomLevel() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.maxOverzoomLevel
}

// SetMaxOverzoomLevel limits how many levels up a parent substitute is searched for
func (l *Layer[T]) SetMaxOverzoomLevel(levels int) {
	if levels < 0 {
		panic(fmt.Sprintf("tilelayer: negative overzoom level %d", levels))
	}

	l.mutex.Lock()
	l.maxOverzoomLevel = levels
	l.mutex.Unlock()

	l.Refresh(l.ctx)
}

func (l *Layer[T]) MaxUnderzoomLevel() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.maxUnderzoomLevel
}

// SetMaxUnderzoomLevel limits how many levels down child substitutes are searched for
func (l *Layer[T]) SetMaxUnderzoomLevel(levels int) {
	if levels < 0 {
		panic(fmt.Sprintf("tilelayer: negative underzoom level %d", levels))
	}

	l.mutex.Lock()
	l.maxUnderzoomLevel = levels
	l.mutex.Unlock()

	l.Refresh(l.ctx)
}

func (l *Layer[T]) IsSynchronizedRefresh() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.synchronizedRefresh
}

// SetSynchronizedRefresh holds back renderer updates while visible tiles are loading, so that
// all of them appear at once
func (l *Layer[T]) SetSynchronizedRefresh(synchronizedRefresh bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.synchronizedRefresh = synchronizedRefresh
}

func (l *Layer[T]) IsVisible() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.visible
}

func (l *Layer[T]) SetVisible(visible bool) {
	l.mutex.Lock()
	l.visible = visible
	l.mutex.Unlock()

	l.Refresh(l.ctx)
}

func (l *Layer[T]) VisibleZoomRange() ZoomRange {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.visibleZoomRange
}

// SetVisibleZoomRange limits the view zoom levels the layer is drawn at
func (l *Layer[T]) SetVisibleZoomRange(zoomRange ZoomRange) {
	if zoomRange.Min > zoomRange.Max {
		panic(fmt.Sprintf("tilelayer: invalid zoom range [%g, %g]", zoomRange.Min, zoomRange.Max))
	}

	l.mutex.Lock()
	l.visibleZoomRange = zoomRange
	l.mutex.Unlock()

	l.Refresh(l.ctx)
}

func (l *Layer[T]) UpdatePriority() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.updatePriority
}

// SetUpdatePriority sets the pool priority of visible fetches. Preloading fetches run at
// PreloadingPriorityOffset below it.
func (l *Layer[T]) SetUpdatePriority(priority int) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.updatePriority = priority
}

func (l *Layer[T]) IsSeamlessPanning() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.seamlessPanning
}

// SetSeamlessPanning makes the layer cover the world copies on both sides of the primary world
func (l *Layer[T]) SetSeamlessPanning(seamlessPanning bool) {
	l.mutex.Lock()
	l.seamlessPanning = seamlessPanning
	l.tilesComputed = false
	l.mutex.Unlock()

	l.Refresh(l.ctx)
}

func (l *Layer[T]) VisibleCacheCapacity() int64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.visibleCache.Capacity()
}

func (l *Layer[T]) SetVisibleCacheCapacity(capacity int64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.visibleCache.Resize(capacity)
}

func (l *Layer[T]) PreloadingCacheCapacity() int64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.preloadingCache.Capacity()
}

func (l *Layer[T]) SetPreloadingCacheCapacity(capacity int64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.preloadingCache.Resize(capacity)
}

func (l *Layer[T]) SetRenderer(renderer Renderer[T]) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.renderer = renderer
}

func (l *Layer[T]) SetRedrawRequester(redrawRequester RedrawRequester) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.redrawRequester = redrawRequester
}

func (l *Layer[T]) SetTileLoadListener(listener TileLoadListener) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.tileLoadListener = listener
}
