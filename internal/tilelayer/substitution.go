package tilelayer

import (
	"context"

	"github.com/Amund211/tilecore/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// cachesToSearchLocked lists the tiers, by preloading flag, that may supply substitutes
func (l *Layer[T]) cachesToSearchLocked(preloadingTiles bool) []bool {
	if l.substitutionPolicy == domain.SubstitutionVisible && !preloadingTiles {
		return []bool{false}
	}
	return []bool{false, true}
}

// findTilesLocked emits draw data for each of visTiles from the exact tile or the best cached
// substitute, and schedules fetches for tiles that are missing or stale
func (l *Layer[T]) findTilesLocked(r *resolution[T], visTiles []domain.MapTile, preloadingTiles bool) {
	for _, visTile := range visTiles {
		tile := visTile.Wrapped()

		if l.cachedLocked(tile) {
			l.calculateDrawDataLocked(r, visTile, tile, preloadingTiles)

			if !l.validLocked(tile, preloadingTiles) && !l.validLocked(tile, !preloadingTiles) {
				l.fetchTileLocked(r, tile, preloadingTiles, true)
			}
			continue
		}

		for _, preloadingCache := range l.cachesToSearchLocked(preloadingTiles) {
			if l.findSubstituteLocked(r, visTile, tile, preloadingCache, preloadingTiles) {
				break
			}
		}

		l.fetchTileLocked(r, tile, preloadingTiles, false)
	}
}

func (l *Layer[T]) findSubstituteLocked(r *resolution[T], visTile, tile domain.MapTile, preloadingCache, preloadingTile bool) bool {
	prevFrameTile := tile.WithFrameNr(l.lastFrameNr)
	if l.lastFrameNr >= 0 && l.existsLocked(prevFrameTile, preloadingCache) {
		l.calculateDrawDataLocked(r, visTile, prevFrameTile, preloadingTile)
		recordSubstitution("previous_frame")
		return true
	}

	if tile.Zoom > 0 && l.findParentTileLocked(r, visTile, tile, l.maxOverzoomLevel, preloadingCache, preloadingTile) {
		recordSubstitution("parent")
		return true
	}

	if l.findChildTilesLocked(r, visTile, tile, l.maxUnderzoomLevel, preloadingCache, preloadingTile) > 0 {
		recordSubstitution("child")
		return true
	}
	return false
}

// findParentTileLocked emits the nearest cached ancestor within depth levels
func (l *Layer[T]) findParentTileLocked(r *resolution[T], visTile, tile domain.MapTile, depth int, preloadingCache, preloadingTile bool) bool {
	for ; tile.Zoom > 0 && depth > 0; depth-- {
		tile = tile.Parent()
		if l.existsLocked(tile, preloadingCache) {
			l.calculateDrawDataLocked(r, visTile, tile, preloadingTile)
			return true
		}
	}
	return false
}

// findChildTilesLocked emits every cached descendant within depth levels, not descending below
// cached children, and returns how many were emitted
func (l *Layer[T]) findChildTilesLocked(r *resolution[T], visTile, tile domain.MapTile, depth int, preloadingCache, preloadingTile bool) int {
	if depth <= 0 {
		return 0
	}

	count := 0
	for n := range 4 {
		child := tile.Child(n)
		if l.existsLocked(child, preloadingCache) {
			l.calculateDrawDataLocked(r, visTile, child, preloadingTile)
			count++
		} else {
			count += l.findChildTilesLocked(r, visTile, child, depth-1, preloadingCache, preloadingTile)
		}
	}
	return count
}

// calculateDrawDataLocked appends the draw data for visTile backed by the cached closestTile
func (l *Layer[T]) calculateDrawDataLocked(r *resolution[T], visTile, closestTile domain.MapTile, preloadingTile bool) {
	id := closestTile.ID()
	payload, ok := l.visibleCache.Peek(id)
	if !ok {
		payload, ok = l.preloadingCache.Peek(id)
	}
	if !ok {
		return
	}

	drawTile := visTile
	if closestTile.Zoom > visTile.Zoom {
		// Place the finer tile in the world copy of visTile
		dx := visTile.X >> visTile.Zoom
		dy := visTile.Y >> visTile.Zoom
		drawTile = domain.NewMapTile(
			closestTile.X+(dx<<closestTile.Zoom),
			closestTile.Y+(dy<<closestTile.Zoom),
			closestTile.Zoom,
			closestTile.FrameNr,
		)
	}

	r.drawData = append(r.drawData, DrawData[T]{
		VisibleTile: drawTile,
		SourceTile:  closestTile,
		SourceID:    id,
		Payload:     payload,
		Preloading:  preloadingTile,
	})
}

func recordSubstitution(kind string) {
	metrics.substitutions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}
