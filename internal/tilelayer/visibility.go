package tilelayer

import (
	"cmp"
	"math"
	"slices"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/view"
)

func (l *Layer[T]) calculateVisibleTilesLocked(v view.State) {
	l.visibleTiles = l.visibleTiles[:0]
	l.preloadingTiles = l.preloadingTiles[:0]

	extent := l.source.DataExtent()
	l.calculateVisibleTilesRecursiveLocked(v, domain.NewMapTile(0, 0, 0, l.frameNr), extent)
	if l.seamlessPanning {
		for i := 1; i <= seamlessPanningCopies; i++ {
			l.calculateVisibleTilesRecursiveLocked(v, domain.NewMapTile(-i, 0, 0, l.frameNr), extent)
			l.calculateVisibleTilesRecursiveLocked(v, domain.NewMapTile(i, 0, 0, l.frameNr), extent)
		}
	}

	l.sortTilesLocked(l.visibleTiles, v)
	l.sortTilesLocked(l.preloadingTiles, v)

	l.tilesComputed = true
	l.tilesView = v
	l.tilesFrameNr = l.frameNr
}

func (l *Layer[T]) calculateVisibleTilesRecursiveLocked(v view.State, tile domain.MapTile, extent domain.MapBounds) {
	if tile.Zoom > domain.MaxSupportedZoom {
		return
	}

	// The extent is in source orientation, y growing north
	if !domain.TileBounds(tile.Wrapped().Flipped()).Intersects(extent) {
		return
	}

	frustum := v.Frustum()
	bounds := domain.TileBounds(tile)
	center := bounds.Center()

	if !frustum.CircleIntersects(center, bounds.Delta().Length()*0.5*PreloadingTileScale) {
		return
	}
	inVisibleFrustum := frustum.SquareIntersects(bounds)

	zoomDistance := v.CameraPlaneDistance(center) * math.Pow(2, float64(tile.Zoom)-l.zoomLevelBias)
	subdivide := zoomDistance < SubdivisionThreshold*math.Sqrt2
	targetZoom := min(l.source.MaxZoom(), int(v.Zoom()+l.zoomLevelBias+DiscreteZoomLevelBias))
	if l.source.MinZoom() > tile.Zoom {
		subdivide = true
	} else if targetZoom <= tile.Zoom {
		subdivide = false
	}

	if subdivide {
		for n := range 4 {
			l.calculateVisibleTilesRecursiveLocked(v, tile.Child(n), extent)
		}
		return
	}

	if inVisibleFrustum {
		l.visibleTiles = append(l.visibleTiles, tile)
	} else {
		l.preloadingTiles = append(l.preloadingTiles, tile)
	}
}

// sortTilesLocked orders tiles so that those without any cached substitute come first, nearest
// to the camera first within each group
func (l *Layer[T]) sortTilesLocked(tiles []domain.MapTile, v view.State) {
	type taggedTile struct {
		parentCached int
		childCached  int
		distance     float64
		tile         domain.MapTile
	}

	tagged := make([]taggedTile, len(tiles))
	for i, tile := range tiles {
		wrapped := tile.Wrapped()

		parentCached := 0
		if wrapped.Zoom > 0 && l.cachedLocked(wrapped.Parent()) {
			parentCached = 1
		}
		childCached := 0
		for n := range 4 {
			if l.cachedLocked(wrapped.Child(n)) {
				childCached = 1
				break
			}
		}

		tagged[i] = taggedTile{
			parentCached: parentCached,
			childCached:  childCached,
			distance:     domain.TileBounds(tile).Center().Sub(v.CameraPos()).Length(),
			tile:         tile,
		}
	}

	slices.SortStableFunc(tagged, func(a, b taggedTile) int {
		return cmp.Or(
			cmp.Compare(a.parentCached, b.parentCached),
			cmp.Compare(a.childCached, b.childCached),
			cmp.Compare(a.distance, b.distance),
		)
	})

	for i, t := range tagged {
		tiles[i] = t.tile
	}
}
