package tilelayer

import (
	"context"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/workpool"
)

// DataSource provides raw tile bytes
//
// LoadTile returns nil data (and no error) when the tile does not exist.
type DataSource interface {
	MinZoom() int
	MaxZoom() int
	DataExtent() domain.MapBounds
	LoadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error)
	AddChangeListener(listener domain.ChangeListener)
	RemoveChangeListener(listener domain.ChangeListener)
}

// Decoder turns the bytes of sourceTile into the payload for tile, returning the payload and its
// resident size in bytes. sourceTile is tile or one of its ancestors.
type Decoder[T any] interface {
	Decode(ctx context.Context, tile, sourceTile domain.MapTile, data []byte) (T, int64, error)
}

// Renderer receives the complete draw list after every resolution. It returns true when the
// displayed content changed.
//
// RefreshTiles must not call back into the layer.
type Renderer[T any] interface {
	RefreshTiles(drawData []DrawData[T]) bool
}

type RedrawRequester interface {
	RequestRedraw()
}

type TileLoadListener interface {
	OnVisibleTilesLoaded()
	OnPreloadingTilesLoaded()
}

// WorkPool runs fetch tasks. Submit must not run the task on the calling goroutine.
type WorkPool interface {
	Submit(task workpool.Task, priority int) bool
}

// DrawData is one entry of the draw list
type DrawData[T any] struct {
	// VisibleTile is where to draw. It equals the requested visible tile, except for child
	// substitutes, which are drawn at their own position shifted into the world copy being drawn.
	VisibleTile domain.MapTile
	// SourceTile is the cached tile the payload belongs to
	SourceTile domain.MapTile
	SourceID   domain.TileID
	Payload    T
	Preloading bool
}

var _ WorkPool = (*workpool.Pool)(nil)
