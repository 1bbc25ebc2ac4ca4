package domain

import "time"

// NoExpiry marks tile data that never goes stale
const NoExpiry time.Duration = -1

// TileData is what a data source returns for one tile
type TileData struct {
	Data []byte
	// MaxAge after which the tile should be refreshed, negative for never
	MaxAge time.Duration
	// ReplaceWithParent asks the caller to use the parent tile instead
	ReplaceWithParent bool
}

func NewTileData(data []byte, maxAge time.Duration) *TileData {
	return &TileData{Data: data, MaxAge: maxAge}
}

func NewReplaceWithParentTileData() *TileData {
	return &TileData{MaxAge: NoExpiry, ReplaceWithParent: true}
}

// ChangeListener is notified by data sources when their tiles change. When remove is true the
// old tiles must not be displayed anymore, otherwise they may stay visible until replaced.
type ChangeListener interface {
	OnTilesChanged(remove bool)
}
