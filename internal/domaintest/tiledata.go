// Package domaintest builds domain values for tests
package domaintest

import (
	"time"

	"github.com/Amund211/tilecore/internal/domain"
)

type tileDataBuilder struct {
	data *domain.TileData
}

func (b *tileDataBuilder) WithMaxAge(maxAge time.Duration) *tileDataBuilder {
	b.data.MaxAge = maxAge
	return b
}

func (b *tileDataBuilder) ReplaceWithParent() *tileDataBuilder {
	b.data.ReplaceWithParent = true
	return b
}

func (b *tileDataBuilder) Build() domain.TileData {
	return *b.data
}

func (b *tileDataBuilder) BuildPtr() *domain.TileData {
	// Make a copy, so further mutations to the builder don't affect the returned data
	data := b.Build()
	data.Data = append([]byte(nil), b.data.Data...)
	return &data
}

// NewTileDataBuilder starts from data that never expires
func NewTileDataBuilder(data []byte) *tileDataBuilder {
	return &tileDataBuilder{
		data: &domain.TileData{
			Data:   data,
			MaxAge: domain.NoExpiry,
		},
	}
}

// TilesAtZoom lists every tile of the grid at zoom, row by row
func TilesAtZoom(zoom, frameNr int) []domain.MapTile {
	size := 1 << zoom
	tiles := make([]domain.MapTile, 0, size*size)
	for y := range size {
		for x := range size {
			tiles = append(tiles, domain.NewMapTile(x, y, zoom, frameNr))
		}
	}
	return tiles
}
