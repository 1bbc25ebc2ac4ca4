package tilesource

import (
	"context"
	"fmt"
	"sync"

	"github.com/Amund211/tilecore/internal/domain"
)

// Memory serves tiles from a map. Tiles are keyed including their frame number.
type Memory struct {
	changeListeners

	mutex   sync.Mutex
	minZoom int
	maxZoom int
	extent  domain.MapBounds
	tiles   map[domain.TileID]*domain.TileData
}

func NewMemory(minZoom, maxZoom int) (*Memory, error) {
	if err := validateZoomRange(minZoom, maxZoom); err != nil {
		return nil, err
	}
	return &Memory{
		minZoom: minZoom,
		maxZoom: maxZoom,
		extent:  domain.WorldBounds,
		tiles:   make(map[domain.TileID]*domain.TileData),
	}, nil
}

func validateZoomRange(minZoom, maxZoom int) error {
	if minZoom < 0 || maxZoom > domain.MaxSupportedZoom || minZoom > maxZoom {
		return fmt.Errorf("%w: zoom range [%d, %d]", domain.ErrInvalidArgument, minZoom, maxZoom)
	}
	return nil
}

func (m *Memory) MinZoom() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.minZoom
}

func (m *Memory) MaxZoom() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.maxZoom
}

func (m *Memory) DataExtent() domain.MapBounds {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.extent
}

// SetZoomRange changes the advertised zoom range and tells listeners to reload
func (m *Memory) SetZoomRange(minZoom, maxZoom int) error {
	if err := validateZoomRange(minZoom, maxZoom); err != nil {
		return err
	}
	m.mutex.Lock()
	m.minZoom = minZoom
	m.maxZoom = maxZoom
	m.mutex.Unlock()

	m.notifyTilesChanged(false)
	return nil
}

func (m *Memory) SetDataExtent(extent domain.MapBounds) {
	m.mutex.Lock()
	m.extent = extent
	m.mutex.Unlock()

	m.notifyTilesChanged(false)
}

// SetTile stores data for tile without notifying listeners. Call NotifyTilesChanged once a
// batch of updates is complete.
func (m *Memory) SetTile(tile domain.MapTile, data *domain.TileData) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.tiles[tile.ID()] = data
}

func (m *Memory) RemoveTile(tile domain.MapTile) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.tiles, tile.ID())
}

func (m *Memory) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tiles)
}

func (m *Memory) NotifyTilesChanged(remove bool) {
	m.notifyTilesChanged(remove)
}

func (m *Memory) LoadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !tile.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidTile, tile)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if tile.Zoom < m.minZoom || tile.Zoom > m.maxZoom {
		return nil, nil
	}
	return m.tiles[tile.ID()], nil
}
