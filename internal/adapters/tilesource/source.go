// Package tilesource loads raw tile bytes from local and remote stores.
//
// Every source reports missing tiles as nil data without an error. Errors are reserved for
// failures that may succeed when retried.
package tilesource

import (
	"context"
	"slices"
	"sync"

	"github.com/Amund211/tilecore/internal/domain"
)

type Source interface {
	MinZoom() int
	MaxZoom() int
	DataExtent() domain.MapBounds
	LoadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error)
	AddChangeListener(listener domain.ChangeListener)
	RemoveChangeListener(listener domain.ChangeListener)
}

// changeListeners implements the listener half of Source
type changeListeners struct {
	mutex     sync.Mutex
	listeners []domain.ChangeListener
}

func (c *changeListeners) AddChangeListener(listener domain.ChangeListener) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.listeners = append(c.listeners, listener)
}

func (c *changeListeners) RemoveChangeListener(listener domain.ChangeListener) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.listeners = slices.DeleteFunc(c.listeners, func(l domain.ChangeListener) bool {
		return l == listener
	})
}

// notifyTilesChanged calls the listeners without holding the lock, so they may load tiles
func (c *changeListeners) notifyTilesChanged(remove bool) {
	c.mutex.Lock()
	listeners := slices.Clone(c.listeners)
	c.mutex.Unlock()

	for _, listener := range listeners {
		listener.OnTilesChanged(remove)
	}
}

// zoomRange is the static part of a Source
type zoomRange struct {
	minZoom int
	maxZoom int
	extent  domain.MapBounds
}

func (z zoomRange) MinZoom() int {
	return z.minZoom
}

func (z zoomRange) MaxZoom() int {
	return z.maxZoom
}

func (z zoomRange) DataExtent() domain.MapBounds {
	return z.extent
}

func (z zoomRange) contains(tile domain.MapTile) bool {
	return tile.Zoom >= z.minZoom && tile.Zoom <= z.maxZoom
}
