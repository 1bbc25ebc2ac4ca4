package tilesource

import (
	"context"
	"errors"

	"github.com/Amund211/tilecore/internal/domain"
)

// forwardingListener relays change notifications of wrapped sources to our own listeners
type forwardingListener struct {
	target *changeListeners
	before func(remove bool)
}

func (f *forwardingListener) OnTilesChanged(remove bool) {
	if f.before != nil {
		f.before(remove)
	}
	f.target.notifyTilesChanged(remove)
}

// Ordered serves tiles from first, falling back to second for tiles first does not have
type Ordered struct {
	changeListeners

	first    Source
	second   Source
	listener *forwardingListener
}

func NewOrdered(first, second Source) *Ordered {
	o := &Ordered{
		first:  first,
		second: second,
	}
	o.listener = &forwardingListener{target: &o.changeListeners}
	first.AddChangeListener(o.listener)
	second.AddChangeListener(o.listener)
	return o
}

// Close stops forwarding change notifications
func (o *Ordered) Close() {
	o.first.RemoveChangeListener(o.listener)
	o.second.RemoveChangeListener(o.listener)
}

func (o *Ordered) MinZoom() int {
	return min(o.first.MinZoom(), o.second.MinZoom())
}

func (o *Ordered) MaxZoom() int {
	return max(o.first.MaxZoom(), o.second.MaxZoom())
}

func (o *Ordered) DataExtent() domain.MapBounds {
	return o.first.DataExtent().Union(o.second.DataExtent())
}

func covers(source Source, tile domain.MapTile) bool {
	return tile.Zoom >= source.MinZoom() && tile.Zoom <= source.MaxZoom()
}

// LoadTile returns the first real tile data. A replace-with-parent answer of the first source
// only wins when the second source has nothing, and a failure of the first source is only
// returned when the second one has nothing either.
func (o *Ordered) LoadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	var fallback *domain.TileData
	var firstErr error

	if covers(o.first, tile) {
		data, err := o.first.LoadTile(ctx, tile)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, err
			}
			firstErr = err
		case data != nil && !data.ReplaceWithParent:
			return data, nil
		default:
			fallback = data
		}
	}

	if covers(o.second, tile) {
		data, err := o.second.LoadTile(ctx, tile)
		if err != nil {
			return nil, errors.Join(firstErr, err)
		}
		if data != nil && (!data.ReplaceWithParent || fallback == nil) {
			return data, nil
		}
	}

	return fallback, firstErr
}
