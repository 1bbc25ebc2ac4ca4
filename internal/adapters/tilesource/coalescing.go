package tilesource

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Amund211/tilecore/internal/adapters/cache"
	"github.com/Amund211/tilecore/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Coalescing shares the result of one load between all callers asking for the same tile at
// the same time, or shortly after. Several layers over one source then cost one request.
type Coalescing struct {
	changeListeners

	source     Source
	cache      cache.Cache[*domain.TileData]
	generation atomic.Int64
	listener   *forwardingListener
}

// NewCoalescing remembers results for ttl. Results are forgotten early when source reports a
// change.
func NewCoalescing(source Source, ttl time.Duration) *Coalescing {
	return newCoalescing(source, cache.NewTTLCache[*domain.TileData](ttl))
}

func newCoalescing(source Source, c cache.Cache[*domain.TileData]) *Coalescing {
	s := &Coalescing{
		source: source,
		cache:  c,
	}
	s.listener = &forwardingListener{
		target: &s.changeListeners,
		before: func(bool) {
			s.generation.Add(1)
		},
	}
	source.AddChangeListener(s.listener)
	return s
}

// Close detaches from the source and stops expiring remembered results
func (s *Coalescing) Close() {
	s.source.RemoveChangeListener(s.listener)
	s.cache.Stop()
}

func (s *Coalescing) MinZoom() int {
	return s.source.MinZoom()
}

func (s *Coalescing) MaxZoom() int {
	return s.source.MaxZoom()
}

func (s *Coalescing) DataExtent() domain.MapBounds {
	return s.source.DataExtent()
}

func (s *Coalescing) LoadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	key := fmt.Sprintf("%d:%s", s.generation.Load(), tile)

	data, created, err := cache.GetOrCreate(ctx, s.cache, key, func() (*domain.TileData, error) {
		return s.source.LoadTile(ctx, tile)
	})
	if err != nil {
		return nil, err
	}
	if !created {
		metrics.coalesced.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", loadOutcome(data, nil))))
	}
	return data, nil
}
