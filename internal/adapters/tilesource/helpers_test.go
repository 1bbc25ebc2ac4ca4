package tilesource_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Amund211/tilecore/internal/adapters/tilesource"
	"github.com/Amund211/tilecore/internal/domain"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mutex sync.Mutex
	calls []bool
}

func (l *recordingListener) OnTilesChanged(remove bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.calls = append(l.calls, remove)
}

func (l *recordingListener) Calls() []bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return append([]bool(nil), l.calls...)
}

// countingSource counts loads and optionally blocks them until release is closed
type countingSource struct {
	tilesource.Source

	loads   atomic.Int64
	started chan struct{}
	release chan struct{}
}

func (c *countingSource) LoadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	c.loads.Add(1)
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.Source.LoadTile(ctx, tile)
}

func newMemory(t *testing.T, minZoom, maxZoom int) *tilesource.Memory {
	t.Helper()
	memory, err := tilesource.NewMemory(minZoom, maxZoom)
	require.NoError(t, err)
	return memory
}
