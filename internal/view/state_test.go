package view_test

import (
	"math"
	"testing"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/view"
	"github.com/stretchr/testify/require"
)

func TestState(t *testing.T) {
	t.Parallel()

	t.Run("zoom 0 view of one tile covers the world", func(t *testing.T) {
		t.Parallel()

		state := view.NewState(domain.MapPos{X: 0.5, Y: 0.5}, 0, view.TileSizePixels, view.TileSizePixels, 0)
		bounds := state.Frustum().Bounds()
		require.InDelta(t, 0, bounds.Min.X, 1e-12)
		require.InDelta(t, 0, bounds.Min.Y, 1e-12)
		require.InDelta(t, 1, bounds.Max.X, 1e-12)
		require.InDelta(t, 1, bounds.Max.Y, 1e-12)
		require.Equal(t, domain.MapPos{X: 0.5, Y: 0.5}, state.CameraPos())
	})

	t.Run("visible area halves per zoom level", func(t *testing.T) {
		t.Parallel()

		a := view.NewState(domain.MapPos{X: 0.5, Y: 0.5}, 3, 800, 600, 0).Frustum().Bounds().Delta()
		b := view.NewState(domain.MapPos{X: 0.5, Y: 0.5}, 4, 800, 600, 0).Frustum().Bounds().Delta()
		require.InDelta(t, a.X/2, b.X, 1e-12)
		require.InDelta(t, a.Y/2, b.Y, 1e-12)
	})

	t.Run("flat camera plane distance", func(t *testing.T) {
		t.Parallel()

		state := view.NewState(domain.MapPos{X: 0.5, Y: 0.5}, 2, 800, 600, 0)
		require.InDelta(t, 0.25, state.CameraPlaneDistance(domain.MapPos{X: 0.1, Y: 0.1}), 1e-12)
		require.InDelta(t, 0.25, state.CameraPlaneDistance(domain.MapPos{X: 0.9, Y: 0.9}), 1e-12)
	})

	t.Run("tilted camera sees further north at greater depth", func(t *testing.T) {
		t.Parallel()

		flat := view.NewState(domain.MapPos{X: 0.5, Y: 0.5}, 4, 800, 600, 0)
		tilted := view.NewState(domain.MapPos{X: 0.5, Y: 0.5}, 4, 800, 600, 1)

		require.Less(t, tilted.Frustum().Bounds().Min.Y, flat.Frustum().Bounds().Min.Y)
		require.InDelta(t, flat.Frustum().Bounds().Max.Y, tilted.Frustum().Bounds().Max.Y, 1e-12)

		near := tilted.CameraPlaneDistance(domain.MapPos{X: 0.5, Y: 0.5})
		far := tilted.CameraPlaneDistance(domain.MapPos{X: 0.5, Y: 0.4})
		behind := tilted.CameraPlaneDistance(domain.MapPos{X: 0.5, Y: 0.6})
		require.InDelta(t, math.Pow(2, -4), near, 1e-12)
		require.Greater(t, far, near)
		require.InDelta(t, near, behind, 1e-12)
	})

	t.Run("states compare by value", func(t *testing.T) {
		t.Parallel()

		a := view.NewState(domain.MapPos{X: 0.5, Y: 0.5}, 4, 800, 600, 0)
		b := view.NewState(domain.MapPos{X: 0.5, Y: 0.5}, 4, 800, 600, 0)
		c := view.NewState(domain.MapPos{X: 0.5, Y: 0.5}, 4.5, 800, 600, 0)
		require.True(t, a == b)
		require.False(t, a == c)
	})
}

func TestFrustum(t *testing.T) {
	t.Parallel()

	frustum := view.NewFrustum(domain.NewMapBounds(domain.MapPos{X: 0.25, Y: 0.25}, domain.MapPos{X: 0.5, Y: 0.5}))

	cases := []struct {
		name   string
		center domain.MapPos
		radius float64
		want   bool
	}{
		{"inside", domain.MapPos{X: 0.3, Y: 0.3}, 0.001, true},
		{"reaching edge", domain.MapPos{X: 0.6, Y: 0.3}, 0.1001, true},
		{"outside edge", domain.MapPos{X: 0.6, Y: 0.3}, 0.09, false},
		{"corner reached", domain.MapPos{X: 0.53, Y: 0.54}, 0.051, true},
		{"corner missed", domain.MapPos{X: 0.53, Y: 0.54}, 0.049, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, c.want, frustum.CircleIntersects(c.center, c.radius))
		})
	}

	require.True(t, frustum.SquareIntersects(domain.TileBounds(domain.NewMapTile(0, 0, 1, 0))))
	require.False(t, frustum.SquareIntersects(domain.TileBounds(domain.NewMapTile(3, 3, 2, 0))))
}
