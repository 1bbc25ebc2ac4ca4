package domain

import "math"

// MapPos is a position in internal map coordinates. The whole world spans [0, 1] on both axes,
// with y growing southwards like the tile grid.
type MapPos struct {
	X float64
	Y float64
}

func (p MapPos) Sub(o MapPos) MapPos {
	return MapPos{X: p.X - o.X, Y: p.Y - o.Y}
}

func (p MapPos) Length() float64 {
	return math.Hypot(p.X, p.Y)
}

type MapBounds struct {
	Min MapPos
	Max MapPos
}

// WorldBounds covers the primary world copy
var WorldBounds = MapBounds{Min: MapPos{X: 0, Y: 0}, Max: MapPos{X: 1, Y: 1}}

func NewMapBounds(a, b MapPos) MapBounds {
	return MapBounds{
		Min: MapPos{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)},
		Max: MapPos{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y)},
	}
}

func (b MapBounds) Center() MapPos {
	return MapPos{X: (b.Min.X + b.Max.X) / 2, Y: (b.Min.Y + b.Max.Y) / 2}
}

func (b MapBounds) Delta() MapPos {
	return b.Max.Sub(b.Min)
}

// Intersects treats bounds as closed intervals
func (b MapBounds) Intersects(o MapBounds) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y
}

func (b MapBounds) Union(o MapBounds) MapBounds {
	return MapBounds{
		Min: MapPos{X: math.Min(b.Min.X, o.Min.X), Y: math.Min(b.Min.Y, o.Min.Y)},
		Max: MapPos{X: math.Max(b.Max.X, o.Max.X), Y: math.Max(b.Max.Y, o.Max.Y)},
	}
}

// TileBounds returns the area covered by the tile. Tiles outside the primary grid horizontally
// map to the neighbouring world copies.
func TileBounds(tile MapTile) MapBounds {
	size := 1.0 / float64(int64(1)<<tile.Zoom)
	minX := float64(tile.X) * size
	minY := float64(tile.Y) * size
	return MapBounds{
		Min: MapPos{X: minX, Y: minY},
		Max: MapPos{X: minX + size, Y: minY + size},
	}
}
