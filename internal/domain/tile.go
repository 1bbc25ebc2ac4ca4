package domain

import "fmt"

// MaxSupportedZoom is the deepest zoom level any tile can have
const MaxSupportedZoom = 24

const (
	coordBits = 24
	coordMask = 1<<coordBits - 1
	zoomBits  = 5
	zoomMask  = 1<<zoomBits - 1
	frameBits = 10
	frameMask = 1<<frameBits - 1
)

// MaxFrameNr is the highest frame number a tile identity can hold
const MaxFrameNr = frameMask

// TileID is the packed 64 bit identity of a MapTile, used as cache and registry key
type TileID int64

// MapTile identifies one tile of the XYZ tile grid, optionally for one frame of an animated layer
type MapTile struct {
	X       int
	Y       int
	Zoom    int
	FrameNr int
}

func NewMapTile(x, y, zoom, frameNr int) MapTile {
	return MapTile{X: x, Y: y, Zoom: zoom, FrameNr: frameNr}
}

// ID packs the tile as frameNr<<53 | zoom<<48 | x<<24 | y
//
// Coordinates outside the grid (seamless panning copies) must be wrapped before packing, and
// the frame number must be within [0, MaxFrameNr]
func (t MapTile) ID() TileID {
	return TileID(int64(t.FrameNr&frameMask)<<(2*coordBits+zoomBits) |
		int64(t.Zoom&zoomMask)<<(2*coordBits) |
		int64(t.X&coordMask)<<coordBits |
		int64(t.Y&coordMask))
}

func (t MapTile) Parent() MapTile {
	return MapTile{X: t.X >> 1, Y: t.Y >> 1, Zoom: t.Zoom - 1, FrameNr: t.FrameNr}
}

// Child returns child n (0..3), ordered top-left, top-right, bottom-left, bottom-right
func (t MapTile) Child(n int) MapTile {
	return MapTile{X: t.X*2 + n&1, Y: t.Y*2 + n>>1, Zoom: t.Zoom + 1, FrameNr: t.FrameNr}
}

// Flipped mirrors the y coordinate between the XYZ and TMS schemes
func (t MapTile) Flipped() MapTile {
	return MapTile{X: t.X, Y: (1 << t.Zoom) - 1 - t.Y, Zoom: t.Zoom, FrameNr: t.FrameNr}
}

// Wrapped maps the tile into the primary world copy
func (t MapTile) Wrapped() MapTile {
	mask := (1 << t.Zoom) - 1
	return MapTile{X: t.X & mask, Y: t.Y & mask, Zoom: t.Zoom, FrameNr: t.FrameNr}
}

func (t MapTile) WithFrameNr(frameNr int) MapTile {
	t.FrameNr = frameNr
	return t
}

// ValidFrameNr reports whether frameNr fits in a tile identity
func ValidFrameNr(frameNr int) bool {
	return frameNr >= 0 && frameNr <= MaxFrameNr
}

// Valid reports whether the tile lies within the primary grid at a supported zoom and frame
func (t MapTile) Valid() bool {
	if t.Zoom < 0 || t.Zoom > MaxSupportedZoom || !ValidFrameNr(t.FrameNr) {
		return false
	}
	size := 1 << t.Zoom
	return t.X >= 0 && t.X < size && t.Y >= 0 && t.Y < size
}

func (t MapTile) String() string {
	return fmt.Sprintf("%d/%d/%d@%d", t.Zoom, t.X, t.Y, t.FrameNr)
}
