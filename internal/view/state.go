// Package view describes the camera that tile visibility is computed against.
//
// The camera looks down on the map plane, optionally tilted towards the north. Positions use the
// internal map coordinates of the domain package, where the primary world spans [0, 1].
package view

import (
	"math"

	"github.com/Amund211/tilecore/internal/domain"
)

// TileSizePixels is the on-screen size of a tile when the view zoom equals the tile zoom
const TileSizePixels = 256

// maxTiltExtension is how far a fully tilted camera sees beyond the top edge, in view heights
const maxTiltExtension = 2.0

type State struct {
	center  domain.MapPos
	zoom    float64
	width   int
	height  int
	tilt    float64
	frustum Frustum
}

// NewState builds a view of width x height pixels centered on center. tilt in [0, 1] extends the
// view northwards and makes distant tiles coarser.
func NewState(center domain.MapPos, zoom float64, width, height int, tilt float64) State {
	tilt = math.Max(0, math.Min(1, tilt))

	scale := 1 / (TileSizePixels * math.Pow(2, zoom))
	halfWidth := float64(width) / 2 * scale
	halfHeight := float64(height) / 2 * scale
	north := halfHeight * (1 + tilt*maxTiltExtension)

	return State{
		center: center,
		zoom:   zoom,
		width:  width,
		height: height,
		tilt:   tilt,
		frustum: Frustum{bounds: domain.NewMapBounds(
			domain.MapPos{X: center.X - halfWidth, Y: center.Y - north},
			domain.MapPos{X: center.X + halfWidth, Y: center.Y + halfHeight},
		)},
	}
}

func (s State) Zoom() float64 {
	return s.zoom
}

func (s State) Width() int {
	return s.width
}

func (s State) Height() int {
	return s.height
}

// CameraPos is the ground position below the camera
func (s State) CameraPos() domain.MapPos {
	return s.center
}

func (s State) Frustum() Frustum {
	return s.frustum
}

// CameraPlaneDistance is the depth of pos measured along the view direction. It is 2^-zoom below
// the camera and grows towards the horizon of a tilted view.
func (s State) CameraPlaneDistance(pos domain.MapPos) float64 {
	base := math.Pow(2, -s.zoom)
	if s.tilt == 0 || s.height == 0 {
		return base
	}
	halfHeight := float64(s.height) / 2 / (TileSizePixels * math.Pow(2, s.zoom))
	ahead := math.Max(0, (s.center.Y-pos.Y)/halfHeight)
	return base * (1 + s.tilt*ahead)
}

// Frustum is the ground area seen by the camera
type Frustum struct {
	bounds domain.MapBounds
}

func NewFrustum(bounds domain.MapBounds) Frustum {
	return Frustum{bounds: bounds}
}

func (f Frustum) Bounds() domain.MapBounds {
	return f.bounds
}

// CircleIntersects reports whether any point within radius of center is visible
func (f Frustum) CircleIntersects(center domain.MapPos, radius float64) bool {
	dx := math.Max(0, math.Max(f.bounds.Min.X-center.X, center.X-f.bounds.Max.X))
	dy := math.Max(0, math.Max(f.bounds.Min.Y-center.Y, center.Y-f.bounds.Max.Y))
	return dx*dx+dy*dy <= radius*radius
}

func (f Frustum) SquareIntersects(bounds domain.MapBounds) bool {
	return f.bounds.Intersects(bounds)
}
