package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/view"
)

// Waypoint is one camera position of a flight path
type Waypoint struct {
	Center domain.MapPos
	Zoom   float64
	Tilt   float64
}

// FlightPath moves the camera through its waypoints at constant speed per segment
type FlightPath struct {
	waypoints []Waypoint
	segment   time.Duration
	width     int
	height    int
}

func NewFlightPath(waypoints []Waypoint, segment time.Duration, width, height int) (FlightPath, error) {
	if len(waypoints) == 0 {
		return FlightPath{}, fmt.Errorf("%w: flight path without waypoints", domain.ErrInvalidArgument)
	}
	if segment <= 0 {
		return FlightPath{}, fmt.Errorf("%w: segment duration %s", domain.ErrInvalidArgument, segment)
	}
	if width <= 0 || height <= 0 {
		return FlightPath{}, fmt.Errorf("%w: viewport %dx%d", domain.ErrInvalidArgument, width, height)
	}
	return FlightPath{
		waypoints: waypoints,
		segment:   segment,
		width:     width,
		height:    height,
	}, nil
}

// Duration is the time from the first to the last waypoint
func (f FlightPath) Duration() time.Duration {
	return time.Duration(len(f.waypoints)-1) * f.segment
}

// ViewAt interpolates the camera elapsed into the flight. The camera rests at the ends.
func (f FlightPath) ViewAt(elapsed time.Duration) view.State {
	if elapsed <= 0 || len(f.waypoints) == 1 {
		return f.viewOf(f.waypoints[0])
	}
	if elapsed >= f.Duration() {
		return f.viewOf(f.waypoints[len(f.waypoints)-1])
	}

	index := int(elapsed / f.segment)
	progress := float64(elapsed%f.segment) / float64(f.segment)
	from, to := f.waypoints[index], f.waypoints[index+1]
	lerp := func(a, b float64) float64 {
		return a + (b-a)*progress
	}
	return f.viewOf(Waypoint{
		Center: domain.MapPos{X: lerp(from.Center.X, to.Center.X), Y: lerp(from.Center.Y, to.Center.Y)},
		Zoom:   lerp(from.Zoom, to.Zoom),
		Tilt:   lerp(from.Tilt, to.Tilt),
	})
}

func (f FlightPath) viewOf(w Waypoint) view.State {
	return view.NewState(w.Center, w.Zoom, f.width, f.height, w.Tilt)
}

// ParseWaypoints reads "x,y,zoom[,tilt]" entries separated by semicolons. Positions are in map
// coordinates, where the world spans [0, 1].
func ParseWaypoints(value string) ([]Waypoint, error) {
	var waypoints []Waypoint
	for entry := range strings.SplitSeq(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ",")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("%w: waypoint %q", domain.ErrInvalidArgument, entry)
		}
		numbers := make([]float64, 4)
		for i, part := range parts {
			number, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: waypoint %q: %w", domain.ErrInvalidArgument, entry, err)
			}
			numbers[i] = number
		}
		waypoints = append(waypoints, Waypoint{
			Center: domain.MapPos{X: numbers[0], Y: numbers[1]},
			Zoom:   numbers[2],
			Tilt:   numbers[3],
		})
	}
	if len(waypoints) == 0 {
		return nil, fmt.Errorf("%w: no waypoints in %q", domain.ErrInvalidArgument, value)
	}
	return waypoints, nil
}
