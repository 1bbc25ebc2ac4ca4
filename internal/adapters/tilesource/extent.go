package tilesource

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Amund211/tilecore/internal/domain"
)

// maxLatitude is the latitude where the web mercator projection reaches the edge of the world
const maxLatitude = 85.0511287798066

// extentFromLonLat converts a geographic bounding box to the extent format used by DataExtent.
// Extents are normalized to [0, 1] with y growing northwards.
func extentFromLonLat(minLon, minLat, maxLon, maxLat float64) domain.MapBounds {
	project := func(lon, lat float64) domain.MapPos {
		lat = math.Max(-maxLatitude, math.Min(maxLatitude, lat))
		lon = math.Max(-180, math.Min(180, lon))
		sinLat := math.Sin(lat * math.Pi / 180)
		return domain.MapPos{
			X: (lon + 180) / 360,
			Y: 0.5 + math.Log((1+sinLat)/(1-sinLat))/(4*math.Pi),
		}
	}
	return domain.NewMapBounds(project(minLon, minLat), project(maxLon, maxLat))
}

// parseBounds reads the "minLon,minLat,maxLon,maxLat" format of MBTiles metadata
func parseBounds(value string) (domain.MapBounds, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return domain.MapBounds{}, fmt.Errorf("%w: bounds %q", domain.ErrInvalidArgument, value)
	}
	var coords [4]float64
	for i, part := range parts {
		coord, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return domain.MapBounds{}, fmt.Errorf("%w: bounds %q: %w", domain.ErrInvalidArgument, value, err)
		}
		coords[i] = coord
	}
	return extentFromLonLat(coords[0], coords[1], coords[2], coords[3]), nil
}
