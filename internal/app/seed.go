package app

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/logging"
)

// TileStore accepts encoded tiles
type TileStore interface {
	SetTile(tile domain.MapTile, data *domain.TileData)
	NotifyTilesChanged(remove bool)
}

// SeedChessboard fills store with a chessboard pattern for zoom levels 0 to maxZoom, one color
// per zoom level, so that substitutions are visible in rendered output.
func SeedChessboard(ctx context.Context, store TileStore, maxZoom, tileSize int) error {
	if maxZoom < 0 || maxZoom > 8 {
		return fmt.Errorf("%w: seed zoom %d", domain.ErrInvalidArgument, maxZoom)
	}

	count := 0
	for zoom := 0; zoom <= maxZoom; zoom++ {
		dark := color.RGBA{R: uint8(zoom * 30), G: 80, B: 160 - uint8(zoom*15), A: 255}
		light := color.RGBA{R: 230, G: 230, B: 230, A: 255}
		size := 1 << zoom
		for y := range size {
			for x := range size {
				fill := light
				if (x+y)%2 == 0 {
					fill = dark
				}
				data, err := solidPNG(tileSize, fill)
				if err != nil {
					return err
				}
				store.SetTile(domain.NewMapTile(x, y, zoom, 0), domain.NewTileData(data, domain.NoExpiry))
				count++
			}
		}
	}
	store.NotifyTilesChanged(true)

	logging.FromContext(ctx).InfoContext(ctx, "Seeded tiles", "count", count, "maxZoom", maxZoom)
	return nil
}

func solidPNG(size int, fill color.RGBA) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = fill.R
		img.Pix[i+1] = fill.G
		img.Pix[i+2] = fill.B
		img.Pix[i+3] = fill.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode tile: %w", err)
	}
	return buf.Bytes(), nil
}
