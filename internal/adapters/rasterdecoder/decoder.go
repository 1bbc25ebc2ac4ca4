// Package rasterdecoder turns encoded raster tiles into RGBA bitmaps.
//
// A tile served from an ancestor is cut out of the ancestor's bitmap and scaled up to full size.
package rasterdecoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Amund211/tilecore/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decoder decodes tiles into bitmaps of TileSize pixels. Sources with other tile sizes are
// scaled.
type Decoder struct {
	tileSize int
	scaler   draw.Scaler

	tracer trace.Tracer
}

// New returns a decoder producing tileSize x tileSize bitmaps, scaled with bilinear filtering
func New(tileSize int) (*Decoder, error) {
	if tileSize < 1 {
		return nil, fmt.Errorf("%w: tile size %d", domain.ErrInvalidArgument, tileSize)
	}
	return &Decoder{
		tileSize: tileSize,
		scaler:   draw.BiLinear,
		tracer:   otel.Tracer("tilecore/rasterdecoder"),
	}, nil
}

// Decode returns the bitmap for tile and its size in bytes. sourceTile is tile or one of its
// ancestors.
func (d *Decoder) Decode(ctx context.Context, tile, sourceTile domain.MapTile, data []byte) (*image.RGBA, int64, error) {
	_, span := d.tracer.Start(ctx, "Decoder.Decode")
	defer span.End()

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode %d bytes: %w", len(data), err)
	}
	span.SetAttributes(attribute.String("format", format))

	region, err := subTileRegion(src.Bounds(), tile.Wrapped(), sourceTile.Wrapped())
	if err != nil {
		return nil, 0, err
	}

	dst := image.NewRGBA(image.Rect(0, 0, d.tileSize, d.tileSize))
	if region.Dx() == d.tileSize && region.Dy() == d.tileSize {
		draw.Copy(dst, image.Point{}, src, region, draw.Src, nil)
	} else {
		d.scaler.Scale(dst, dst.Bounds(), src, region, draw.Src, nil)
	}
	return dst, int64(len(dst.Pix)), nil
}

// subTileRegion is the part of the sourceTile image covered by tile. It is at least one pixel.
func subTileRegion(bounds image.Rectangle, tile, sourceTile domain.MapTile) (image.Rectangle, error) {
	depth := tile.Zoom - sourceTile.Zoom
	if depth < 0 || tile.X>>depth != sourceTile.X || tile.Y>>depth != sourceTile.Y {
		return image.Rectangle{}, fmt.Errorf("%w: %s is not within %s", domain.ErrInvalidArgument, tile, sourceTile)
	}
	if depth == 0 {
		return bounds, nil
	}

	divisions := 1 << depth
	offsetX := tile.X - sourceTile.X<<depth
	offsetY := tile.Y - sourceTile.Y<<depth
	width := bounds.Dx()
	height := bounds.Dy()

	minX := bounds.Min.X + offsetX*width/divisions
	minY := bounds.Min.Y + offsetY*height/divisions
	maxX := max(minX+1, bounds.Min.X+(offsetX+1)*width/divisions)
	maxY := max(minY+1, bounds.Min.Y+(offsetY+1)*height/divisions)
	return image.Rect(minX, minY, min(maxX, bounds.Max.X), min(maxY, bounds.Max.Y)), nil
}
