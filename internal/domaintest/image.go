package domaintest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

// PNG encodes a size x size image. Each quadrant gets its own color, in child order
// (top-left, top-right, bottom-left, bottom-right), so that sub-tile extraction can be verified.
func PNG(t testing.TB, size int, quadrants [4]color.RGBA) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	half := size / 2
	for y := range size {
		for x := range size {
			n := 0
			if x >= half {
				n |= 1
			}
			if y >= half {
				n |= 2
			}
			img.SetRGBA(x, y, quadrants[n])
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// SolidPNG encodes a size x size image of one color
func SolidPNG(t testing.TB, size int, c color.RGBA) []byte {
	t.Helper()
	return PNG(t, size, [4]color.RGBA{c, c, c, c})
}
