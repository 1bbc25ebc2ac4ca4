package tilesource

import (
	"net/http"
	"testing"
	"time"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestQuadkey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", quadkey(domain.NewMapTile(0, 0, 0, 0)))
	require.Equal(t, "213", quadkey(domain.NewMapTile(3, 5, 3, 0)))
	require.Equal(t, "0", quadkey(domain.NewMapTile(0, 0, 1, 0)))
	require.Equal(t, "3", quadkey(domain.NewMapTile(1, 1, 1, 0)))
}

func TestTileURL(t *testing.T) {
	t.Parallel()

	tile := domain.NewMapTile(3, 1, 2, 0)

	cases := []struct {
		name   string
		config HTTPConfig
		want   string
	}{
		{
			name:   "xyz",
			config: HTTPConfig{URLTemplate: "https://tiles.example.com/{z}/{x}/{y}.png"},
			want:   "https://tiles.example.com/2/3/1.png",
		},
		{
			name:   "zoom alias",
			config: HTTPConfig{URLTemplate: "https://tiles.example.com/{zoom}/{x}/{y}.png"},
			want:   "https://tiles.example.com/2/3/1.png",
		},
		{
			name:   "tms",
			config: HTTPConfig{URLTemplate: "https://tiles.example.com/{z}/{x}/{y}.png", TMS: true},
			want:   "https://tiles.example.com/2/3/2.png",
		},
		{
			name: "subdomains",
			config: HTTPConfig{
				URLTemplate: "https://{s}.tiles.example.com/{z}/{x}/{y}.png",
				Subdomains:  []string{"a", "b", "c"},
			},
			want: "https://b.tiles.example.com/2/3/1.png",
		},
		{
			name:   "quadkey",
			config: HTTPConfig{URLTemplate: "https://tiles.example.com/q/{quadkey}.jpeg"},
			want:   "https://tiles.example.com/q/13.jpeg",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, c.want, tileURL(c.config, tile))
		})
	}
}

func TestMaxAgeFromHeader(t *testing.T) {
	t.Parallel()

	cases := []struct {
		cacheControl string
		want         time.Duration
	}{
		{"", domain.NoExpiry},
		{"max-age=60", time.Minute},
		{"public, max-age=3600", time.Hour},
		{"Max-Age=5", 5 * time.Second},
		{"no-cache", 0},
		{"no-store, max-age=60", 0},
		{"max-age=abc", domain.NoExpiry},
		{"public", domain.NoExpiry},
	}
	for _, c := range cases {
		t.Run(c.cacheControl, func(t *testing.T) {
			t.Parallel()

			header := http.Header{}
			if c.cacheControl != "" {
				header.Set("Cache-Control", c.cacheControl)
			}
			require.Equal(t, c.want, maxAgeFromHeader(header))
		})
	}
}
