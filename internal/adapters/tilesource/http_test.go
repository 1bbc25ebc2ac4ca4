package tilesource_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Amund211/tilecore/internal/adapters/tilesource"
	"github.com/Amund211/tilecore/internal/domain"
	e "github.com/Amund211/tilecore/internal/errors"
	"github.com/Amund211/tilecore/internal/ratelimiting"
	"github.com/stretchr/testify/require"
)

func newHTTPSource(t *testing.T, handler http.HandlerFunc, minZoom, maxZoom int) *tilesource.HTTP {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	limiter, stop := ratelimiting.NewTokenBucketRateLimiter(1000, 1000)
	t.Cleanup(stop)

	source, err := tilesource.NewHTTP(server.Client(), limiter, tilesource.HTTPConfig{
		URLTemplate: server.URL + "/{z}/{x}/{y}.png",
		MinZoom:     minZoom,
		MaxZoom:     maxZoom,
	})
	require.NoError(t, err)
	return source
}

func TestHTTP(t *testing.T) {
	t.Parallel()

	tile := domain.NewMapTile(2, 3, 4, 0)

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()

		limiter, stop := ratelimiting.NewTokenBucketRateLimiter(1, 1)
		t.Cleanup(stop)

		configs := []tilesource.HTTPConfig{
			{URLTemplate: "https://tiles.example.com/static.png", MaxZoom: 10},
			{URLTemplate: "https://{s}.tiles.example.com/{z}/{x}/{y}.png", MaxZoom: 10},
			{URLTemplate: "https://tiles.example.com/{z}/{x}/{y}.png", MinZoom: 5, MaxZoom: 4},
		}
		for _, config := range configs {
			_, err := tilesource.NewHTTP(http.DefaultClient, limiter, config)
			require.ErrorIs(t, err, domain.ErrInvalidArgument, config.URLTemplate)
		}
	})

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		requests := make(chan *http.Request, 1)
		source := newHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
			requests <- r.Clone(context.Background())
			w.Header().Set("Cache-Control", "max-age=120")
			_, _ = w.Write([]byte("png bytes"))
		}, 0, 18)

		data, err := source.LoadTile(t.Context(), tile)
		require.NoError(t, err)
		require.Equal(t, domain.NewTileData([]byte("png bytes"), 2*time.Minute), data)
		request := <-requests
		require.Equal(t, "/4/2/3.png", request.URL.Path)
		require.Equal(t, tilesource.DefaultUserAgent, request.Header.Get("User-Agent"))
	})

	t.Run("ok without cache control never expires", func(t *testing.T) {
		t.Parallel()

		source := newHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("png bytes"))
		}, 0, 18)

		data, err := source.LoadTile(t.Context(), tile)
		require.NoError(t, err)
		require.Equal(t, domain.NoExpiry, data.MaxAge)
	})

	t.Run("no content means replace with parent", func(t *testing.T) {
		t.Parallel()

		source := newHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}, 0, 18)

		data, err := source.LoadTile(t.Context(), tile)
		require.NoError(t, err)
		require.True(t, data.ReplaceWithParent)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		source := newHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, 0, 18)

		data, err := source.LoadTile(t.Context(), tile)
		require.NoError(t, err)
		require.Nil(t, data)
	})

	t.Run("status errors", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			status int
			want   []error
		}{
			{http.StatusTooManyRequests, []error{domain.ErrTemporarilyUnavailable, e.ErrRatelimitExceeded}},
			{http.StatusInternalServerError, []error{e.ErrServer}},
			{http.StatusBadGateway, []error{e.ErrServer}},
			{http.StatusForbidden, []error{e.ErrClient}},
		}
		for _, c := range cases {
			t.Run(fmt.Sprint(c.status), func(t *testing.T) {
				t.Parallel()

				source := newHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(c.status)
				}, 0, 18)

				data, err := source.LoadTile(t.Context(), tile)
				require.Nil(t, data)
				for _, want := range c.want {
					require.ErrorIs(t, err, want)
				}
			})
		}
	})

	t.Run("outside zoom range does not hit the server", func(t *testing.T) {
		t.Parallel()

		var requests atomic.Int64
		source := newHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
		}, 5, 18)

		data, err := source.LoadTile(t.Context(), tile)
		require.NoError(t, err)
		require.Nil(t, data)
		require.Zero(t, requests.Load())
	})

	t.Run("canceled request", func(t *testing.T) {
		t.Parallel()

		source := newHTTPSource(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}, 0, 18)

		ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
		defer cancel()

		_, err := source.LoadTile(ctx, tile)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
