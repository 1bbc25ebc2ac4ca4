package tilesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Amund211/tilecore/internal/domain"
	e "github.com/Amund211/tilecore/internal/errors"
	"github.com/Amund211/tilecore/internal/logging"
	"github.com/Amund211/tilecore/internal/ratelimiting"
	"github.com/Amund211/tilecore/internal/reporting"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const DefaultUserAgent = "tilecore/0.1"

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type HTTPConfig struct {
	// URLTemplate may contain {z} or {zoom}, {x}, {y}, {s} and {quadkey}
	URLTemplate string
	// Subdomains substituted for {s}, chosen by tile position
	Subdomains []string
	// TMS flips y before substitution
	TMS       bool
	MinZoom   int
	MaxZoom   int
	UserAgent string
}

// HTTP loads tiles from a slippy map tile server
type HTTP struct {
	changeListeners
	zoomRange

	httpClient HttpClient
	limiter    ratelimiting.RateLimiter
	config     HTTPConfig

	tracer trace.Tracer
}

func NewHTTP(httpClient HttpClient, limiter ratelimiting.RateLimiter, config HTTPConfig) (*HTTP, error) {
	if err := validateZoomRange(config.MinZoom, config.MaxZoom); err != nil {
		return nil, err
	}
	if !strings.Contains(config.URLTemplate, "{x}") || !strings.Contains(config.URLTemplate, "{y}") {
		if !strings.Contains(config.URLTemplate, "{quadkey}") {
			return nil, fmt.Errorf("%w: url template %q has no tile placeholders", domain.ErrInvalidArgument, config.URLTemplate)
		}
	}
	if strings.Contains(config.URLTemplate, "{s}") && len(config.Subdomains) == 0 {
		return nil, fmt.Errorf("%w: url template %q needs subdomains", domain.ErrInvalidArgument, config.URLTemplate)
	}
	if _, err := url.Parse(tileURL(config, domain.NewMapTile(0, 0, 0, 0))); err != nil {
		return nil, fmt.Errorf("%w: url template %q: %w", domain.ErrInvalidArgument, config.URLTemplate, err)
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	return &HTTP{
		zoomRange: zoomRange{
			minZoom: config.MinZoom,
			maxZoom: config.MaxZoom,
			extent:  domain.WorldBounds,
		},
		httpClient: httpClient,
		limiter:    limiter,
		config:     config,
		tracer:     otel.Tracer("tilecore/tilesource/http"),
	}, nil
}

func quadkey(tile domain.MapTile) string {
	var b strings.Builder
	for i := tile.Zoom; i > 0; i-- {
		digit := '0'
		mask := 1 << (i - 1)
		if tile.X&mask != 0 {
			digit++
		}
		if tile.Y&mask != 0 {
			digit += 2
		}
		b.WriteRune(digit)
	}
	return b.String()
}

func tileURL(config HTTPConfig, tile domain.MapTile) string {
	y := tile.Y
	if config.TMS {
		y = tile.Flipped().Y
	}
	subdomain := ""
	if len(config.Subdomains) > 0 {
		subdomain = config.Subdomains[(tile.X+tile.Y)%len(config.Subdomains)]
	}
	z := strconv.Itoa(tile.Zoom)
	return strings.NewReplacer(
		"{z}", z,
		"{zoom}", z,
		"{x}", strconv.Itoa(tile.X),
		"{y}", strconv.Itoa(y),
		"{s}", subdomain,
		"{quadkey}", quadkey(tile),
	).Replace(config.URLTemplate)
}

// maxAgeFromHeader reads the freshness lifetime from Cache-Control
func maxAgeFromHeader(header http.Header) time.Duration {
	cacheControl := header.Get("Cache-Control")
	if cacheControl == "" {
		return domain.NoExpiry
	}
	for directive := range strings.SplitSeq(cacheControl, ",") {
		directive = strings.ToLower(strings.TrimSpace(directive))
		switch {
		case directive == "no-cache" || directive == "no-store":
			return 0
		case strings.HasPrefix(directive, "max-age="):
			seconds, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
			if err != nil || seconds < 0 {
				return domain.NoExpiry
			}
			return time.Duration(seconds) * time.Second
		}
	}
	return domain.NoExpiry
}

func (h *HTTP) LoadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	ctx, span := h.tracer.Start(ctx, "HTTP.LoadTile")
	defer span.End()

	if !tile.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidTile, tile)
	}
	if !h.contains(tile) {
		return nil, nil
	}

	data, err := h.loadTile(ctx, tile)
	recordLoad(ctx, "http", data, err)
	return data, err
}

func (h *HTTP) loadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	rawURL := tileURL(h.config, tile)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		err := fmt.Errorf("failed to create request: %w", err)
		reporting.Report(ctx, err)
		return nil, err
	}
	req.Header.Set("User-Agent", h.config.UserAgent)

	if err := h.limiter.Wait(ctx, ratelimiting.HostKeyFunc(req.URL)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logging.FromContext(ctx).WarnContext(ctx, "Tile request exceeded rate limit", "tile", tile.String(), "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrTemporarilyUnavailable, err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err := fmt.Errorf("%w: failed to send request: %w", e.ErrServer, err)
		logging.FromContext(ctx).WarnContext(ctx, "Tile request failed", "tile", tile.String(), "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: failed to read response body: %w", e.ErrServer, err)
		}
		return domain.NewTileData(data, maxAgeFromHeader(resp.Header)), nil
	case resp.StatusCode == http.StatusNoContent:
		return domain.NewReplaceWithParentTileData(), nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %w: tile server returned %d", domain.ErrTemporarilyUnavailable, e.ErrRatelimitExceeded, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: tile server returned %d", e.ErrServer, resp.StatusCode)
	}

	err = fmt.Errorf("%w: tile server returned %d", e.ErrClient, resp.StatusCode)
	reporting.Report(ctx, err, map[string]string{
		"url":    rawURL,
		"status": strconv.Itoa(resp.StatusCode),
		"tile":   tile.String(),
	})
	return nil, err
}
