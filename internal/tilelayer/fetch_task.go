package tilelayer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"weak"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/logging"
	"github.com/Amund211/tilecore/internal/reporting"
	"github.com/Amund211/tilecore/internal/workpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("tilecore/tilelayer")

type taskState int

const (
	taskQueued taskState = iota
	taskRunning
	taskDone
	taskCanceled
)

func (s taskState) String() string {
	switch s {
	case taskQueued:
		return "queued"
	case taskRunning:
		return "running"
	case taskDone:
		return "done"
	case taskCanceled:
		return "canceled"
	}
	return "unknown"
}

// fetchTask loads one tile from the data source, falling back to ancestors the source asks to
// be replaced with, and stores the decoded result in the cache tier it was requested for.
type fetchTask[T any] struct {
	layer    weak.Pointer[Layer[T]]
	registry *fetchRegistry[T]

	tile        domain.MapTile
	preloading  bool
	sourceTiles []domain.MapTile

	mutex       sync.Mutex
	state       taskState
	invalidated bool
}

func newFetchTask[T any](layer weak.Pointer[Layer[T]], registry *fetchRegistry[T], tile domain.MapTile, preloading bool, minZoom, maxZoom int) *fetchTask[T] {
	// The tile itself followed by its ancestors, limited to the zoom levels the source serves
	var sourceTiles []domain.MapTile
	for sourceTile := tile; ; sourceTile = sourceTile.Parent() {
		if sourceTile.Zoom >= minZoom && sourceTile.Zoom <= maxZoom {
			sourceTiles = append(sourceTiles, sourceTile)
		}
		if sourceTile.Zoom <= 0 {
			break
		}
	}

	return &fetchTask[T]{
		layer:       layer,
		registry:    registry,
		tile:        tile,
		preloading:  preloading,
		sourceTiles: sourceTiles,
		state:       taskQueued,
	}
}

func (t *fetchTask[T]) getState() taskState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// Cancel prevents a queued task from running. Started tasks are not affected.
func (t *fetchTask[T]) Cancel() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.state != taskQueued {
		return
	}
	t.state = taskCanceled
	t.registry.remove(t.tile.ID(), t)
}

func (t *fetchTask[T]) IsCanceled() bool {
	return t.getState() == taskCanceled
}

// Invalidate keeps the result of the task out of the caches. The task still runs to completion.
func (t *fetchTask[T]) Invalidate() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.invalidated = true
}

func (t *fetchTask[T]) IsInvalidated() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.invalidated
}

func (t *fetchTask[T]) Run(ctx context.Context) {
	layer := t.layer.Value()
	if layer == nil {
		return
	}

	t.mutex.Lock()
	if t.state != taskQueued {
		t.mutex.Unlock()
		return
	}
	t.state = taskRunning
	t.mutex.Unlock()

	ctx = logging.AddToContext(ctx, layer.logger)
	ctx = logging.AddMetaToContext(ctx,
		slog.String("tile", t.tile.String()),
		slog.Bool("preloading", t.preloading),
	)
	ctx = reporting.AddTileToContext(ctx, t.tile, t.preloading)

	ctx, span := tracer.Start(ctx, "tilelayer.fetch", trace.WithAttributes(
		attribute.Int("tile.zoom", t.tile.Zoom),
		attribute.Int("tile.x", t.tile.X),
		attribute.Int("tile.y", t.tile.Y),
		attribute.Int("tile.frame_nr", t.tile.FrameNr),
		attribute.Bool("tile.preloading", t.preloading),
	))
	defer span.End()

	start := time.Now()
	loaded := t.load(ctx, layer)
	metrics.fetchDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.Bool("preloading", t.preloading),
		attribute.Bool("loaded", loaded),
	))

	t.mutex.Lock()
	t.state = taskDone
	t.mutex.Unlock()
	t.registry.remove(t.tile.ID(), t)

	if loaded && !t.preloading {
		layer.Refresh(ctx)
	}
}

// load returns true when a tile was decoded, even if the write was suppressed by invalidation
func (t *fetchTask[T]) load(ctx context.Context, layer *Layer[T]) (loaded bool) {
	span := trace.SpanFromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: fetch of %s: %v", workpool.ErrTaskPanicked, t.tile, r)
			t.fail(ctx, span, err, t.tile)
			loaded = false
		}
	}()

	for _, sourceTile := range t.sourceTiles {
		tileData, err := layer.source.LoadTile(ctx, sourceTile)
		if err != nil {
			if errors.Is(err, domain.ErrTileNotFound) || errors.Is(err, context.Canceled) {
				logging.FromContext(ctx).DebugContext(ctx, "Tile not loaded", "sourceTile", sourceTile.String(), "error", err)
				return false
			}
			t.fail(ctx, span, fmt.Errorf("failed to load tile: %w", err), sourceTile)
			return false
		}
		if tileData == nil {
			return false
		}
		if tileData.ReplaceWithParent {
			continue
		}
		if tileData.Data == nil {
			return false
		}

		payload, cost, err := layer.decoder.Decode(ctx, t.tile, sourceTile, tileData.Data)
		if err != nil {
			t.fail(ctx, span, fmt.Errorf("%w: %w", domain.ErrDecodeFailed, err), sourceTile)
			return false
		}

		if layer.storeTile(t, payload, cost, tileData.MaxAge) {
			metrics.tilesLoaded.Add(ctx, 1, metric.WithAttributes(attribute.Bool("preloading", t.preloading)))
		} else {
			logging.FromContext(ctx).DebugContext(ctx, "Discarding invalidated tile")
		}
		// Refresh even when invalidated, the draw list may still reference the old tile
		return true
	}
	return false
}

func (t *fetchTask[T]) fail(ctx context.Context, span trace.Span, err error, sourceTile domain.MapTile) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.fetchErrors.Add(ctx, 1, metric.WithAttributes(attribute.Bool("preloading", t.preloading)))
	reporting.Report(ctx, err, map[string]string{
		"sourceTile": sourceTile.String(),
	})
}
