package tilesource

import (
	"context"
	"fmt"

	"github.com/Amund211/tilecore/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type tilesourceMetricsCollection struct {
	loads     metric.Int64Counter
	coalesced metric.Int64Counter
}

var metrics tilesourceMetricsCollection

func init() {
	const name = "tilecore/tilesource"
	meter := otel.Meter(name)

	loads, err := meter.Int64Counter(
		"tilesource/loads",
		metric.WithDescription("Tile loads by source and outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create loads metric: %w", err))
	}

	coalesced, err := meter.Int64Counter(
		"tilesource/coalesced",
		metric.WithDescription("Tile loads served by a concurrent or recent load of the same tile"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create coalesced metric: %w", err))
	}

	metrics = tilesourceMetricsCollection{
		loads:     loads,
		coalesced: coalesced,
	}
}

func loadOutcome(data *domain.TileData, err error) string {
	switch {
	case err != nil:
		return "error"
	case data == nil:
		return "missing"
	case data.ReplaceWithParent:
		return "replace_with_parent"
	}
	return "data"
}

func recordLoad(ctx context.Context, source string, data *domain.TileData, err error) {
	metrics.loads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", loadOutcome(data, err)),
	))
}
