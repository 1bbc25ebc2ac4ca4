package tilelayer

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type tilelayerMetricsCollection struct {
	resolutions   metric.Int64Counter
	substitutions metric.Int64Counter
	tilesLoaded   metric.Int64Counter
	fetchErrors   metric.Int64Counter
	fetchDuration metric.Float64Histogram
}

var metrics tilelayerMetricsCollection

func init() {
	const name = "tilecore/tilelayer"
	meter := otel.Meter(name)

	resolutions, err := meter.Int64Counter(
		"tilelayer/resolutions",
		metric.WithDescription("Visible tile resolutions performed"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create resolutions metric: %w", err))
	}

	substitutions, err := meter.Int64Counter(
		"tilelayer/substitutions",
		metric.WithDescription("Draw data served from a substitute tile"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create substitutions metric: %w", err))
	}

	tilesLoaded, err := meter.Int64Counter(
		"tilelayer/tiles_loaded",
		metric.WithDescription("Tiles loaded and decoded by fetch tasks"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create tiles loaded metric: %w", err))
	}

	fetchErrors, err := meter.Int64Counter(
		"tilelayer/fetch_errors",
		metric.WithDescription("Fetch attempts that failed to load or decode a tile"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create fetch errors metric: %w", err))
	}

	fetchDuration, err := meter.Float64Histogram(
		"tilelayer/fetch_duration_seconds",
		metric.WithDescription("Duration of fetch tasks"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create fetch duration metric: %w", err))
	}

	metrics = tilelayerMetricsCollection{
		resolutions:   resolutions,
		substitutions: substitutions,
		tilesLoaded:   tilesLoaded,
		fetchErrors:   fetchErrors,
		fetchDuration: fetchDuration,
	}
}
