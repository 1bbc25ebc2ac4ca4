package tilecache

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type tilecacheMetricsCollection struct {
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
}

var metrics tilecacheMetricsCollection

func init() {
	const name = "tilecore/tilecache"
	meter := otel.Meter(name)

	hits, err := meter.Int64Counter(
		"tilecache/hits",
		metric.WithDescription("Cache reads that found an entry"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create hits metric: %w", err))
	}

	misses, err := meter.Int64Counter(
		"tilecache/misses",
		metric.WithDescription("Cache reads that found no entry"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create misses metric: %w", err))
	}

	evictions, err := meter.Int64Counter(
		"tilecache/evictions",
		metric.WithDescription("Entries evicted to stay within capacity"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create evictions metric: %w", err))
	}

	metrics = tilecacheMetricsCollection{
		hits:      hits,
		misses:    misses,
		evictions: evictions,
	}
}
