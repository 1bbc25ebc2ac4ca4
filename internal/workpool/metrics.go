package workpool

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type workpoolMetricsCollection struct {
	tasksSubmitted metric.Int64Counter
	tasksCanceled  metric.Int64Counter
	taskPanics     metric.Int64Counter
	workersSpawned metric.Int64Counter
	taskDuration   metric.Float64Histogram
}

var metrics workpoolMetricsCollection

func init() {
	const name = "tilecore/workpool"
	meter := otel.Meter(name)

	tasksSubmitted, err := meter.Int64Counter(
		"workpool/tasks_submitted",
		metric.WithDescription("Tasks accepted into the queue"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create tasks submitted metric: %w", err))
	}

	tasksCanceled, err := meter.Int64Counter(
		"workpool/tasks_canceled",
		metric.WithDescription("Queued tasks canceled before they started"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create tasks canceled metric: %w", err))
	}

	taskPanics, err := meter.Int64Counter(
		"workpool/task_panics",
		metric.WithDescription("Tasks that panicked while running"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create task panics metric: %w", err))
	}

	workersSpawned, err := meter.Int64Counter(
		"workpool/workers_spawned",
		metric.WithDescription("Worker goroutines started, including elastic workers"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create workers spawned metric: %w", err))
	}

	taskDuration, err := meter.Float64Histogram(
		"workpool/task_duration_seconds",
		metric.WithDescription("Time spent running a task"),
		metric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create task duration metric: %w", err))
	}

	metrics = workpoolMetricsCollection{
		tasksSubmitted: tasksSubmitted,
		tasksCanceled:  tasksCanceled,
		taskPanics:     taskPanics,
		workersSpawned: workersSpawned,
		taskDuration:   taskDuration,
	}
}
