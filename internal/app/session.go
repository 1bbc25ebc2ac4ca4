package app

import (
	"context"
	"time"

	"github.com/Amund211/tilecore/internal/logging"
	"github.com/Amund211/tilecore/internal/view"
)

// Layer is the part of a tile layer a session drives
type Layer interface {
	Update(ctx context.Context, v view.State)
	Refresh(ctx context.Context)
	UpdateTileLoadListener()
	IsUpdateInProgress() bool
}

type SessionStats struct {
	Frames  int
	Redraws int
	// Settled is false when the session ended before all fetches finished
	Settled bool
}

// RunSession flies the camera along path, updating layer once per frame like a render loop
// would. Redraw requests re-resolve the last view between frames. After the flight it keeps
// drawing until no fetches remain, or ctx is done.
func RunSession(
	ctx context.Context,
	layer Layer,
	path FlightPath,
	frameInterval time.Duration,
	redraws <-chan struct{},
	nowFunc func() time.Time,
) SessionStats {
	ctx, logger := logging.WithComponent(ctx, "session")

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	stats := SessionStats{}
	start := nowFunc()
	logger.InfoContext(ctx, "Starting session", "duration", path.Duration().String(), "frameInterval", frameInterval.String())

	for {
		elapsed := nowFunc().Sub(start)
		layer.Update(ctx, path.ViewAt(elapsed))
		layer.UpdateTileLoadListener()
		stats.Frames++

		if elapsed >= path.Duration() && !layer.IsUpdateInProgress() {
			stats.Settled = true
			logger.InfoContext(ctx, "Session settled", "frames", stats.Frames, "redraws", stats.Redraws)
			return stats
		}

		select {
		case <-ctx.Done():
			logger.WarnContext(ctx, "Session ended before settling", "frames", stats.Frames, "error", ctx.Err())
			return stats
		case <-redraws:
			stats.Redraws++
			layer.Refresh(ctx)
		case <-ticker.C:
		}
	}
}
