package reporting

import (
	"context"
	"maps"
	"strconv"
	"time"

	"github.com/Amund211/tilecore/internal/domain"
)

type reportingMetaContextKey struct{}

// ReportingMeta is attached to every report made with the context
type ReportingMeta struct {
	tags      map[string]string
	extras    map[string]string
	startedAt time.Time
}

func MetaFromContext(ctx context.Context) ReportingMeta {
	meta, ok := ctx.Value(reportingMetaContextKey{}).(ReportingMeta)
	if !ok {
		return ReportingMeta{
			tags:   make(map[string]string),
			extras: make(map[string]string),
		}
	}
	return ReportingMeta{
		tags:      maps.Clone(meta.tags),
		extras:    maps.Clone(meta.extras),
		startedAt: meta.startedAt,
	}
}

func withMeta(ctx context.Context, update func(meta *ReportingMeta)) context.Context {
	meta := MetaFromContext(ctx)
	update(&meta)
	return context.WithValue(ctx, reportingMetaContextKey{}, meta)
}

func setStartedAtInContext(ctx context.Context, startedAt time.Time) context.Context {
	return withMeta(ctx, func(meta *ReportingMeta) {
		meta.startedAt = startedAt
	})
}

func AddExtrasToContext(ctx context.Context, extras map[string]string) context.Context {
	return withMeta(ctx, func(meta *ReportingMeta) {
		maps.Copy(meta.extras, extras)
	})
}

// AddTagsToContext sets searchable tags. Keep the number of distinct values low.
func AddTagsToContext(ctx context.Context, tags map[string]string) context.Context {
	return withMeta(ctx, func(meta *ReportingMeta) {
		maps.Copy(meta.tags, tags)
	})
}

// AddTileToContext tags reports with the zoom level and attaches the tile itself as an extra
func AddTileToContext(ctx context.Context, tile domain.MapTile, preloading bool) context.Context {
	return withMeta(ctx, func(meta *ReportingMeta) {
		meta.tags["zoom"] = strconv.Itoa(tile.Zoom)
		meta.tags["preloading"] = strconv.FormatBool(preloading)
		meta.extras["tile"] = tile.String()
	})
}
