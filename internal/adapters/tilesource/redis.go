package tilesource

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/logging"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	entryMissing byte = iota
	entryData
	entryReplaceWithParent
)

// entryHeaderSize is one kind byte followed by the max age in milliseconds
const entryHeaderSize = 1 + 8

// RedisShared keeps loaded tiles in redis so that several processes share one upstream load.
// Redis failures are logged and fall through to the wrapped source.
type RedisShared struct {
	changeListeners

	source     Source
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	generation atomic.Int64
	listener   *forwardingListener

	tracer trace.Tracer
}

func NewRedisShared(source Source, client *redis.Client, prefix string, ttl time.Duration) *RedisShared {
	r := &RedisShared{
		source: source,
		client: client,
		prefix: prefix,
		ttl:    ttl,
		tracer: otel.Tracer("tilecore/tilesource/redis"),
	}
	r.listener = &forwardingListener{
		target: &r.changeListeners,
		before: func(bool) {
			r.generation.Add(1)
		},
	}
	source.AddChangeListener(r.listener)
	return r
}

func (r *RedisShared) Close() {
	r.source.RemoveChangeListener(r.listener)
}

func (r *RedisShared) MinZoom() int {
	return r.source.MinZoom()
}

func (r *RedisShared) MaxZoom() int {
	return r.source.MaxZoom()
}

func (r *RedisShared) DataExtent() domain.MapBounds {
	return r.source.DataExtent()
}

func (r *RedisShared) keyFor(tile domain.MapTile) string {
	return fmt.Sprintf("tile:%s:%d:%d:%d:%d:%d", r.prefix, r.generation.Load(), tile.Zoom, tile.X, tile.Y, tile.FrameNr)
}

func encodeEntry(data *domain.TileData) []byte {
	kind := entryMissing
	var payload []byte
	maxAge := domain.NoExpiry
	if data != nil {
		kind = entryData
		if data.ReplaceWithParent {
			kind = entryReplaceWithParent
		}
		payload = data.Data
		maxAge = data.MaxAge
	}
	buf := make([]byte, entryHeaderSize, entryHeaderSize+len(payload))
	buf[0] = kind
	maxAgeMillis := int64(-1)
	if maxAge >= 0 {
		maxAgeMillis = maxAge.Milliseconds()
	}
	binary.BigEndian.PutUint64(buf[1:], uint64(maxAgeMillis))
	return append(buf, payload...)
}

func decodeEntry(buf []byte) (*domain.TileData, error) {
	if len(buf) < entryHeaderSize {
		return nil, fmt.Errorf("%w: short redis entry of %d bytes", domain.ErrDecodeFailed, len(buf))
	}
	maxAge := time.Duration(int64(binary.BigEndian.Uint64(buf[1:]))) * time.Millisecond
	if maxAge < 0 {
		maxAge = domain.NoExpiry
	}
	switch buf[0] {
	case entryMissing:
		return nil, nil
	case entryReplaceWithParent:
		return domain.NewReplaceWithParentTileData(), nil
	case entryData:
		return domain.NewTileData(buf[entryHeaderSize:], maxAge), nil
	}
	return nil, fmt.Errorf("%w: unknown redis entry kind %d", domain.ErrDecodeFailed, buf[0])
}

// expiration keeps entries no longer than the tile itself stays fresh
func (r *RedisShared) expiration(data *domain.TileData) time.Duration {
	if data != nil && data.MaxAge >= 0 && data.MaxAge < r.ttl {
		return data.MaxAge
	}
	return r.ttl
}

func (r *RedisShared) LoadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	ctx, span := r.tracer.Start(ctx, "RedisShared.LoadTile")
	defer span.End()

	logger := logging.FromContext(ctx)
	key := r.keyFor(tile)

	buf, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		data, err := decodeEntry(buf)
		if err == nil {
			recordLoad(ctx, "redis", data, nil)
			return data, nil
		}
		logger.WarnContext(ctx, "Discarding corrupt redis entry", "key", key, "error", err)
	case errors.Is(err, redis.Nil):
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.WarnContext(ctx, "Redis get failed", "key", key, "error", err)
	}

	data, err := r.source.LoadTile(ctx, tile)
	if err != nil {
		return nil, err
	}

	expiration := r.expiration(data)
	if expiration == 0 {
		return data, nil
	}
	if err := r.client.Set(ctx, key, encodeEntry(data), expiration).Err(); err != nil {
		logger.WarnContext(ctx, "Redis set failed", "key", key, "error", err)
	}
	return data, nil
}
