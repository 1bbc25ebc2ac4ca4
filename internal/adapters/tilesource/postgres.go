package tilesource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/reporting"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Postgres serves one tile set from the tiles table. Frames are stored separately.
type Postgres struct {
	changeListeners
	zoomRange

	db      *sqlx.DB
	schema  string
	tileset string

	tracer trace.Tracer
}

func NewPostgres(db *sqlx.DB, schema, tileset string, minZoom, maxZoom int) (*Postgres, error) {
	if err := validateZoomRange(minZoom, maxZoom); err != nil {
		return nil, err
	}
	if tileset == "" {
		return nil, fmt.Errorf("%w: empty tileset", domain.ErrInvalidArgument)
	}

	return &Postgres{
		zoomRange: zoomRange{
			minZoom: minZoom,
			maxZoom: maxZoom,
			extent:  domain.WorldBounds,
		},
		db:      db,
		schema:  schema,
		tileset: tileset,

		tracer: otel.Tracer("tilecore/tilesource/postgres"),
	}, nil
}

type dbTileEntry struct {
	Data          []byte        `db:"data"`
	MaxAgeSeconds sql.NullInt64 `db:"max_age_seconds"`
}

func (p *Postgres) LoadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	ctx, span := p.tracer.Start(ctx, "Postgres.LoadTile")
	defer span.End()

	if !tile.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidTile, tile)
	}
	if !p.contains(tile) {
		return nil, nil
	}

	data, err := p.loadTile(ctx, tile)
	recordLoad(ctx, "postgres", data, err)
	return data, err
}

func (p *Postgres) loadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	txx, err := p.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err := fmt.Errorf("failed to start transaction: %w", err)
		reporting.Report(ctx, err)
		return nil, err
	}
	defer txx.Rollback()

	_, err = txx.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", pq.QuoteIdentifier(p.schema)))
	if err != nil {
		err := fmt.Errorf("failed to set search path: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"schema": p.schema,
		})
		return nil, err
	}

	var entry dbTileEntry
	err = txx.GetContext(
		ctx,
		&entry,
		`SELECT data, max_age_seconds
		FROM tiles
		WHERE tileset = $1 AND zoom = $2 AND x = $3 AND y = $4 AND frame_nr = $5`,
		p.tileset,
		tile.Zoom,
		tile.X,
		tile.Y,
		tile.FrameNr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err := fmt.Errorf("failed to select tile: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"tileset": p.tileset,
			"tile":    tile.String(),
		})
		return nil, err
	}

	if entry.Data == nil {
		return domain.NewReplaceWithParentTileData(), nil
	}
	maxAge := domain.NoExpiry
	if entry.MaxAgeSeconds.Valid {
		maxAge = time.Duration(entry.MaxAgeSeconds.Int64) * time.Second
	}
	return domain.NewTileData(entry.Data, maxAge), nil
}

// StoreTile upserts the tile and notifies listeners. Nil data stores a replace-with-parent
// marker. A negative maxAge never expires.
func (p *Postgres) StoreTile(ctx context.Context, tile domain.MapTile, data []byte, maxAge time.Duration) error {
	if err := p.storeTiles(ctx, []storedTile{{tile: tile, data: data, maxAge: maxAge}}); err != nil {
		return err
	}
	p.notifyTilesChanged(false)
	return nil
}

type storedTile struct {
	tile   domain.MapTile
	data   []byte
	maxAge time.Duration
}

// Importer batches writes into one transaction per flush
type Importer struct {
	postgres  *Postgres
	batchSize int
	pending   []storedTile
	stored    int
}

func (p *Postgres) NewImporter(batchSize int) *Importer {
	return &Importer{postgres: p, batchSize: max(1, batchSize)}
}

func (i *Importer) Add(ctx context.Context, tile domain.MapTile, data []byte, maxAge time.Duration) error {
	i.pending = append(i.pending, storedTile{tile: tile, data: data, maxAge: maxAge})
	if len(i.pending) >= i.batchSize {
		return i.Flush(ctx)
	}
	return nil
}

// Flush writes pending tiles and notifies listeners once
func (i *Importer) Flush(ctx context.Context) error {
	if len(i.pending) == 0 {
		return nil
	}
	if err := i.postgres.storeTiles(ctx, i.pending); err != nil {
		return err
	}
	i.stored += len(i.pending)
	i.pending = i.pending[:0]
	i.postgres.notifyTilesChanged(false)
	return nil
}

// Stored is the number of tiles written so far
func (i *Importer) Stored() int {
	return i.stored
}

func (p *Postgres) storeTiles(ctx context.Context, tiles []storedTile) error {
	ctx, span := p.tracer.Start(ctx, "Postgres.storeTiles")
	defer span.End()

	for _, t := range tiles {
		if !t.tile.Valid() {
			return fmt.Errorf("%w: %s", domain.ErrInvalidTile, t.tile)
		}
	}

	txx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		err := fmt.Errorf("failed to start transaction: %w", err)
		reporting.Report(ctx, err)
		return err
	}
	defer txx.Rollback()

	_, err = txx.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", pq.QuoteIdentifier(p.schema)))
	if err != nil {
		err := fmt.Errorf("failed to set search path: %w", err)
		reporting.Report(ctx, err, map[string]string{
			"schema": p.schema,
		})
		return err
	}

	for _, t := range tiles {
		var maxAgeSeconds sql.NullInt64
		if t.maxAge >= 0 {
			maxAgeSeconds = sql.NullInt64{Int64: int64(t.maxAge / time.Second), Valid: true}
		}
		_, err = txx.ExecContext(
			ctx,
			`INSERT INTO tiles
			(tileset, zoom, x, y, frame_nr, data, max_age_seconds, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
			ON CONFLICT (tileset, zoom, x, y, frame_nr)
			DO UPDATE SET
				data = EXCLUDED.data,
				max_age_seconds = EXCLUDED.max_age_seconds,
				updated_at = EXCLUDED.updated_at`,
			p.tileset,
			t.tile.Zoom,
			t.tile.X,
			t.tile.Y,
			t.tile.FrameNr,
			t.data,
			maxAgeSeconds,
		)
		if err != nil {
			err := fmt.Errorf("failed to upsert tile: %w", err)
			reporting.Report(ctx, err, map[string]string{
				"tileset": p.tileset,
				"tile":    t.tile.String(),
				"bytes":   strconv.Itoa(len(t.data)),
			})
			return err
		}
	}

	if err := txx.Commit(); err != nil {
		err := fmt.Errorf("failed to commit transaction: %w", err)
		reporting.Report(ctx, err)
		return err
	}
	return nil
}
