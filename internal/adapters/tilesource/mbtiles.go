package tilesource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"strconv"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/reporting"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const mbtilesSchema = `
CREATE TABLE IF NOT EXISTS metadata (name TEXT PRIMARY KEY, value TEXT);
CREATE TABLE IF NOT EXISTS tiles (
	zoom_level INTEGER NOT NULL,
	tile_column INTEGER NOT NULL,
	tile_row INTEGER NOT NULL,
	tile_data BLOB,
	PRIMARY KEY (zoom_level, tile_column, tile_row)
);`

// MBTiles serves tiles from an MBTiles file. The file stores rows in the TMS scheme.
//
// MBTiles has no notion of frames, every frame gets the same tile.
type MBTiles struct {
	changeListeners
	zoomRange

	db       *sqlx.DB
	metadata map[string]string

	tracer trace.Tracer
}

// OpenMBTiles opens an existing file read-only
func OpenMBTiles(ctx context.Context, path string) (*MBTiles, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open mbtiles %s: %w", path, err)
	}
	m, err := newMBTiles(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read mbtiles %s: %w", path, err)
	}
	return m, nil
}

// CreateMBTiles creates the file if needed and opens it for writing
func CreateMBTiles(ctx context.Context, path string, metadata map[string]string) (*MBTiles, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", fmt.Sprintf("file:%s?mode=rwc", path))
	if err != nil {
		return nil, fmt.Errorf("failed to create mbtiles %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, mbtilesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create mbtiles schema: %w", err)
	}
	for name, value := range metadata {
		_, err := db.ExecContext(ctx, `INSERT INTO metadata (name, value) VALUES (?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to write mbtiles metadata: %w", err)
		}
	}
	m, err := newMBTiles(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func newMBTiles(ctx context.Context, db *sqlx.DB) (*MBTiles, error) {
	rows := []struct {
		Name  string `db:"name"`
		Value string `db:"value"`
	}{}
	if err := db.SelectContext(ctx, &rows, "SELECT name, value FROM metadata"); err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	metadata := make(map[string]string, len(rows))
	for _, row := range rows {
		metadata[row.Name] = row.Value
	}

	m := &MBTiles{
		db:       db,
		metadata: metadata,
		tracer:   otel.Tracer("tilecore/tilesource/mbtiles"),
	}
	if err := m.readZoomRange(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MBTiles) readZoomRange(ctx context.Context) error {
	extent := domain.WorldBounds
	if value, ok := m.metadata["bounds"]; ok {
		bounds, err := parseBounds(value)
		if err != nil {
			return err
		}
		extent = bounds
	}

	minZoom, minErr := strconv.Atoi(m.metadata["minzoom"])
	maxZoom, maxErr := strconv.Atoi(m.metadata["maxzoom"])
	if minErr != nil || maxErr != nil {
		var zooms struct {
			Min sql.NullInt64 `db:"min_zoom"`
			Max sql.NullInt64 `db:"max_zoom"`
		}
		err := m.db.GetContext(ctx, &zooms, "SELECT MIN(zoom_level) AS min_zoom, MAX(zoom_level) AS max_zoom FROM tiles")
		if err != nil {
			return fmt.Errorf("failed to read zoom levels: %w", err)
		}
		if minErr != nil {
			minZoom = int(zooms.Min.Int64)
		}
		if maxErr != nil {
			maxZoom = domain.MaxSupportedZoom
			if zooms.Max.Valid {
				maxZoom = int(zooms.Max.Int64)
			}
		}
	}
	if err := validateZoomRange(minZoom, maxZoom); err != nil {
		return err
	}

	m.zoomRange = zoomRange{minZoom: minZoom, maxZoom: maxZoom, extent: extent}
	return nil
}

// Metadata returns a copy of the metadata table
func (m *MBTiles) Metadata() map[string]string {
	return maps.Clone(m.metadata)
}

func (m *MBTiles) LoadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	ctx, span := m.tracer.Start(ctx, "MBTiles.LoadTile")
	defer span.End()

	if !tile.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidTile, tile)
	}
	if !m.contains(tile) {
		return nil, nil
	}

	data, err := m.loadTile(ctx, tile)
	recordLoad(ctx, "mbtiles", data, err)
	return data, err
}

func (m *MBTiles) loadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	var data []byte
	err := m.db.GetContext(
		ctx,
		&data,
		"SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?",
		tile.Zoom,
		tile.X,
		tile.Flipped().Y,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err := fmt.Errorf("failed to query tile: %w", err)
		reporting.Report(ctx, err, map[string]string{"tile": tile.String()})
		return nil, err
	}
	return domain.NewTileData(data, domain.NoExpiry), nil
}

// StoreTile writes the tile and notifies listeners. Only files opened with CreateMBTiles are
// writable.
func (m *MBTiles) StoreTile(ctx context.Context, tile domain.MapTile, data []byte) error {
	if !tile.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidTile, tile)
	}
	_, err := m.db.ExecContext(
		ctx,
		`INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)
		ON CONFLICT(zoom_level, tile_column, tile_row) DO UPDATE SET tile_data = excluded.tile_data`,
		tile.Zoom,
		tile.X,
		tile.Flipped().Y,
		data,
	)
	if err != nil {
		return fmt.Errorf("failed to store tile %s: %w", tile, err)
	}
	m.notifyTilesChanged(false)
	return nil
}

// ForEachTile calls fn for every stored tile, ordered by zoom level
func (m *MBTiles) ForEachTile(ctx context.Context, fn func(tile domain.MapTile, data []byte) error) error {
	rows, err := m.db.QueryxContext(
		ctx,
		"SELECT zoom_level, tile_column, tile_row, tile_data FROM tiles ORDER BY zoom_level, tile_column, tile_row",
	)
	if err != nil {
		return fmt.Errorf("failed to query tiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var zoom, x, tmsY int
		var data []byte
		if err := rows.Scan(&zoom, &x, &tmsY, &data); err != nil {
			return fmt.Errorf("failed to scan tile: %w", err)
		}
		tile := domain.NewMapTile(x, tmsY, zoom, 0).Flipped()
		if !tile.Valid() {
			continue
		}
		if err := fn(tile, data); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate tiles: %w", err)
	}
	return nil
}

func (m *MBTiles) Close() error {
	return m.db.Close()
}
