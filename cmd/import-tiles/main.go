// import-tiles copies every tile of an MBTiles file into the postgres tile store or an S3 bucket
//
// Usage: import-tiles <path.mbtiles> [postgres|s3]
//
// Connection settings are read from the environment like the main binary, see internal/config.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/Amund211/tilecore/internal/adapters/database"
	"github.com/Amund211/tilecore/internal/adapters/tilesource"
	"github.com/Amund211/tilecore/internal/config"
	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/logging"
)

const batchSize = 500

func main() {
	if len(os.Args) < 2 || os.Args[1] == "" {
		log.Fatal("No mbtiles path provided")
	}
	path := os.Args[1]

	destination := "postgres"
	if len(os.Args) >= 3 {
		destination = os.Args[2]
	}

	conf, err := config.ConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := logging.AddToContext(context.Background(), logger)

	mbtiles, err := tilesource.OpenMBTiles(ctx, path)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", path, err)
	}
	defer mbtiles.Close()

	var stored int
	switch destination {
	case "postgres":
		stored, err = importToPostgres(ctx, conf, mbtiles)
	case "s3":
		stored, err = importToS3(ctx, conf, mbtiles)
	default:
		log.Fatalf("Unknown destination %q", destination)
	}
	if err != nil {
		log.Fatalf("Import failed after %d tiles: %v", stored, err)
	}

	logger.Info("Import finished", "tiles", stored, "destination", destination, "tileset", conf.Tileset())
}

func importToPostgres(ctx context.Context, conf config.Config, mbtiles *tilesource.MBTiles) (int, error) {
	db, err := database.NewPostgresDatabaseFromConfig(ctx, conf)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	schemaName := database.GetSchemaName(!conf.IsProduction())
	err = database.NewDatabaseMigrator(db, logging.FromContext(ctx).With("component", "migrator")).Migrate(ctx, schemaName)
	if err != nil {
		return 0, err
	}

	postgres, err := tilesource.NewPostgres(db, schemaName, conf.Tileset(), mbtiles.MinZoom(), mbtiles.MaxZoom())
	if err != nil {
		return 0, err
	}

	importer := postgres.NewImporter(batchSize)
	err = mbtiles.ForEachTile(ctx, func(tile domain.MapTile, data []byte) error {
		return importer.Add(ctx, tile, data, domain.NoExpiry)
	})
	if err != nil {
		return importer.Stored(), err
	}
	if err := importer.Flush(ctx); err != nil {
		return importer.Stored(), err
	}
	return importer.Stored(), nil
}

func importToS3(ctx context.Context, conf config.Config, mbtiles *tilesource.MBTiles) (int, error) {
	s3, err := tilesource.NewS3(ctx, tilesource.S3Config{
		Endpoint:  conf.S3Endpoint(),
		Bucket:    conf.S3Bucket(),
		AccessKey: conf.S3AccessKey(),
		SecretKey: conf.S3SecretKey(),
		UseSSL:    conf.S3UseSSL(),
		PathStyle: true,
		Prefix:    conf.Tileset(),
		MinZoom:   mbtiles.MinZoom(),
		MaxZoom:   mbtiles.MaxZoom(),
	})
	if err != nil {
		return 0, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return 0, err
	}

	contentType := "application/octet-stream"
	switch mbtiles.Metadata()["format"] {
	case "png":
		contentType = "image/png"
	case "jpg", "jpeg":
		contentType = "image/jpeg"
	case "webp":
		contentType = "image/webp"
	}

	stored := 0
	err = mbtiles.ForEachTile(ctx, func(tile domain.MapTile, data []byte) error {
		if err := s3.PutTile(ctx, tile, data, contentType, domain.NoExpiry); err != nil {
			return err
		}
		stored++
		return nil
	})
	return stored, err
}
