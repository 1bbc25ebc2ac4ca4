package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Amund211/tilecore/internal/adapters/database"
	"github.com/Amund211/tilecore/internal/adapters/headless"
	"github.com/Amund211/tilecore/internal/adapters/rasterdecoder"
	"github.com/Amund211/tilecore/internal/adapters/tilesource"
	"github.com/Amund211/tilecore/internal/app"
	"github.com/Amund211/tilecore/internal/config"
	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/logging"
	"github.com/Amund211/tilecore/internal/ratelimiting"
	"github.com/Amund211/tilecore/internal/reporting"
	"github.com/Amund211/tilecore/internal/telemetry"
	"github.com/Amund211/tilecore/internal/tilelayer"
	"github.com/Amund211/tilecore/internal/view"
	"github.com/Amund211/tilecore/internal/workpool"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "golang.org/x/crypto/x509roots/fallback"
)

const serviceName = "tilecore"

type closableSource interface {
	tilelayer.DataSource
	Close()
}

type sourceCloser struct {
	tilelayer.DataSource
	close func()
}

func (s sourceCloser) Close() {
	s.close()
}

func main() {
	instanceID := uuid.New().String()
	logger := slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(os.Stdout, nil))).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	conf, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}
	logger.Info("Loaded config", "config", conf.NonSensitiveString())

	hubContext, flush, err := reporting.NewSentryOrMock(conf)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.AddToContext(hubContext(ctx), logger)

	if !conf.IsDevelopment() {
		otelShutdown, err := telemetry.SetupOTelSDK(ctx, serviceName)
		if err != nil {
			fail("Failed to set up OpenTelemetry SDK", "error", err.Error())
		}
		defer func() {
			err := otelShutdown(context.Background())
			if err != nil {
				logger.Error("Failed to shut down OpenTelemetry SDK", "error", err.Error())
			}
		}()
		logger.Info("Initialized OpenTelemetry SDK")
	}

	if err := run(ctx, conf); err != nil {
		reporting.Report(ctx, err)
		logger.Error("Session failed", "error", err.Error())
		flush()
		os.Exit(1)
	}
}

func run(ctx context.Context, conf config.Config) error {
	logger := logging.FromContext(ctx)
	tuning := conf.Tuning()
	sessionConf := conf.Session()

	baseSource, err := buildSource(ctx, conf)
	if err != nil {
		return fmt.Errorf("failed to build tile source: %w", err)
	}
	defer baseSource.Close()
	logger.Info("Initialized tile source", "source", string(conf.TileSource()), "minZoom", baseSource.MinZoom(), "maxZoom", baseSource.MaxZoom())

	var source closableSource = tilesource.NewCoalescing(baseSource, sessionConf.CoalescingTTL)
	defer source.Close()

	if conf.RedisAddr() != "" {
		client := redis.NewClient(&redis.Options{Addr: conf.RedisAddr()})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		shared := tilesource.NewRedisShared(source, client, conf.Tileset(), sessionConf.SharedCacheTTL)
		defer shared.Close()
		source = shared
		logger.Info("Initialized shared redis cache")
	}

	pool := workpool.New(ctx, "tiles", tuning.PoolSize)
	defer pool.Shutdown()

	decoder, err := rasterdecoder.New(view.TileSizePixels)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	layer, err := tilelayer.NewLayer[*image.RGBA](ctx, source, decoder, pool, time.Now)
	if err != nil {
		return fmt.Errorf("failed to create tile layer: %w", err)
	}
	defer layer.Close()

	policy, err := domain.ParseSubstitutionPolicy(tuning.SubstitutionPolicy)
	if err != nil {
		return err
	}
	layer.SetSubstitutionPolicy(policy)
	layer.SetZoomLevelBias(tuning.ZoomBias)
	layer.SetMaxOverzoomLevel(tuning.MaxOverzoom)
	layer.SetMaxUnderzoomLevel(tuning.MaxUnderzoom)
	layer.SetPreloading(tuning.Preloading)
	layer.SetVisibleCacheCapacity(tuning.VisibleCacheBytes)
	layer.SetPreloadingCacheCapacity(tuning.PreloadingCacheBytes)

	renderer := headless.NewRenderer[*image.RGBA]()
	redraw := headless.NewRedrawSignal()
	waiter := headless.NewLoadWaiter()
	layer.SetRenderer(renderer)
	layer.SetRedrawRequester(redraw)
	layer.SetTileLoadListener(waiter)

	waypoints, err := app.ParseWaypoints(sessionConf.FlightPath)
	if err != nil {
		return err
	}
	path, err := app.NewFlightPath(waypoints, sessionConf.Segment, sessionConf.ViewWidth, sessionConf.ViewHeight)
	if err != nil {
		return err
	}

	sessionCtx, cancel := context.WithTimeout(ctx, path.Duration()+sessionConf.Timeout)
	defer cancel()

	stats := app.RunSession(sessionCtx, layer, path, sessionConf.FrameInterval, redraw.C(), time.Now)
	logger.Info(
		"Session finished",
		"frames", stats.Frames,
		"redraws", stats.Redraws,
		"settled", stats.Settled,
		"refreshes", renderer.Refreshes(),
		"drawnTiles", len(renderer.DrawData()),
		"visibleLoadEvents", waiter.VisibleEvents(),
		"preloadingLoadEvents", waiter.PreloadingEvents(),
	)
	if !stats.Settled && !errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("session did not settle within %s", sessionConf.Timeout)
	}
	return nil
}

func buildSource(ctx context.Context, conf config.Config) (closableSource, error) {
	logger := logging.FromContext(ctx)
	tuning := conf.Tuning()

	switch conf.TileSource() {
	case config.TileSourceMemory:
		maxZoom := conf.Session().SeedMaxZoom
		memory, err := tilesource.NewMemory(0, maxZoom)
		if err != nil {
			return nil, err
		}
		if err := app.SeedChessboard(ctx, memory, maxZoom, view.TileSizePixels); err != nil {
			return nil, err
		}
		return sourceCloser{DataSource: memory, close: func() {}}, nil

	case config.TileSourceHTTP:
		limiter, stopLimiter := ratelimiting.NewTokenBucketRateLimiter(
			ratelimiting.RefillPerSecond(tuning.SourceRPS),
			ratelimiting.BurstSize(tuning.SourceBurst),
		)
		httpClient := &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
		source, err := tilesource.NewHTTP(httpClient, limiter, tilesource.HTTPConfig{
			URLTemplate: conf.TileURLTemplate(),
			Subdomains:  []string{"a", "b", "c"},
			MinZoom:     0,
			MaxZoom:     domain.MaxSupportedZoom,
		})
		if err != nil {
			stopLimiter()
			return nil, err
		}
		return sourceCloser{DataSource: source, close: stopLimiter}, nil

	case config.TileSourceMBTiles:
		source, err := tilesource.OpenMBTiles(ctx, conf.MBTilesPath())
		if err != nil {
			return nil, err
		}
		return sourceCloser{DataSource: source, close: func() {
			if err := source.Close(); err != nil {
				logger.Warn("Failed to close mbtiles", "error", err.Error())
			}
		}}, nil

	case config.TileSourcePostgres:
		db, err := database.NewPostgresDatabaseFromConfig(ctx, conf)
		if err != nil {
			return nil, err
		}
		schemaName := database.GetSchemaName(!conf.IsProduction())
		err = database.NewDatabaseMigrator(db, logger.With("component", "migrator")).Migrate(ctx, schemaName)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		source, err := tilesource.NewPostgres(db, schemaName, conf.Tileset(), 0, domain.MaxSupportedZoom)
		if err != nil {
			db.Close()
			return nil, err
		}
		return sourceCloser{DataSource: source, close: func() {
			if err := db.Close(); err != nil {
				logger.Warn("Failed to close database", "error", err.Error())
			}
		}}, nil

	case config.TileSourceS3:
		source, err := tilesource.NewS3(ctx, tilesource.S3Config{
			Endpoint:  conf.S3Endpoint(),
			Bucket:    conf.S3Bucket(),
			AccessKey: conf.S3AccessKey(),
			SecretKey: conf.S3SecretKey(),
			UseSSL:    conf.S3UseSSL(),
			PathStyle: true,
			Prefix:    conf.Tileset(),
			MinZoom:   0,
			MaxZoom:   domain.MaxSupportedZoom,
		})
		if err != nil {
			return nil, err
		}
		return sourceCloser{DataSource: source, close: func() {}}, nil
	}

	return nil, fmt.Errorf("%w: tile source %q", domain.ErrInvalidArgument, conf.TileSource())
}
