// Package config reads the runtime configuration from the environment
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

const environmentKey = "TILECORE_ENVIRONMENT"

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

// TileSource selects where tile bytes come from
type TileSource string

const (
	TileSourceMemory   TileSource = "memory"
	TileSourceHTTP     TileSource = "http"
	TileSourceMBTiles  TileSource = "mbtiles"
	TileSourcePostgres TileSource = "postgres"
	TileSourceS3       TileSource = "s3"
)

// Tuning holds the numeric knobs of the tile pipeline
type Tuning struct {
	PoolSize             int     `env:"TILE_POOL_SIZE" envDefault:"4" validate:"min=1,max=256"`
	VisibleCacheBytes    int64   `env:"TILE_VISIBLE_CACHE_BYTES" envDefault:"134217728" validate:"min=0"`
	PreloadingCacheBytes int64   `env:"TILE_PRELOADING_CACHE_BYTES" envDefault:"10485760" validate:"min=0"`
	ZoomBias             float64 `env:"TILE_ZOOM_BIAS" envDefault:"0" validate:"gte=-5,lte=5"`
	MaxOverzoom          int     `env:"TILE_MAX_OVERZOOM" envDefault:"6" validate:"min=0,max=24"`
	MaxUnderzoom         int     `env:"TILE_MAX_UNDERZOOM" envDefault:"3" validate:"min=0,max=24"`
	SubstitutionPolicy   string  `env:"TILE_SUBSTITUTION_POLICY" envDefault:"all" validate:"oneof=all visible"`
	Preloading           bool    `env:"TILE_PRELOADING" envDefault:"true"`
	SourceRPS            float64 `env:"TILE_SOURCE_RPS" envDefault:"10" validate:"gt=0"`
	SourceBurst          int     `env:"TILE_SOURCE_BURST" envDefault:"20" validate:"min=1"`
}

// Session describes the headless camera flight driven by the main binary
type Session struct {
	FlightPath     string        `env:"FLIGHT_PATH" envDefault:"0.5,0.5,1;0.52,0.48,4;0.53,0.47,6,0.5"`
	Segment        time.Duration `env:"FLIGHT_SEGMENT" envDefault:"2s" validate:"gt=0"`
	ViewWidth      int           `env:"VIEW_WIDTH" envDefault:"1024" validate:"min=1,max=16384"`
	ViewHeight     int           `env:"VIEW_HEIGHT" envDefault:"768" validate:"min=1,max=16384"`
	FrameInterval  time.Duration `env:"FRAME_INTERVAL" envDefault:"16ms" validate:"gt=0"`
	Timeout        time.Duration `env:"SESSION_TIMEOUT" envDefault:"2m" validate:"gt=0"`
	SeedMaxZoom    int           `env:"SEED_MAX_ZOOM" envDefault:"6" validate:"min=0,max=8"`
	CoalescingTTL  time.Duration `env:"COALESCING_TTL" envDefault:"30s" validate:"gte=0"`
	SharedCacheTTL time.Duration `env:"SHARED_CACHE_TTL" envDefault:"1h" validate:"gt=0"`
}

type Config struct {
	env       environment
	sentryDSN string

	tileSource      TileSource
	tileset         string
	tileURLTemplate string
	mbtilesPath     string
	databaseURL     string
	s3Endpoint      string
	s3Bucket        string
	s3AccessKey     string
	s3SecretKey     string
	s3UseSSL        bool
	redisAddr       string

	tuning  Tuning
	session Session
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) Environment() string {
	return string(c.env)
}

func (c *Config) TileSource() TileSource {
	return c.tileSource
}

// Tileset names the tile set within shared stores (postgres, s3)
func (c *Config) Tileset() string {
	return c.tileset
}

func (c *Config) TileURLTemplate() string {
	return c.tileURLTemplate
}

func (c *Config) MBTilesPath() string {
	return c.mbtilesPath
}

func (c *Config) DatabaseURL() string {
	return c.databaseURL
}

func (c *Config) S3Endpoint() string {
	return c.s3Endpoint
}

func (c *Config) S3Bucket() string {
	return c.s3Bucket
}

func (c *Config) S3AccessKey() string {
	return c.s3AccessKey
}

func (c *Config) S3SecretKey() string {
	return c.s3SecretKey
}

func (c *Config) S3UseSSL() bool {
	return c.s3UseSSL
}

// RedisAddr is empty when tiles should not be shared through redis
func (c *Config) RedisAddr() string {
	return c.redisAddr
}

func (c *Config) Tuning() Tuning {
	return c.tuning
}

func (c *Config) Session() Session {
	return c.session
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf(
		"Config{env: %s, tileSource: %s, tileset: %s, redis: %t, tuning: %+v, ...}",
		string(c.env),
		string(c.tileSource),
		c.tileset,
		c.redisAddr != "",
		c.tuning,
	)
}

// loadDotEnv fills unset variables from a .env file in the working directory, if there is one
func loadDotEnv() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: .env: %w", ErrInvalidValue, err)
	}
	return nil
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}

	rawEnv, ok := os.LookupEnv(environmentKey)
	if !ok || rawEnv == string(development) {
		if err := loadDotEnv(); err != nil {
			return Config{}, err
		}
		rawEnv, ok = os.LookupEnv(environmentKey)
	}
	if !ok {
		return missingKey(environmentKey)
	}

	var currentEnv environment
	switch rawEnv {
	case "production":
		currentEnv = production
	case "staging":
		currentEnv = staging
	case "development":
		currentEnv = development
	default:
		return Config{}, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, environmentKey, rawEnv)
	}

	conf := Config{
		env:             currentEnv,
		sentryDSN:       os.Getenv("SENTRY_DSN"),
		tileSource:      TileSource(os.Getenv("TILE_SOURCE")),
		tileset:         os.Getenv("TILESET"),
		tileURLTemplate: os.Getenv("TILE_URL_TEMPLATE"),
		mbtilesPath:     os.Getenv("MBTILES_PATH"),
		databaseURL:     os.Getenv("DATABASE_URL"),
		s3Endpoint:      os.Getenv("S3_ENDPOINT"),
		s3Bucket:        os.Getenv("S3_BUCKET"),
		s3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		s3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		redisAddr:       os.Getenv("REDIS_ADDR"),
	}
	if conf.tileSource == "" {
		conf.tileSource = TileSourceMemory
	}
	if conf.tileset == "" {
		conf.tileset = "default"
	}

	if rawUseSSL, ok := os.LookupEnv("S3_USE_SSL"); ok && rawUseSSL != "" {
		useSSL, err := strconv.ParseBool(rawUseSSL)
		if err != nil {
			return Config{}, fmt.Errorf("%w: S3_USE_SSL (%s)", ErrInvalidValue, rawUseSSL)
		}
		conf.s3UseSSL = useSSL
	}

	tuning, err := env.ParseAs[Tuning]()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(tuning); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	conf.tuning = tuning

	session, err := env.ParseAs[Session]()
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	if err := validate.Struct(session); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}
	conf.session = session

	if currentEnv == production || currentEnv == staging {
		if conf.sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
	}

	switch conf.tileSource {
	case TileSourceMemory:
	case TileSourceHTTP:
		if conf.tileURLTemplate == "" {
			return missingKey("TILE_URL_TEMPLATE")
		}
	case TileSourceMBTiles:
		if conf.mbtilesPath == "" {
			return missingKey("MBTILES_PATH")
		}
	case TileSourcePostgres:
		if conf.databaseURL == "" && currentEnv != development {
			return missingKey("DATABASE_URL")
		}
	case TileSourceS3:
		if conf.s3Endpoint == "" {
			return missingKey("S3_ENDPOINT")
		}
		if conf.s3Bucket == "" {
			return missingKey("S3_BUCKET")
		}
		if currentEnv != development {
			if conf.s3AccessKey == "" {
				return missingKey("S3_ACCESS_KEY")
			}
			if conf.s3SecretKey == "" {
				return missingKey("S3_SECRET_KEY")
			}
		}
	default:
		return Config{}, fmt.Errorf("%w: TILE_SOURCE (%s)", ErrInvalidValue, conf.tileSource)
	}

	return conf, nil
}
