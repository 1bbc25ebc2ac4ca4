package tilesource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/Amund211/tilecore/internal/domain"
	"github.com/Amund211/tilecore/internal/reporting"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PathStyle bool
	// Prefix is prepended to the {z}/{x}/{y} object keys
	Prefix  string
	MinZoom int
	MaxZoom int
}

// S3 serves tiles stored as {prefix}/{z}/{x}/{y} objects. Objects of frame n > 0 are stored
// under {prefix}/{z}/{x}/{y}@{n}.
type S3 struct {
	changeListeners
	zoomRange

	cl     *minio.Client
	bucket string
	prefix string

	tracer trace.Tracer
}

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if err := validateZoomRange(cfg.MinZoom, cfg.MaxZoom); err != nil {
		return nil, err
	}
	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	}
	if cfg.PathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	cl, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}
	return &S3{
		zoomRange: zoomRange{
			minZoom: cfg.MinZoom,
			maxZoom: cfg.MaxZoom,
			extent:  domain.WorldBounds,
		},
		cl:     cl,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		tracer: otel.Tracer("tilecore/tilesource/s3"),
	}, nil
}

func objectKey(prefix string, tile domain.MapTile) string {
	name := strconv.Itoa(tile.Y)
	if tile.FrameNr != 0 {
		name = fmt.Sprintf("%d@%d", tile.Y, tile.FrameNr)
	}
	return path.Join(prefix, strconv.Itoa(tile.Zoom), strconv.Itoa(tile.X), name)
}

func (s *S3) LoadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	ctx, span := s.tracer.Start(ctx, "S3.LoadTile")
	defer span.End()

	if !tile.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidTile, tile)
	}
	if !s.contains(tile) {
		return nil, nil
	}

	data, err := s.loadTile(ctx, tile)
	recordLoad(ctx, "s3", data, err)
	return data, err
}

func (s *S3) loadTile(ctx context.Context, tile domain.MapTile) (*domain.TileData, error) {
	key := objectKey(s.prefix, tile)

	obj, err := s.cl.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.objectError(ctx, key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, s.objectError(ctx, key, err)
	}
	if info.Size == 0 {
		return domain.NewReplaceWithParentTileData(), nil
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.objectError(ctx, key, err)
	}
	return domain.NewTileData(data, maxAgeFromHeader(info.Metadata)), nil
}

func (s *S3) objectError(ctx context.Context, key string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	err = fmt.Errorf("%w: failed to get object: %w", domain.ErrTemporarilyUnavailable, err)
	reporting.Report(ctx, err, map[string]string{
		"bucket": s.bucket,
		"key":    key,
	})
	return err
}

// PutTile uploads the tile and notifies listeners. Empty data marks the tile as replaced by
// its parent.
func (s *S3) PutTile(ctx context.Context, tile domain.MapTile, data []byte, contentType string, maxAge time.Duration) error {
	ctx, span := s.tracer.Start(ctx, "S3.PutTile")
	defer span.End()

	if !tile.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidTile, tile)
	}
	opts := minio.PutObjectOptions{ContentType: contentType}
	if maxAge >= 0 {
		opts.CacheControl = fmt.Sprintf("max-age=%d", int64(maxAge/time.Second))
	}
	key := objectKey(s.prefix, tile)
	_, err := s.cl.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	s.notifyTilesChanged(false)
	return nil
}

// EnsureBucket creates the bucket when it does not exist
func (s *S3) EnsureBucket(ctx context.Context) error {
	exists, err := s.cl.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.cl.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}
