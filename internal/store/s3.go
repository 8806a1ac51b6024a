package store

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"DataHub/internal/model"
)

// S3Config describes an S3-compatible bucket holding one CSV object per symbol.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

// S3Store keeps series as CSV objects named <Prefix><symbol><ext>.
type S3Store struct {
	client *minio.Client
	bucket string
	prefix string
	ext    string
	logger *zap.Logger
}

// NewS3Store connects to the endpoint and creates the bucket if it does not exist.
func NewS3Store(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, &WriteError{Symbol: "*", Location: cfg.Bucket, Err: err}
		}
		logger.Info("created bucket", zap.String("bucket", cfg.Bucket))
	}

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		ext:    DefaultExt,
		logger: logger,
	}, nil
}

func (s *S3Store) Name() string { return "s3" }

func (s *S3Store) key(symbol string) string {
	return s.prefix + symbol + s.ext
}

func (s *S3Store) location(symbol string) string {
	return "s3://" + s.bucket + "/" + s.key(symbol)
}

func (s *S3Store) Exists(ctx context.Context, symbol string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, s.key(symbol), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, &ReadError{Symbol: symbol, Location: s.location(symbol), Err: err}
	}
	return true, nil
}

func (s *S3Store) Load(ctx context.Context, symbol string) (model.Series, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(symbol), minio.GetObjectOptions{})
	if err != nil {
		return nil, &ReadError{Symbol: symbol, Location: s.location(symbol), Err: err}
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			err = fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, &ReadError{Symbol: symbol, Location: s.location(symbol), Err: err}
	}
	series, err := DecodeCSV(bytes.NewReader(data))
	if err != nil {
		return nil, &ReadError{Symbol: symbol, Location: s.location(symbol), Err: err}
	}
	return series, nil
}

func (s *S3Store) Save(ctx context.Context, symbol string, series model.Series) error {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, series); err != nil {
		return &WriteError{Symbol: symbol, Location: s.location(symbol), Err: err}
	}
	info, err := s.client.PutObject(ctx, s.bucket, s.key(symbol), &buf, int64(buf.Len()),
		minio.PutObjectOptions{ContentType: "text/csv"})
	if err != nil {
		return &WriteError{Symbol: symbol, Location: s.location(symbol), Err: err}
	}
	s.logger.Debug("series uploaded",
		zap.String("symbol", symbol),
		zap.String("object", s.location(symbol)),
		zap.Int64("bytes", info.Size))
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
