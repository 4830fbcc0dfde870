package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// ErrS3UploaderNotInitialized is returned when uploading without a configured client
var ErrS3UploaderNotInitialized = errors.New("S3 uploader not initialized")

// Archiver uploads finished output files to S3-compatible storage
type Archiver struct {
	uploader s3manageriface.UploaderAPI
	config   S3Config
	logger   *slog.Logger
}

// NewArchiver creates an S3 session for cfg
func NewArchiver(cfg S3Config, logger *slog.Logger) (*Archiver, error) {
	region := cfg.Region
	if region == "" {
		region = regionAuto
	}

	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}

	return &Archiver{
		uploader: s3manager.NewUploader(sess),
		config:   cfg,
		logger:   logger,
	}, nil
}

// contentType picks the object content type from the file's final extension
func contentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(path, ".lz4"):
		return "application/x-lz4"
	case strings.HasSuffix(path, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(path, ".jsonl"):
		return "application/x-ndjson"
	default:
		return "text/plain"
	}
}

// Upload stores the file at path under the key built from the path template and start time
func (a *Archiver) Upload(ctx context.Context, path string, key string) error {
	if a.uploader == nil {
		return ErrS3UploaderNotInitialized
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s for upload: %w", filepath.Base(path), err)
	}
	defer f.Close()

	a.logger.Debug("uploading output", "bucket", a.config.Bucket, "key", key)

	_, err = a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(path)),
	})
	if err != nil {
		return fmt.Errorf("uploading to s3://%s/%s: %w", a.config.Bucket, key, err)
	}

	a.logger.Info("uploaded output", "bucket", a.config.Bucket, "key", key)
	return nil
}
