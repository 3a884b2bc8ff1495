// Package objstore ships sealed dead-letter archives to S3-compatible
// object storage (R2, MinIO, S3) for long-term retention.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/hermod-chat/hermod/internal/deadletter"
	"github.com/hermod-chat/hermod/internal/logger"
)

// Config holds object storage configuration.
type Config struct {
	Endpoint    string // S3-compatible endpoint URL
	AccessKeyID string
	SecretKey   string
	Bucket      string
}

// Client provides bucket operations.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New creates a client for an S3-compatible endpoint.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, errors.New("objstore: all config fields are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("objstore: load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true // required for R2 and MinIO
	})

	return &Client{s3: s3Client, bucket: cfg.Bucket}, nil
}

// Upload stores a local file under key, returning the ETag.
func (c *Client) Upload(ctx context.Context, key, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("objstore: open %q: %w", path, err)
	}
	defer f.Close()

	result, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/zstd"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("objstore: upload %q: %s: %w", key, apiErr.ErrorCode(), err)
		}
		return "", fmt.Errorf("objstore: upload %q: %w", key, err)
	}

	etag := ""
	if result.ETag != nil {
		etag = strings.Trim(*result.ETag, "\"")
	}
	return etag, nil
}

// Uploader periodically ships sealed dead-letter archives and removes the
// local copies that uploaded cleanly.
type Uploader struct {
	client   *Client
	archive  *deadletter.Archive
	interval time.Duration
	log      *logger.Logger
}

// NewUploader creates an uploader running every interval.
func NewUploader(client *Client, archive *deadletter.Archive, interval time.Duration, log *logger.Logger) *Uploader {
	return &Uploader{
		client:   client,
		archive:  archive,
		interval: interval,
		log:      log.WithModule("objstore"),
	}
}

// Run ships sealed archives on every tick until ctx is canceled.
func (u *Uploader) Run(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.shipSealed(ctx)
		}
	}
}

func (u *Uploader) shipSealed(ctx context.Context) {
	sealed, err := u.archive.Sealed()
	if err != nil {
		u.log.WithError(err).Errorf("list sealed archives")
		return
	}

	for _, path := range sealed {
		key := "deadletter/" + filepath.Base(path)
		if _, err := u.client.Upload(ctx, key, path); err != nil {
			u.log.WithError(err).Errorf("upload %s", key)
			continue
		}
		if err := os.Remove(path); err != nil {
			u.log.WithError(err).Warnf("remove shipped archive %s", path)
			continue
		}
		u.log.Infof("shipped dead letter archive %s", key)
	}
}
