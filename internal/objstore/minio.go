// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package objstore

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/ManuGH/livegate/internal/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// Config holds the connection settings of an S3-compatible endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// Minio is an Uploader backed by minio-go.
type Minio struct {
	client *minio.Client
	logger zerolog.Logger
}

func NewMinio(cfg Config) (*Minio, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &Minio{client: client, logger: log.WithComponent("objstore")}, nil
}

func (m *Minio) PutFile(ctx context.Context, bucket, key, path, contentType string) (int64, error) {
	// #nosec G304 -- path is a staged segment under the work directory
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}

	up, err := m.client.PutObject(ctx, bucket, key, f, info.Size(), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return 0, fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	m.logger.Debug().
		Str(log.FieldBucket, bucket).
		Str(log.FieldObjectKey, key).
		Int64(log.FieldSize, up.Size).
		Msg("object uploaded")
	return info.Size(), nil
}

func (m *Minio) PutBytes(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}
	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (m *Minio) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrBucketMissing, bucket)
	}
	return nil
}
