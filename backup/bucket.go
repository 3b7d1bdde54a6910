// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package backup

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketConfig locates an S3 compatible bucket.
type BucketConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

// Bucket writes backups as objects in an S3 compatible bucket.
type Bucket struct {
	mc     *minio.Client
	bucket string
	prefix string

	mu    sync.Mutex
	ready bool
}

// NewBucket returns a [Bucket] for the given configuration. The bucket is
// created on first write if it does not already exist.
func NewBucket(cfg BucketConfig) (*Bucket, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backup: bucket name must be configured")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("backup: failed to create object storage client: %w", err)
	}

	return &Bucket{
		mc:     mc,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Write implements the [Writer] interface.
func (b *Bucket) Write(ctx context.Context, r Record) (string, error) {
	name, err := r.Name()
	if err != nil {
		return "", err
	}

	err = b.ensureBucket(ctx)
	if err != nil {
		return "", err
	}

	key := path.Join(b.prefix, name)
	_, err = b.mc.PutObject(
		ctx,
		b.bucket,
		key,
		bytes.NewReader(r.Payload),
		int64(len(r.Payload)),
		minio.PutObjectOptions{ContentType: "application/pdf"},
	)
	if err != nil {
		return "", fmt.Errorf("backup: failed to upload object: %w", err)
	}
	return "s3://" + b.bucket + "/" + key, nil
}

// ensureBucket is retried on every write until it succeeds once.
func (b *Bucket) ensureBucket(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ready {
		return nil
	}

	exists, err := b.mc.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("backup: failed to check bucket: %w", err)
	}
	if !exists {
		err = b.mc.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("backup: failed to create bucket: %w", err)
		}
	}

	b.ready = true
	return nil
}
