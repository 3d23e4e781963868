package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore implements BlobStore for Google Cloud Storage.
type GCSStore struct {
	client     *gcs.Client
	bucket     string
	maxRetries int
}

// GCSConfig holds configuration for GCS storage.
type GCSConfig struct {
	// CredentialsFile is an optional service account key; application
	// default credentials are used when empty.
	CredentialsFile string
	MaxRetries      int
}

// NewGCSStore creates a new GCS store client.
func NewGCSStore(ctx context.Context, bucket string, cfg GCSConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &GCSStore{
		client:     client,
		bucket:     bucket,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Put uploads data to GCS.
func (g *GCSStore) Put(ctx context.Context, objectPath string, data []byte) error {
	err := retryWithBackoff(ctx, g.maxRetries, func() error {
		writer := g.client.Bucket(g.bucket).Object(objectPath).NewWriter(ctx)
		writer.ContentType = "application/octet-stream"
		if _, err := writer.Write(data); err != nil {
			writer.Close()
			return err
		}
		return writer.Close()
	})
	if err != nil {
		return fmt.Errorf("%w: gs://%s/%s: %v", ErrUploadFailed, g.bucket, objectPath, err)
	}
	return nil
}

// Get downloads an object from GCS.
func (g *GCSStore) Get(ctx context.Context, objectPath string) ([]byte, error) {
	var data []byte
	err := retryWithBackoff(ctx, g.maxRetries, func() error {
		reader, err := g.client.Bucket(g.bucket).Object(objectPath).NewReader(ctx)
		if err != nil {
			if errors.Is(err, gcs.ErrObjectNotExist) {
				return ErrObjectNotFound
			}
			return err
		}
		defer reader.Close()
		data, err = io.ReadAll(reader)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: gs://%s/%s: %v", ErrDownloadFailed, g.bucket, objectPath, err)
	}
	return data, nil
}

// Exists checks if an object exists in GCS.
func (g *GCSStore) Exists(ctx context.Context, objectPath string) (bool, error) {
	var exists bool
	err := retryWithBackoff(ctx, g.maxRetries, func() error {
		_, err := g.client.Bucket(g.bucket).Object(objectPath).Attrs(ctx)
		if err != nil {
			if errors.Is(err, gcs.ErrObjectNotExist) {
				exists = false
				return nil
			}
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// Close releases the underlying GCS client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}
