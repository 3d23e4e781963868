// Package storage provides blob storage backends for checkpoints and for the
// context blobs loaded at startup.
package storage

import (
	"context"
	"errors"
	"math"
	"time"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrInvalidURI     = errors.New("invalid storage location")
)

// BlobStore abstracts whole-object blob storage.
// Implementations include S3, GCS, and the local filesystem.
type BlobStore interface {
	// Put writes data to objectPath, replacing any existing object.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Get reads the object at objectPath.
	// Returns ErrObjectNotFound if it does not exist.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// Close releases client resources.
	Close() error
}

// baseBackoff is the delay before the first retry.
const baseBackoff = 100 * time.Millisecond

// retryWithBackoff runs operation up to maxRetries+1 times with exponential
// backoff between attempts. Not-found errors are returned immediately.
func retryWithBackoff(ctx context.Context, maxRetries int, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if errors.Is(lastErr, ErrObjectNotFound) {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * baseBackoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
