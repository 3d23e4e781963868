package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// blobContentType marks checkpoint and context objects; both are opaque to
// the store.
const blobContentType = "application/octet-stream"

// S3Config holds configuration for S3 storage.
type S3Config struct {
	Region string
	// Endpoint overrides the service endpoint (MinIO, LocalStack).
	Endpoint string
	// UsePathStyle is required by most S3-compatible services.
	UsePathStyle bool
	// MaxRetries bounds retries of a single request inside the store.
	MaxRetries int
}

// S3Store is a BlobStore over one S3 bucket.
type S3Store struct {
	client     *s3.Client
	bucket     string
	maxRetries int
}

// NewS3Store loads the default AWS credential chain and returns a store for
// bucket.
func NewS3Store(ctx context.Context, bucket string, cfg S3Config) (*S3Store, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for s3://%s: %w", bucket, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StoreWithClient(client, bucket, cfg), nil
}

// NewS3StoreWithClient wraps a pre-configured client.
func NewS3StoreWithClient(client *s3.Client, bucket string, cfg S3Config) *S3Store {
	return &S3Store{client: client, bucket: bucket, maxRetries: cfg.MaxRetries}
}

func (s *S3Store) uri(objectPath string) string {
	return "s3://" + s.bucket + "/" + objectPath
}

// isS3NotFound matches both the GetObject and the HeadObject flavours of a
// missing key.
func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// Put writes data as a single object.
func (s *S3Store) Put(ctx context.Context, objectPath string, data []byte) error {
	err := retryWithBackoff(ctx, s.maxRetries, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(objectPath),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(blobContentType),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUploadFailed, s.uri(objectPath), err)
	}
	return nil
}

// Get reads a whole object.
func (s *S3Store) Get(ctx context.Context, objectPath string) ([]byte, error) {
	var data []byte
	err := retryWithBackoff(ctx, s.maxRetries, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		if isS3NotFound(err) {
			return ErrObjectNotFound
		}
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(resp.Body)
		return err
	})
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, s.uri(objectPath))
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, s.uri(objectPath), err)
	}
	return data, nil
}

// Exists reports whether objectPath is present.
func (s *S3Store) Exists(ctx context.Context, objectPath string) (bool, error) {
	var exists bool
	err := retryWithBackoff(ctx, s.maxRetries, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		if isS3NotFound(err) {
			exists = false
			return nil
		}
		exists = err == nil
		return err
	})
	return exists, err
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *S3Store) Close() error {
	return nil
}
