// Package objstore provides key-addressed object storage over minio, AWS S3 or memory.
package objstore

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Storage is the object storage used by the quarantine pipeline.
//
// Delete succeeds for missing objects.
type Storage interface {
	Put(ctx context.Context, bucket, key string, content []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	Copy(ctx context.Context, bucket, srcKey, dstKey string) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
	EnsureBucket(ctx context.Context, bucket string) error
}

// Settings selects and configures a storage driver.
type Settings struct {
	Driver    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// New constructs the storage named by settings.Driver.
func New(ctx context.Context, settings Settings) (Storage, error) {
	switch strings.ToLower(strings.TrimSpace(settings.Driver)) {
	case "", "minio":
		return NewMinio(settings)
	case "s3":
		return NewS3(ctx, settings)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", settings.Driver)
	}
}
