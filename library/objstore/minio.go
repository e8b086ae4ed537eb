package objstore

import (
	"bytes"
	"context"
	"io"
	"net/http"

	errors "github.com/Laisky/errors/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio stores objects in a minio or S3-compatible server.
type Minio struct {
	client *minio.Client
	region string
}

// NewMinio connects to settings.Endpoint with static credentials.
func NewMinio(settings Settings) (*Minio, error) {
	if settings.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	client, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(settings.AccessKey, settings.SecretKey, ""),
		Secure: settings.UseSSL,
		Region: settings.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new minio client")
	}
	return &Minio{client: client, region: settings.Region}, nil
}

// Put uploads content.
func (m *Minio) Put(ctx context.Context, bucket, key string, content []byte, contentType string, metadata map[string]string) error {
	_, err := m.client.PutObject(ctx,
		bucket,
		key,
		bytes.NewReader(content),
		int64(len(content)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: metadata,
		},
	)
	if err != nil {
		return errors.Wrapf(err, "put object %s", key)
	}
	return nil
}

// Get downloads an object.
func (m *Minio) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.wrap(err, "get object "+key)
	}
	defer obj.Close() //nolint:errcheck

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.wrap(err, "read object "+key)
	}
	return data, nil
}

// Delete removes an object.
func (m *Minio) Delete(ctx context.Context, bucket, key string) error {
	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return nil
		}
		return errors.Wrapf(err, "remove object %s", key)
	}
	return nil
}

// Copy performs a server-side copy within bucket.
func (m *Minio) Copy(ctx context.Context, bucket, srcKey, dstKey string) error {
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: bucket, Object: srcKey},
	)
	if err != nil {
		return m.wrap(err, "copy object "+srcKey)
	}
	return nil
}

// Exists reports whether key is present.
func (m *Minio) Exists(ctx context.Context, bucket, key string) (bool, error) {
	if _, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "stat object %s", key)
	}
	return true, nil
}

// EnsureBucket creates bucket when missing.
func (m *Minio) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrapf(err, "check bucket %s", bucket)
	}
	if exists {
		return nil
	}
	if err = m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
		return errors.Wrapf(err, "make bucket %s", bucket)
	}
	return nil
}

func (m *Minio) wrap(err error, msg string) error {
	if isMinioNotFound(err) {
		return errors.Wrap(ErrNotFound, msg)
	}
	return errors.Wrap(err, msg)
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}
