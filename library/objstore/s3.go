package objstore

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3 stores objects in AWS S3, or any endpoint speaking the S3 API.
type S3 struct {
	client *s3.Client
	region string
}

// NewS3 builds an S3 client. Static credentials are used when an access key is set,
// otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, settings Settings) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(settings.Region),
	}
	if settings.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			settings.AccessKey,
			settings.SecretKey,
			"",
		)))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if settings.Endpoint != "" {
			endpoint := settings.Endpoint
			if !strings.Contains(endpoint, "://") {
				scheme := "http://"
				if settings.UseSSL {
					scheme = "https://"
				}
				endpoint = scheme + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{client: client, region: settings.Region}, nil
}

// Put uploads content.
func (s *S3) Put(ctx context.Context, bucket, key string, content []byte, contentType string, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(contentType),
		Metadata:      metadata,
	})
	if err != nil {
		return errors.Wrapf(err, "put object %s", key)
	}
	return nil
}

// Get downloads an object.
func (s *S3) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "get object %s", key)
		}
		return nil, errors.Wrapf(err, "get object %s", key)
	}
	defer out.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read object %s", key)
	}
	return data, nil
}

// Delete removes an object. S3 deletes are idempotent.
func (s *S3) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return errors.Wrapf(err, "delete object %s", key)
	}
	return nil
}

// Copy performs a server-side copy within bucket.
func (s *S3) Copy(ctx context.Context, bucket, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(copySource(bucket, srcKey)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return errors.Wrapf(ErrNotFound, "copy object %s", srcKey)
		}
		return errors.Wrapf(err, "copy object %s", srcKey)
	}
	return nil
}

// Exists reports whether key is present.
func (s *S3) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "head object %s", key)
	}
	return true, nil
}

// EnsureBucket creates bucket when missing.
func (s *S3) EnsureBucket(ctx context.Context, bucket string) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	} else if !isS3NotFound(err) {
		return errors.Wrapf(err, "head bucket %s", bucket)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return errors.Wrapf(err, "create bucket %s", bucket)
	}
	return nil
}

// copySource escapes each path segment of bucket/key.
func copySource(bucket, key string) string {
	segments := strings.Split(bucket+"/"+key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

func isS3NotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	var noBucket *types.NoSuchBucket
	return errors.As(err, &noKey) || errors.As(err, &notFound) || errors.As(err, &noBucket)
}
