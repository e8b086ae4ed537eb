package quarantine

import (
	"context"

	errors "github.com/Laisky/errors/v2"

	"github.com/Laisky/laisky-file-quarantine/library/objstore"
)

// Store wraps object storage with the quarantine and production key schemes.
type Store struct {
	storage          objstore.Storage
	bucket           string
	quarantinePrefix string
	productionPrefix string
}

// NewStore constructs a store over storage.
func NewStore(storage objstore.Storage, settings Settings) *Store {
	return &Store{
		storage:          storage,
		bucket:           settings.Bucket,
		quarantinePrefix: settings.QuarantinePrefix,
		productionPrefix: settings.ProductionPrefix,
	}
}

// PutQuarantined writes content under a quarantine key.
func (s *Store) PutQuarantined(ctx context.Context, key string, content []byte, contentType string, metadata map[string]string) error {
	if err := s.storage.Put(ctx, s.bucket, key, content, contentType, metadata); err != nil {
		return errors.Wrap(err, "put quarantined object")
	}
	return nil
}

// Get reads an object.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.storage.Get(ctx, s.bucket, key)
	if err != nil {
		return nil, errors.Wrap(err, "get object")
	}
	return data, nil
}

// Copy copies srcKey to dstKey.
func (s *Store) Copy(ctx context.Context, srcKey, dstKey string) error {
	if err := s.storage.Copy(ctx, s.bucket, srcKey, dstKey); err != nil {
		return errors.Wrap(err, "copy object")
	}
	return nil
}

// DeleteIfExists removes key; a missing object is not an error.
func (s *Store) DeleteIfExists(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.storage.Delete(ctx, s.bucket, key); err != nil && !errors.Is(err, objstore.ErrNotFound) {
		return errors.Wrap(err, "delete object")
	}
	return nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.storage.Exists(ctx, s.bucket, key)
	if err != nil {
		return false, errors.Wrap(err, "stat object")
	}
	return ok, nil
}

// ProductionKey derives the production key of a quarantine key.
func (s *Store) ProductionKey(quarantineKey string) (string, error) {
	key, ok := productionKeyFor(s.quarantinePrefix, s.productionPrefix, quarantineKey)
	if !ok {
		return "", errors.Errorf("key %q is not under the quarantine prefix", quarantineKey)
	}
	return key, nil
}

// EnsureBucket creates the configured bucket when missing.
func (s *Store) EnsureBucket(ctx context.Context) error {
	return s.storage.EnsureBucket(ctx, s.bucket)
}
