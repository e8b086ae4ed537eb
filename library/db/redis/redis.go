// Package redis wraps go-redis for the distributed scan lock.
package redis

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "quarantine/"

// KeyPrefixScanLock prefixes per-record scan locks.
const KeyPrefixScanLock = keyPrefix + "scan_lock/"

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// DB is a wrapper for go-redis
type DB struct {
	client redis.UniversalClient
}

// NewDB creates a new DB instance
func NewDB(opt *redis.Options) *DB {
	return &DB{client: redis.NewClient(opt)}
}

// NewDBWithClient wraps an existing client.
func NewDBWithClient(client redis.UniversalClient) *DB {
	return &DB{client: client}
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	return nil
}

// Close closes the underlying client.
func (db *DB) Close() error {
	return db.client.Close()
}

// TryLock sets key with SET NX and ttl.
//
// ok is false when another holder owns the key. release is safe to call
// after ttl expiry; it never deletes a lock taken over by someone else.
func (db *DB) TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()
	ok, err = db.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "setnx %s", key)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, db.client, []string{key}, token).Err(); err != nil {
			return errors.Wrapf(err, "release lock %s", key)
		}
		return nil
	}
	return release, true, nil
}
