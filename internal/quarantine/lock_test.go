package quarantine

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/laisky-file-quarantine/library/db/redis"
)

// TestLocalLockProvider verifies exclusive acquisition and idempotent release.
func TestLocalLockProvider(t *testing.T) {
	locks := NewLocalLockProvider()
	ctx := context.Background()

	release, ok, err := locks.TryLock(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locks.TryLock(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok)

	releaseB, ok, err := locks.TryLock(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	releaseB()

	release()
	release()
	release, ok, err = locks.TryLock(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	release()
}

// TestRedisLockProvider runs against a real redis when QUARANTINE_TEST_REDIS is set.
func TestRedisLockProvider(t *testing.T) {
	addr := os.Getenv("QUARANTINE_TEST_REDIS")
	if addr == "" {
		t.Skip("QUARANTINE_TEST_REDIS not set")
	}

	db := redis.NewDB(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	require.NoError(t, db.Ping(ctx))

	locks := NewRedisLockProvider(db, time.Minute)
	id := "lock-test-" + time.Now().UTC().Format("150405.000000000")

	release, ok, err := locks.TryLock(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locks.TryLock(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)

	release()
	release, ok, err = locks.TryLock(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	release()
}

// TestRedisLockProviderUnconfigured verifies a nil client is reported, not panicked on.
func TestRedisLockProviderUnconfigured(t *testing.T) {
	_, ok, err := NewRedisLockProvider(nil, 0).TryLock(context.Background(), "x")
	require.Error(t, err)
	require.False(t, ok)
}
