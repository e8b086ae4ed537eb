package quarantine

import (
	"context"
	"sync"
	"time"

	errors "github.com/Laisky/errors/v2"

	"github.com/Laisky/laisky-file-quarantine/library/db/redis"
)

// LockProvider serializes the scan-and-process sequence per record.
type LockProvider interface {
	// TryLock returns ok=false without blocking when id is already held.
	TryLock(ctx context.Context, id string) (release func(), ok bool, err error)
}

// LocalLockProvider holds locks in process memory.
type LocalLockProvider struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocalLockProvider returns an empty in-process lock set.
func NewLocalLockProvider() *LocalLockProvider {
	return &LocalLockProvider{held: make(map[string]struct{})}
}

// TryLock marks id as held.
func (p *LocalLockProvider) TryLock(_ context.Context, id string) (func(), bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.held[id]; ok {
		return nil, false, nil
	}
	p.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.held, id)
			p.mu.Unlock()
		})
	}, true, nil
}

// RedisLockProvider shares locks across processes through redis SET NX.
type RedisLockProvider struct {
	db  *redis.DB
	ttl time.Duration
}

// NewRedisLockProvider constructs a redis-backed lock provider.
func NewRedisLockProvider(db *redis.DB, ttl time.Duration) *RedisLockProvider {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLockProvider{db: db, ttl: ttl}
}

// TryLock acquires the lock key of id.
func (p *RedisLockProvider) TryLock(ctx context.Context, id string) (func(), bool, error) {
	if p == nil || p.db == nil {
		return nil, false, errors.New("redis lock provider is not configured")
	}
	release, ok, err := p.db.TryLock(ctx, redis.KeyPrefixScanLock+id, p.ttl)
	if err != nil || !ok {
		return nil, ok, err
	}
	return func() {
		_ = release(context.WithoutCancel(ctx))
	}, true, nil
}
