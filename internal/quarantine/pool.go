package quarantine

import (
	"context"
	"runtime/debug"
	"sync"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Laisky/laisky-file-quarantine/library/log"
)

// ScanPool runs detached scan tasks with bounded concurrency.
//
// A task that returns an error or panics is handed to its failure callback;
// nothing propagates to the submitter.
type ScanPool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger logSDK.Logger
}

// NewScanPool allows at most workers tasks to run at once.
func NewScanPool(workers int, logger logSDK.Logger) *ScanPool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = log.Logger.Named("quarantine_scan_pool")
	}
	return &ScanPool{sem: semaphore.NewWeighted(int64(workers)), logger: logger}
}

// Submit schedules task without blocking. ctx values are kept but its
// cancellation is not, so a finished request does not abort the scan.
func (p *ScanPool) Submit(ctx context.Context, task func(context.Context) error, onFailure func(context.Context, error)) {
	ctx = context.WithoutCancel(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			onFailure(ctx, err)
			return
		}
		defer p.sem.Release(1)

		if err := p.run(ctx, task); err != nil {
			onFailure(ctx, err)
		}
	}()
}

// Wait blocks until every submitted task has finished.
func (p *ScanPool) Wait() {
	p.wg.Wait()
}

func (p *ScanPool) run(ctx context.Context, task func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("scan task panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = errors.Errorf("scan task panicked: %v", r)
		}
	}()
	return task(ctx)
}
