package quarantine

import (
	"context"
	"sync/atomic"
	"time"

	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"
)

// RetryFailedScans rescans ERROR records whose bytes are still in quarantine.
//
// orgID may be empty to cover every organization; limit <= 0 uses the
// configured batch size. A record counts as retried when it reaches CLEAN or
// INFECTED and as failed otherwise.
func (m *Manager) RetryFailedScans(ctx context.Context, orgID string, limit int) (*RetryResult, error) {
	if limit <= 0 {
		limit = m.settings.Retry.BatchLimit
	}
	logger := m.loggerFrom(ctx).Named("retry")

	recs, err := m.repo.FindByStatus(ctx, RecordQuery{
		OrgID:          orgID,
		Status:         StatusError,
		ExcludeDeleted: true,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}

	var retried, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(m.settings.Retry.Concurrency)
	for _, rec := range recs {
		g.Go(func() error {
			status, err := m.retryRecord(ctx, rec.ID)
			switch {
			case IsCode(err, ErrCodeResourceBusy):
				logger.Debug("record claimed elsewhere, skip", zap.String("file_id", rec.ID))
				return nil
			case err != nil:
				logger.Warn("retry record", zap.Error(err), zap.String("file_id", rec.ID))
				failed.Add(1)
			case status == StatusClean || status == StatusInfected:
				retried.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &RetryResult{Retried: int(retried.Load()), Failed: int(failed.Load())}
	lifecycleRecordsTotal.WithLabelValues("retry", "retried").Add(float64(result.Retried))
	lifecycleRecordsTotal.WithLabelValues("retry", "failed").Add(float64(result.Failed))
	logger.Info("retry batch finished",
		zap.Int("candidates", len(recs)),
		zap.Int("retried", result.Retried),
		zap.Int("failed", result.Failed))
	return result, nil
}

// CleanupOldQuarantinedFiles abandons SCANNING records that have not changed
// for longer than maxAge: their bytes are deleted and they move to ERROR with a
// cleanup reason. maxAge <= 0 uses the configured age.
func (m *Manager) CleanupOldQuarantinedFiles(ctx context.Context, maxAge time.Duration) (*CleanupResult, error) {
	if maxAge <= 0 {
		maxAge = m.settings.Cleanup.MaxAge
	}
	logger := m.loggerFrom(ctx).Named("cleanup")
	cutoff := m.clock().Add(-maxAge)

	recs, err := m.repo.FindByStatus(ctx, RecordQuery{
		Status:        StatusScanning,
		UpdatedBefore: cutoff,
	})
	if err != nil {
		return nil, err
	}

	reason := "abandoned: no scan verdict within " + maxAge.String()
	result := &CleanupResult{}
	for _, rec := range recs {
		if ok := m.abandonRecord(ctx, logger.With(zap.String("file_id", rec.ID)), rec, reason); ok {
			result.Deleted++
		}
	}

	lifecycleRecordsTotal.WithLabelValues("cleanup", "abandoned").Add(float64(result.Deleted))
	logger.Info("cleanup finished",
		zap.Int("candidates", len(recs)),
		zap.Int("deleted", result.Deleted),
		zap.Time("cutoff", cutoff))
	return result, nil
}

func (m *Manager) abandonRecord(ctx context.Context, logger logSDK.Logger, rec QuarantineRecord, reason string) bool {
	release, ok, err := m.locks.TryLock(ctx, rec.ID)
	if err != nil {
		logger.Warn("acquire lock for cleanup", zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	defer release()

	if err := m.store.DeleteIfExists(ctx, rec.QuarantineKey); err != nil {
		logger.Warn("delete abandoned quarantine object", zap.Error(err), zap.String("key", rec.QuarantineKey))
		return false
	}
	abandoned, err := m.repo.MarkAbandoned(ctx, rec.ID, reason, m.clock())
	if err != nil {
		logger.Warn("mark record abandoned", zap.Error(err))
		return false
	}
	return abandoned
}

// StartLifecycleJobs runs retry and cleanup periodically until ctx is done.
func (m *Manager) StartLifecycleJobs(ctx context.Context) {
	go m.runPeriodically(ctx, "retry", m.settings.Retry.Interval, func(ctx context.Context) error {
		_, err := m.RetryFailedScans(ctx, "", 0)
		return err
	})
	go m.runPeriodically(ctx, "cleanup", m.settings.Cleanup.Interval, func(ctx context.Context) error {
		_, err := m.CleanupOldQuarantinedFiles(ctx, 0)
		return err
	})
}

func (m *Manager) runPeriodically(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	logger := m.logger.Named(name + "_job")
	logger.Info("lifecycle job started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("lifecycle job stopped")
			return
		case <-ticker.C:
		}

		if err := job(ctx); err != nil {
			logger.Error("lifecycle job failed", zap.Error(err))
		}
	}
}
