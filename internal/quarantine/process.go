package quarantine

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-file-quarantine/internal/scanner"
	"github.com/Laisky/laisky-file-quarantine/library/objstore"
)

// processRecord runs the scan-and-process sequence for one SCANNING record.
//
// The record ends in exactly one of CLEAN, INFECTED or ERROR. A returned error
// means the sequence could not record its own result; the caller moves the
// record to ERROR.
func (m *Manager) processRecord(ctx context.Context, id string) error {
	logger := m.loggerFrom(ctx).With(zap.String("file_id", id))

	release, ok, err := m.locks.TryLock(ctx, id)
	if err != nil {
		return errors.Wrap(err, "acquire scan lock")
	}
	if !ok {
		logger.Info("record is already being processed, skip")
		return nil
	}
	defer release()

	rec, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "load record")
	}
	if rec.Status != StatusScanning {
		logger.Debug("record is no longer scanning, skip", zap.String("status", string(rec.Status)))
		return nil
	}

	content, err := m.store.Get(ctx, rec.QuarantineKey)
	if errors.Is(err, objstore.ErrNotFound) {
		logger.Error("quarantined object is missing", zap.String("key", rec.QuarantineKey))
		orphanedObjectsTotal.WithLabelValues("missing").Inc()
		return m.markBytesGone(ctx, logger, rec, scanner.Outcome{
			Error:     "read quarantined object: " + err.Error(),
			ScannedAt: m.clock(),
		}, "quarantined object missing")
	}
	if err != nil {
		return m.hold(ctx, logger, rec, scanner.Outcome{
			Error:     "read quarantined object: " + err.Error(),
			ScannedAt: m.clock(),
		})
	}

	startAt := time.Now()
	outcome, err := m.scanner.Scan(ctx, content)
	if err != nil {
		outcome = scanner.Outcome{
			ScannerType: outcome.ScannerType,
			Error:       err.Error(),
			ScannedAt:   m.clock(),
		}
	}
	scanDuration.WithLabelValues(scannerLabel(outcome)).Observe(time.Since(startAt).Seconds())

	switch {
	case outcome.HasThreat():
		return m.purge(ctx, logger, rec, outcome)
	case outcome.Clean:
		return m.promote(ctx, logger, rec, outcome)
	default:
		return m.hold(ctx, logger, rec, outcome)
	}
}

// promote copies the clean bytes to production and marks the record CLEAN.
// Running it again for a record that is already CLEAN is a no-op.
func (m *Manager) promote(ctx context.Context, logger logSDK.Logger, rec *QuarantineRecord, outcome scanner.Outcome) error {
	if rec.Status == StatusClean && rec.ProductionKey != "" {
		return nil
	}

	prodKey, err := m.store.ProductionKey(rec.QuarantineKey)
	if err != nil {
		outcome.Clean = false
		outcome.Error = "derive production key: " + err.Error()
		return m.hold(ctx, logger, rec, outcome)
	}

	if err := m.store.Copy(ctx, rec.QuarantineKey, prodKey); err != nil {
		if !errors.Is(err, objstore.ErrNotFound) {
			outcome.Clean = false
			outcome.Error = "promote to production: " + err.Error()
			return m.hold(ctx, logger, rec, outcome)
		}
		// an earlier attempt may have copied and removed the original already
		exists, existsErr := m.store.Exists(ctx, prodKey)
		if existsErr != nil || !exists {
			outcome.Clean = false
			outcome.Error = "promote to production: quarantined object is missing"
			return m.hold(ctx, logger, rec, outcome)
		}
	}

	now := m.clock()
	ok, err := m.repo.MarkClean(ctx, rec.ID, prodKey, outcome, now)
	if err != nil || !ok {
		if current, findErr := m.repo.FindByID(ctx, rec.ID); findErr == nil &&
			current.Status == StatusClean && current.ProductionKey == prodKey {
			return nil
		}
		if delErr := m.store.DeleteIfExists(context.WithoutCancel(ctx), prodKey); delErr != nil {
			logger.Error("remove unreferenced production object", zap.Error(delErr), zap.String("key", prodKey))
		}
		if err != nil {
			return errors.Wrap(err, "mark record clean")
		}
		logger.Warn("record changed during promotion, production copy discarded")
		return nil
	}

	if err := m.store.DeleteIfExists(ctx, rec.QuarantineKey); err != nil {
		logger.Error("remove promoted quarantine object", zap.Error(err), zap.String("key", rec.QuarantineKey))
		orphanedObjectsTotal.WithLabelValues("quarantine").Inc()
	}

	scanOutcomesTotal.WithLabelValues(string(StatusClean), scannerLabel(outcome)).Inc()
	logger.Info("file promoted to production",
		zap.String("scanner", string(outcome.ScannerType)),
		zap.String("production_key", prodKey))
	return nil
}

// hold keeps the bytes in quarantine and marks the record ERROR for retry.
func (m *Manager) hold(ctx context.Context, logger logSDK.Logger, rec *QuarantineRecord, outcome scanner.Outcome) error {
	outcome.Clean = false
	if outcome.ScannedAt.IsZero() {
		outcome.ScannedAt = m.clock()
	}
	if outcome.Error == "" {
		outcome.Error = "scan did not produce a verdict"
	}

	ok, err := m.repo.MarkError(ctx, rec.ID, outcome, m.clock())
	if err != nil {
		return errors.Wrap(err, "mark record error")
	}
	if !ok {
		logger.Debug("record left scanning before it could be held")
		return nil
	}

	scanOutcomesTotal.WithLabelValues(string(StatusError), scannerLabel(outcome)).Inc()
	logger.Warn("scan failed, file held in quarantine for retry",
		zap.String("scanner", string(outcome.ScannerType)),
		zap.String("error", outcome.Error))
	return nil
}

// purge deletes infected bytes, marks the record INFECTED, raises a security
// alert and notifies the uploader in the background.
func (m *Manager) purge(ctx context.Context, logger logSDK.Logger, rec *QuarantineRecord, outcome scanner.Outcome) error {
	outcome.Clean = false
	if err := m.store.DeleteIfExists(ctx, rec.QuarantineKey); err != nil {
		logger.Error("delete infected object", zap.Error(err), zap.String("key", rec.QuarantineKey))
		outcome.Error = "delete infected object: " + err.Error()
		return m.hold(ctx, logger, rec, outcome)
	}
	// a crashed promotion may have left a production copy behind
	if prodKey, err := m.store.ProductionKey(rec.QuarantineKey); err == nil {
		if err := m.store.DeleteIfExists(ctx, prodKey); err != nil {
			logger.Error("delete infected production object", zap.Error(err), zap.String("key", prodKey))
			outcome.Error = "delete infected production object: " + err.Error()
			return m.hold(ctx, logger, rec, outcome)
		}
	}

	now := m.clock()
	alert := SecurityAlert{
		FileID:    rec.ID,
		OrgID:     rec.OrgID,
		UserID:    rec.UserID,
		Filename:  rec.Filename,
		Threat:    outcome.Threat,
		Threats:   outcome.Threats,
		Scanner:   string(outcome.ScannerType),
		Timestamp: now,
	}

	ok, err := m.repo.MarkInfected(ctx, rec.ID, outcome, now)
	if err != nil {
		// the bytes are gone, so the alert must not depend on the status write
		logger.Error("mark record infected", zap.Error(err))
		m.alerter.Alert(ctx, alert)
		m.notifyAsync(ctx, logger, alert)
		outcome.Error = "record update failed after infected bytes were deleted: " + err.Error()
		return m.markBytesGone(ctx, logger, rec, outcome, "infected bytes deleted, infected status not recorded")
	}
	if !ok {
		logger.Warn("record left scanning before it could be marked infected")
		return nil
	}
	scanOutcomesTotal.WithLabelValues(string(StatusInfected), scannerLabel(outcome)).Inc()

	m.alerter.Alert(ctx, alert)
	m.notifyAsync(ctx, logger, alert)
	return nil
}

// markBytesGone moves a record whose bytes no longer exist to ERROR and flags
// it deleted, so retry leaves it alone.
func (m *Manager) markBytesGone(ctx context.Context, logger logSDK.Logger, rec *QuarantineRecord, outcome scanner.Outcome, reason string) error {
	outcome.Clean = false
	ok, err := m.repo.MarkBytesGone(ctx, rec.ID, outcome, reason, m.clock())
	if err != nil {
		return errors.Wrap(err, "mark record without bytes")
	}
	if !ok {
		logger.Debug("record left scanning before it could be marked deleted")
		return nil
	}
	scanOutcomesTotal.WithLabelValues(string(StatusError), scannerLabel(outcome)).Inc()
	logger.Warn("record moved to error without bytes", zap.String("reason", reason))
	return nil
}

// notifyAsync informs the uploader without blocking; failures are only logged.
func (m *Manager) notifyAsync(ctx context.Context, logger logSDK.Logger, alert SecurityAlert) {
	ctx = context.WithoutCancel(ctx)
	m.notifyWG.Add(1)
	go func() {
		defer m.notifyWG.Done()
		if err := m.notifier.NotifyInfected(ctx, alert); err != nil {
			logger.Warn("notify user about infected file", zap.Error(err), zap.String("user_id", alert.UserID))
		}
	}()
}

// failRecord is the error boundary of background processing.
func (m *Manager) failRecord(ctx context.Context, id string, cause error) {
	logger := m.loggerFrom(ctx).With(zap.String("file_id", id))
	logger.Error("scan processing failed", zap.Error(cause))

	now := m.clock()
	ok, err := m.repo.MarkError(ctx, id, scanner.Outcome{
		Error:     "processing failed: " + cause.Error(),
		ScannedAt: now,
	}, now)
	switch {
	case err != nil:
		logger.Error("mark failed record as error", zap.Error(err))
	case ok:
		scanOutcomesTotal.WithLabelValues(string(StatusError), "none").Inc()
	}
}

func scannerLabel(outcome scanner.Outcome) string {
	if outcome.ScannerType == "" {
		return "none"
	}
	return string(outcome.ScannerType)
}
