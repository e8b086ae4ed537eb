package quarantine

import (
	"context"
	"strings"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetQuarantineStatus returns the caller-facing view of one record.
func (m *Manager) GetQuarantineStatus(ctx context.Context, id string) (*FileStatus, error) {
	if strings.TrimSpace(id) == "" {
		return nil, NewError(ErrCodeInvalidArgument, "file id is required", false)
	}
	rec, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := rec.toStatus()
	return &view, nil
}

// ListQuarantinedFiles pages through an organization's records, newest first.
func (m *Manager) ListQuarantinedFiles(ctx context.Context, req ListRequest) (*ListResult, error) {
	if strings.TrimSpace(req.OrgID) == "" {
		return nil, NewError(ErrCodeInvalidArgument, "org id is required", false)
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, NewError(ErrCodeInvalidArgument, "unknown status "+string(req.Status), false)
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	switch {
	case req.PageSize <= 0:
		req.PageSize = defaultPageSize
	case req.PageSize > maxPageSize:
		req.PageSize = maxPageSize
	}

	recs, total, err := m.repo.List(ctx, req.OrgID, req.Status, (req.Page-1)*req.PageSize, req.PageSize)
	if err != nil {
		return nil, err
	}

	files := make([]FileStatus, 0, len(recs))
	for i := range recs {
		files = append(files, recs[i].toStatus())
	}
	return &ListResult{
		Files:    files,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}

// OpenCleanFile returns the production bytes of a CLEAN record.
// Any other status is not downloadable.
func (m *Manager) OpenCleanFile(ctx context.Context, id string) (*FileStatus, []byte, error) {
	status, err := m.GetQuarantineStatus(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if status.Status != StatusClean || status.ProductionKey == "" {
		return nil, nil, NewError(ErrCodeNotDownloadable,
			"file is "+strings.ToLower(string(status.Status))+" and cannot be downloaded", false)
	}

	data, err := m.store.Get(ctx, status.ProductionKey)
	if err != nil {
		return nil, nil, NewError(ErrCodeStorageFailure, "read production object: "+err.Error(), true)
	}
	return status, data, nil
}

// Stats counts records per status; an empty orgID counts every organization.
func (m *Manager) Stats(ctx context.Context, orgID string) (*Stats, error) {
	counts, err := m.repo.CountByStatus(ctx, orgID)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Scanning: counts[StatusScanning],
		Clean:    counts[StatusClean],
		Infected: counts[StatusInfected],
		Error:    counts[StatusError],
	}
	stats.Total = stats.Scanning + stats.Clean + stats.Infected + stats.Error
	return stats, nil
}

// ReprocessFile rescans one ERROR record synchronously and returns its new state.
func (m *Manager) ReprocessFile(ctx context.Context, id string) (*FileStatus, error) {
	rec, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case rec.Status == StatusScanning:
		return nil, NewError(ErrCodeResourceBusy, "file is still being scanned", true)
	case rec.Status != StatusError:
		return nil, NewError(ErrCodeInvalidState, "only files in ERROR can be reprocessed", false)
	case rec.Deleted:
		return nil, NewError(ErrCodeInvalidState, "quarantined content was already removed", false)
	}

	if _, err := m.retryRecord(ctx, id); err != nil {
		return nil, err
	}
	return m.GetQuarantineStatus(ctx, id)
}

// retryRecord claims an ERROR record and runs the sequence inline.
// It returns the resulting status, or "" when another worker claimed it first.
func (m *Manager) retryRecord(ctx context.Context, id string) (Status, error) {
	claimed, err := m.repo.ClaimForRetry(ctx, id, m.clock())
	if err != nil {
		return "", errors.Wrap(err, "claim record for retry")
	}
	if !claimed {
		return "", NewError(ErrCodeResourceBusy, "file was claimed by another worker", true)
	}

	if err := m.processRecord(ctx, id); err != nil {
		m.failRecord(ctx, id, err)
	}

	rec, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	m.loggerFrom(ctx).Info("record reprocessed",
		zap.String("file_id", id),
		zap.String("status", string(rec.Status)),
		zap.Int("attempts", rec.Attempts))
	return rec.Status, nil
}
