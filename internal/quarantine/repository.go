package quarantine

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-file-quarantine/internal/scanner"
)

// Repository persists quarantine records.
//
// Every transition is a single-row update guarded by the expected current
// status, so concurrent writers cannot move a record out of order.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a repository over db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RecordQuery selects records by status.
type RecordQuery struct {
	OrgID          string
	Status         Status
	UpdatedBefore  time.Time
	ExcludeDeleted bool
	Limit          int
}

// Create inserts a new record.
func (r *Repository) Create(ctx context.Context, rec *QuarantineRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return errors.Wrap(err, "create quarantine record")
	}
	return nil
}

// FindByID loads a record.
func (r *Repository) FindByID(ctx context.Context, id string) (*QuarantineRecord, error) {
	var rec QuarantineRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewError(ErrCodeNotFound, "quarantine record not found", false)
		}
		return nil, errors.Wrap(err, "find quarantine record")
	}
	return &rec, nil
}

// List returns a page of an organization's records, newest first.
func (r *Repository) List(ctx context.Context, orgID string, status Status, offset, limit int) ([]QuarantineRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&QuarantineRecord{}).Where("org_id = ?", orgID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count quarantine records")
	}

	var recs []QuarantineRecord
	if err := query.Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list quarantine records")
	}
	return recs, total, nil
}

// FindByStatus returns records in q.Status, oldest first.
func (r *Repository) FindByStatus(ctx context.Context, q RecordQuery) ([]QuarantineRecord, error) {
	query := r.db.WithContext(ctx).Where("status = ?", q.Status)
	if q.OrgID != "" {
		query = query.Where("org_id = ?", q.OrgID)
	}
	if !q.UpdatedBefore.IsZero() {
		query = query.Where("updated_at < ?", q.UpdatedBefore)
	}
	if q.ExcludeDeleted {
		query = query.Where("deleted = ?", false)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var recs []QuarantineRecord
	if err := query.Order("created_at ASC").Order("id ASC").Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "find quarantine records by status")
	}
	return recs, nil
}

// CountByStatus counts records per status, optionally for one organization.
func (r *Repository) CountByStatus(ctx context.Context, orgID string) (map[Status]int64, error) {
	query := r.db.WithContext(ctx).Model(&QuarantineRecord{})
	if orgID != "" {
		query = query.Where("org_id = ?", orgID)
	}

	var rows []struct {
		Status Status
		Count  int64
	}
	if err := query.Select("status, COUNT(*) AS count").Group("status").Scan(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "count quarantine records by status")
	}

	counts := make(map[Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// MarkClean moves a SCANNING record to CLEAN with its production key.
func (r *Repository) MarkClean(ctx context.Context, id, productionKey string, outcome scanner.Outcome, now time.Time) (bool, error) {
	updates := scanColumns(outcome)
	updates["status"] = StatusClean
	updates["production_key"] = productionKey
	updates["scanned_at"] = now
	updates["processed_at"] = now
	updates["updated_at"] = now
	return r.transition(ctx, id, StatusScanning, updates)
}

// MarkInfected moves a SCANNING record to INFECTED and records the deletion of its bytes.
func (r *Repository) MarkInfected(ctx context.Context, id string, outcome scanner.Outcome, now time.Time) (bool, error) {
	updates := scanColumns(outcome)
	updates["status"] = StatusInfected
	updates["production_key"] = ""
	updates["deleted"] = true
	updates["deleted_at"] = now
	updates["scanned_at"] = now
	updates["processed_at"] = now
	updates["updated_at"] = now
	return r.transition(ctx, id, StatusScanning, updates)
}

// MarkError moves a SCANNING record to ERROR, keeping its bytes in quarantine.
func (r *Repository) MarkError(ctx context.Context, id string, outcome scanner.Outcome, now time.Time) (bool, error) {
	updates := scanColumns(outcome)
	updates["status"] = StatusError
	updates["scanned_at"] = now
	updates["updated_at"] = now
	return r.transition(ctx, id, StatusScanning, updates)
}

// ClaimForRetry moves an ERROR record back to SCANNING and counts the attempt.
func (r *Repository) ClaimForRetry(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.transition(ctx, id, StatusError, map[string]any{
		"status":     StatusScanning,
		"attempts":   gorm.Expr("attempts + 1"),
		"updated_at": now,
	})
}

// MarkAbandoned moves a stuck SCANNING record to ERROR with a cleanup annotation.
func (r *Repository) MarkAbandoned(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	return r.transition(ctx, id, StatusScanning, map[string]any{
		"status":         StatusError,
		"cleanup_reason": reason,
		"deleted":        true,
		"deleted_at":     now,
		"processed_at":   now,
		"updated_at":     now,
	})
}

// MarkBytesGone records ERROR for a SCANNING record whose quarantined bytes no
// longer exist. The record is flagged deleted so retry does not pick it up again.
func (r *Repository) MarkBytesGone(ctx context.Context, id string, outcome scanner.Outcome, reason string, now time.Time) (bool, error) {
	updates := scanColumns(outcome)
	updates["status"] = StatusError
	updates["cleanup_reason"] = reason
	updates["deleted"] = true
	updates["deleted_at"] = now
	updates["scanned_at"] = now
	updates["processed_at"] = now
	updates["updated_at"] = now
	return r.transition(ctx, id, StatusScanning, updates)
}

// transition applies updates only if the record is still in from.
func (r *Repository) transition(ctx context.Context, id string, from Status, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).Model(&QuarantineRecord{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "update quarantine record from %s", from)
	}
	return res.RowsAffected == 1, nil
}

// scanColumns flattens an outcome into the scan_* columns, replacing any previous result.
func scanColumns(outcome scanner.Outcome) map[string]any {
	at := outcome.ScannedAt
	return map[string]any{
		"scan_clean":   outcome.Clean,
		"scan_backend": string(outcome.ScannerType),
		"scan_threat":  outcome.Threat,
		"scan_threats": ThreatList(outcome.Threats),
		"scan_error":   outcome.Error,
		"scan_at":      &at,
	}
}
