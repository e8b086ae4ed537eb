package quarantine

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	errors "github.com/Laisky/errors/v2"
)

// ThreatList is a list of threat names stored as a JSON array.
type ThreatList []string

// Value implements driver.Valuer.
func (l ThreatList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, errors.Wrap(err, "marshal threat list")
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *ThreatList) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return errors.Errorf("unsupported threat list type %T", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return errors.Wrap(err, "unmarshal threat list")
	}
	*l = out
	return nil
}

// ScanResult is the single authoritative scan verdict of a record.
// A retry overwrites it.
type ScanResult struct {
	Clean   bool       `json:"clean"`
	Backend string     `gorm:"size:32" json:"backend"`
	Threat  string     `gorm:"size:255" json:"threat,omitempty"`
	Threats ThreatList `gorm:"type:text" json:"threats,omitempty"`
	Error   string     `gorm:"type:text" json:"error,omitempty"`
	At      *time.Time `json:"at,omitempty"`
}

// QuarantineRecord is one uploaded file. Rows are never physically deleted.
type QuarantineRecord struct {
	ID             string     `gorm:"primaryKey;size:64"`
	OrgID          string     `gorm:"size:128;not null"`
	UserID         string     `gorm:"size:128;not null"`
	Filename       string     `gorm:"size:255;not null"`
	ContentType    string     `gorm:"size:255"`
	Size           int64      `gorm:"not null"`
	ContentHash    string     `gorm:"size:128;index"`
	QuarantineKey  string     `gorm:"size:1024;not null"`
	ProductionKey  string     `gorm:"size:1024"`
	Status         Status     `gorm:"size:16;not null;index"`
	ScanResult     ScanResult `gorm:"embedded;embeddedPrefix:scan_"`
	SignatureValid bool
	DetectedType   string `gorm:"size:255"`
	Deleted        bool   `gorm:"not null;default:false"`
	DeletedAt      *time.Time
	CleanupReason  string `gorm:"size:255"`
	Attempts       int    `gorm:"not null;default:0"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ScannedAt      *time.Time
	ProcessedAt    *time.Time
}

// TableName returns the database table name.
func (QuarantineRecord) TableName() string {
	return "quarantine_records"
}

// toStatus builds the caller-facing view, hiding storage keys that must not leak.
func (r *QuarantineRecord) toStatus() FileStatus {
	view := FileStatus{
		ID:             r.ID,
		OrgID:          r.OrgID,
		UserID:         r.UserID,
		Filename:       r.Filename,
		ContentType:    r.ContentType,
		Size:           r.Size,
		ContentHash:    r.ContentHash,
		Status:         r.Status,
		SignatureValid: r.SignatureValid,
		DetectedType:   r.DetectedType,
		Attempts:       r.Attempts,
		CleanupReason:  r.CleanupReason,
		CreatedAt:      r.CreatedAt,
		ScannedAt:      r.ScannedAt,
		ProcessedAt:    r.ProcessedAt,
	}
	if r.ScanResult.At != nil || r.ScanResult.Backend != "" {
		result := r.ScanResult
		view.ScanResult = &result
	}
	if r.Status == StatusClean {
		view.ProductionKey = r.ProductionKey
	}
	return view
}
