// Package quarantine isolates untrusted uploads until a scanner decides whether
// to promote, purge, or hold them for retry.
package quarantine

import "time"

// Clock returns the current time in UTC.
type Clock func() time.Time

// Status is the lifecycle state of a quarantine record.
type Status string

const (
	StatusScanning Status = "SCANNING"
	StatusClean    Status = "CLEAN"
	StatusInfected Status = "INFECTED"
	StatusError    Status = "ERROR"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusScanning, StatusClean, StatusInfected, StatusError}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScanning, StatusClean, StatusInfected, StatusError:
		return true
	default:
		return false
	}
}

// UploadRequest carries an untrusted upload and its declared metadata.
type UploadRequest struct {
	Content     []byte
	OrgID       string
	UserID      string
	Filename    string
	ContentType string
	Size        int64
}

// UploadResult is returned as soon as the bytes are stored in quarantine.
type UploadResult struct {
	ID                   string `json:"id"`
	Status               Status `json:"status"`
	EstimatedTimeSeconds int    `json:"estimated_time_seconds"`
	QuarantineKey        string `json:"quarantine_key"`
}

// FileStatus is the caller-facing view of a record.
//
// ProductionKey is only populated for CLEAN records.
type FileStatus struct {
	ID             string      `json:"id"`
	OrgID          string      `json:"org_id"`
	UserID         string      `json:"user_id"`
	Filename       string      `json:"filename"`
	ContentType    string      `json:"content_type"`
	Size           int64       `json:"size"`
	ContentHash    string      `json:"content_hash"`
	Status         Status      `json:"status"`
	ScanResult     *ScanResult `json:"scan_result,omitempty"`
	SignatureValid bool        `json:"signature_valid"`
	DetectedType   string      `json:"detected_type,omitempty"`
	ProductionKey  string      `json:"production_key,omitempty"`
	Attempts       int         `json:"attempts"`
	CleanupReason  string      `json:"cleanup_reason,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	ScannedAt      *time.Time  `json:"scanned_at,omitempty"`
	ProcessedAt    *time.Time  `json:"processed_at,omitempty"`
}

// ListRequest filters and paginates records of one organization.
type ListRequest struct {
	OrgID    string
	Status   Status
	Page     int
	PageSize int
}

// ListResult is a page of records.
type ListResult struct {
	Files    []FileStatus `json:"files"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// RetryResult counts the outcome of a retry batch.
type RetryResult struct {
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
}

// CleanupResult counts records abandoned by cleanup.
type CleanupResult struct {
	Deleted int `json:"deleted"`
}

// Stats counts records per status.
type Stats struct {
	Scanning int64 `json:"scanning"`
	Clean    int64 `json:"clean"`
	Infected int64 `json:"infected"`
	Error    int64 `json:"error"`
	Total    int64 `json:"total"`
}
