package web

import (
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/jinzhu/copier"

	"github.com/Laisky/laisky-file-quarantine/internal/quarantine"
)

// fileResponse is the public view of a record. Storage keys stay internal.
type fileResponse struct {
	ID             string        `json:"id"`
	OrgID          string        `json:"org_id"`
	UserID         string        `json:"user_id"`
	Filename       string        `json:"filename"`
	ContentType    string        `json:"content_type"`
	Size           int64         `json:"size"`
	ContentHash    string        `json:"content_hash"`
	Status         string        `json:"status"`
	SignatureValid bool          `json:"signature_valid"`
	DetectedType   string        `json:"detected_type,omitempty"`
	Attempts       int           `json:"attempts"`
	CleanupReason  string        `json:"cleanup_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	ScannedAt      *time.Time    `json:"scanned_at,omitempty"`
	ProcessedAt    *time.Time    `json:"processed_at,omitempty"`
	Downloadable   bool          `json:"downloadable"`
	Scan           *scanResponse `json:"scan,omitempty"`
}

// uploadResponse acknowledges an accepted upload without its storage key.
type uploadResponse struct {
	ID                   string `json:"id"`
	Status               string `json:"status"`
	EstimatedTimeSeconds int    `json:"estimated_time_seconds"`
}

func newUploadResponse(res *quarantine.UploadResult) uploadResponse {
	return uploadResponse{
		ID:                   res.ID,
		Status:               string(res.Status),
		EstimatedTimeSeconds: res.EstimatedTimeSeconds,
	}
}

type scanResponse struct {
	Clean   bool     `json:"clean"`
	Backend string   `json:"backend"`
	Threat  string   `json:"threat,omitempty"`
	Threats []string `json:"threats,omitempty"`
	Error   string   `json:"error,omitempty"`
}

type listResponse struct {
	Files    []fileResponse `json:"files"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

func newFileResponse(st *quarantine.FileStatus) (fileResponse, error) {
	var resp fileResponse
	if err := copier.Copy(&resp, st); err != nil {
		return resp, errors.Wrap(err, "copy file status")
	}
	resp.Status = string(st.Status)
	resp.Downloadable = st.Status == quarantine.StatusClean && st.ProductionKey != ""

	if st.ScanResult != nil {
		resp.Scan = &scanResponse{
			Clean:   st.ScanResult.Clean,
			Backend: st.ScanResult.Backend,
			Threat:  st.ScanResult.Threat,
			Threats: st.ScanResult.Threats,
			Error:   st.ScanResult.Error,
		}
	}
	return resp, nil
}
