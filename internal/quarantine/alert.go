package quarantine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-file-quarantine/library/log"
)

// SecurityAlert describes a purged infected upload.
type SecurityAlert struct {
	FileID    string    `json:"file_id"`
	OrgID     string    `json:"org_id"`
	UserID    string    `json:"user_id"`
	Filename  string    `json:"filename"`
	Threat    string    `json:"threat"`
	Threats   []string  `json:"threats,omitempty"`
	Scanner   string    `json:"scanner"`
	Timestamp time.Time `json:"timestamp"`
}

// Alerter emits security alerts. Implementations log failures and never return them.
type Alerter interface {
	Alert(ctx context.Context, alert SecurityAlert)
}

// Notification tells an uploader that their file was removed.
type Notification struct {
	To       string    `json:"to"`
	UserID   string    `json:"user_id"`
	FileID   string    `json:"file_id"`
	Filename string    `json:"filename"`
	Threat   string    `json:"threat"`
	Time     time.Time `json:"time"`
}

// Notifier informs the uploading user about an infected file.
type Notifier interface {
	NotifyInfected(ctx context.Context, alert SecurityAlert) error
}

// UserDirectory resolves a user's contact address.
type UserDirectory interface {
	ContactFor(ctx context.Context, userID string) (string, bool, error)
}

// StaticDirectory is a UserDirectory backed by a fixed map of user id to address.
type StaticDirectory map[string]string

// ContactFor looks userID up in the map.
func (d StaticDirectory) ContactFor(_ context.Context, userID string) (string, bool, error) {
	addr, ok := d[userID]
	return addr, ok && addr != "", nil
}

// WebhookAlerter logs a critical alert and optionally posts it to a webhook.
type WebhookAlerter struct {
	url    string
	client *http.Client
	logger logSDK.Logger
}

// NewWebhookAlerter constructs an alerter; url may be empty for log-only alerts.
func NewWebhookAlerter(settings AlertSettings, logger logSDK.Logger) *WebhookAlerter {
	if logger == nil {
		logger = log.Logger.Named("quarantine_alert")
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookAlerter{
		url:    strings.TrimSpace(settings.WebhookURL),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Alert implements Alerter.
func (a *WebhookAlerter) Alert(ctx context.Context, alert SecurityAlert) {
	securityAlertsTotal.Inc()
	a.logger.Error("security alert: infected file purged",
		zap.String("severity", "critical"),
		zap.String("file_id", alert.FileID),
		zap.String("org_id", alert.OrgID),
		zap.String("user_id", alert.UserID),
		zap.String("filename", alert.Filename),
		zap.String("threat", alert.Threat),
		zap.Strings("threats", alert.Threats),
		zap.String("scanner", alert.Scanner),
		zap.Time("timestamp", alert.Timestamp))

	if a.url == "" {
		return
	}
	if err := postJSON(ctx, a.client, a.url, alert); err != nil {
		a.logger.Warn("send security alert webhook", zap.Error(err), zap.String("file_id", alert.FileID))
	}
}

// WebhookNotifier resolves the uploader's address and posts a notification.
// Without a webhook it only logs.
type WebhookNotifier struct {
	url       string
	client    *http.Client
	directory UserDirectory
	logger    logSDK.Logger
}

// NewWebhookNotifier constructs a notifier over directory.
func NewWebhookNotifier(settings NotifySettings, directory UserDirectory, logger logSDK.Logger) *WebhookNotifier {
	if logger == nil {
		logger = log.Logger.Named("quarantine_notify")
	}
	if directory == nil {
		directory = StaticDirectory(settings.Contacts)
	}
	return &WebhookNotifier{
		url:       strings.TrimSpace(settings.WebhookURL),
		client:    &http.Client{Timeout: 10 * time.Second},
		directory: directory,
		logger:    logger,
	}
}

// NotifyInfected implements Notifier. A user without a contact address is logged and skipped.
func (n *WebhookNotifier) NotifyInfected(ctx context.Context, alert SecurityAlert) error {
	to, ok, err := n.directory.ContactFor(ctx, alert.UserID)
	if err != nil {
		return errors.Wrap(err, "lookup user contact")
	}
	if !ok {
		n.logger.Info("no contact address for user, infected file notification skipped",
			zap.String("user_id", alert.UserID),
			zap.String("file_id", alert.FileID))
		return nil
	}

	msg := Notification{
		To:       to,
		UserID:   alert.UserID,
		FileID:   alert.FileID,
		Filename: alert.Filename,
		Threat:   alert.Threat,
		Time:     alert.Timestamp,
	}
	if n.url == "" {
		n.logger.Info("infected file notification",
			zap.String("to", to),
			zap.String("file_id", alert.FileID),
			zap.String("threat", alert.Threat))
		return nil
	}
	return postJSON(ctx, n.client, n.url, msg)
}

// postJSON posts payload and rejects non-2xx responses.
func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal webhook payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "call webhook")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}
