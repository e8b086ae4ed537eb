package quarantine

import (
	"strings"
	"time"

	"github.com/Laisky/laisky-file-quarantine/internal/scanner"
	"github.com/Laisky/laisky-file-quarantine/library/config"
	"github.com/Laisky/laisky-file-quarantine/library/objstore"
)

const (
	defaultQuarantinePrefix = "quarantine"
	defaultProductionPrefix = "production"
	defaultMaxAge           = 7 * 24 * time.Hour
)

// Settings is the immutable quarantine configuration built once at startup.
type Settings struct {
	Env              string
	Bucket           string
	QuarantinePrefix string
	ProductionPrefix string
	MaxFileBytes     int64
	Workers          int
	LockTTL          time.Duration
	Estimate         EstimateSettings
	Retry            RetrySettings
	Cleanup          CleanupSettings
	Alert            AlertSettings
	Notify           NotifySettings
	Storage          objstore.Settings
	Scan             scanner.Settings
}

// EstimateSettings shapes the scan duration estimate returned on upload.
type EstimateSettings struct {
	SecondsPerMB float64
	MinSeconds   int
	MaxSeconds   int
}

// RetrySettings configures the periodic retry of ERROR records.
type RetrySettings struct {
	Interval    time.Duration
	BatchLimit  int
	Concurrency int
}

// CleanupSettings configures the periodic abandonment of stuck SCANNING records.
type CleanupSettings struct {
	Interval time.Duration
	MaxAge   time.Duration
}

// AlertSettings configures the security alert webhook.
type AlertSettings struct {
	WebhookURL string
	Timeout    time.Duration
}

// NotifySettings configures infected-file user notification.
type NotifySettings struct {
	WebhookURL string
	Contacts   map[string]string
}

// LoadSettingsFromConfig reads configuration and applies safe defaults.
func LoadSettingsFromConfig() Settings {
	settings := Settings{
		Env:              config.String("settings.env", "dev"),
		Bucket:           config.String("settings.quarantine.bucket", "uploads"),
		QuarantinePrefix: config.String("settings.quarantine.quarantine_prefix", defaultQuarantinePrefix),
		ProductionPrefix: config.String("settings.quarantine.production_prefix", defaultProductionPrefix),
		MaxFileBytes:     config.Int64("settings.quarantine.max_file_bytes", 100<<20),
		Workers:          config.Int("settings.quarantine.workers", 4),
		LockTTL:          time.Duration(config.Int("settings.quarantine.lock_ttl_seconds", 600)) * time.Second,
		Estimate: EstimateSettings{
			SecondsPerMB: config.Float("settings.quarantine.estimate.seconds_per_mb", 0.5),
			MinSeconds:   config.Int("settings.quarantine.estimate.min_seconds", 5),
			MaxSeconds:   config.Int("settings.quarantine.estimate.max_seconds", 120),
		},
		Retry: RetrySettings{
			Interval:    time.Duration(config.Int("settings.quarantine.retry.interval_seconds", 300)) * time.Second,
			BatchLimit:  config.Int("settings.quarantine.retry.batch_limit", 50),
			Concurrency: config.Int("settings.quarantine.retry.concurrency", 3),
		},
		Cleanup: CleanupSettings{
			Interval: time.Duration(config.Int("settings.quarantine.cleanup.interval_seconds", 3600)) * time.Second,
			MaxAge:   time.Duration(config.Int("settings.quarantine.cleanup.max_age_hours", 7*24)) * time.Hour,
		},
		Alert: AlertSettings{
			WebhookURL: config.String("settings.quarantine.alert.webhook_url", ""),
			Timeout:    time.Duration(config.Int("settings.quarantine.alert.timeout_ms", 5000)) * time.Millisecond,
		},
		Notify: NotifySettings{
			WebhookURL: config.String("settings.quarantine.notify.webhook_url", ""),
			Contacts:   config.StringMap("settings.quarantine.notify.contacts"),
		},
		Storage: objstore.Settings{
			Driver:    config.String("settings.quarantine.storage.driver", "minio"),
			Endpoint:  config.String("settings.quarantine.storage.endpoint", ""),
			AccessKey: config.String("settings.quarantine.storage.access_key", ""),
			SecretKey: config.String("settings.quarantine.storage.secret_key", ""),
			Region:    config.String("settings.quarantine.storage.region", ""),
			UseSSL:    config.Bool("settings.quarantine.storage.use_ssl", false),
		},
		Scan: scanner.LoadSettingsFromConfig(),
	}

	return settings.withDefaults()
}

// withDefaults clamps invalid values.
func (s Settings) withDefaults() Settings {
	s.QuarantinePrefix = strings.Trim(s.QuarantinePrefix, "/")
	s.ProductionPrefix = strings.Trim(s.ProductionPrefix, "/")
	if s.QuarantinePrefix == "" {
		s.QuarantinePrefix = defaultQuarantinePrefix
	}
	if s.ProductionPrefix == "" || s.ProductionPrefix == s.QuarantinePrefix {
		s.ProductionPrefix = defaultProductionPrefix
	}
	if s.Bucket == "" {
		s.Bucket = "uploads"
	}
	if s.MaxFileBytes <= 0 {
		s.MaxFileBytes = 100 << 20
	}
	if s.Workers <= 0 {
		s.Workers = 1
	}
	if s.LockTTL <= 0 {
		s.LockTTL = 10 * time.Minute
	}
	if s.Estimate.SecondsPerMB <= 0 {
		s.Estimate.SecondsPerMB = 0.5
	}
	if s.Estimate.MinSeconds <= 0 {
		s.Estimate.MinSeconds = 5
	}
	if s.Estimate.MaxSeconds < s.Estimate.MinSeconds {
		s.Estimate.MaxSeconds = s.Estimate.MinSeconds
	}
	if s.Retry.Interval <= 0 {
		s.Retry.Interval = 5 * time.Minute
	}
	if s.Retry.BatchLimit <= 0 {
		s.Retry.BatchLimit = 50
	}
	if s.Retry.Concurrency <= 0 {
		s.Retry.Concurrency = 1
	}
	if s.Cleanup.Interval <= 0 {
		s.Cleanup.Interval = time.Hour
	}
	if s.Cleanup.MaxAge <= 0 {
		s.Cleanup.MaxAge = defaultMaxAge
	}
	if s.Alert.Timeout <= 0 {
		s.Alert.Timeout = 5 * time.Second
	}
	return s
}
