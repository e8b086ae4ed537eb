package scanner

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/laisky-file-quarantine/library/config"
)

// Settings captures scanner selection and backend configuration.
//
// AllowBypass permits treating content as clean when no backend is available;
// it is always false in production.
type Settings struct {
	Enabled                bool
	AllowBypass            bool
	PatternFallback        bool
	PatternFallbackOnError bool
	KnownBadHashes         []string
	ClamAV                 ClamAVSettings
	External               ExternalSettings
}

// ClamAVSettings configures the clamd INSTREAM client.
type ClamAVSettings struct {
	Host       string
	Port       int
	Timeout    time.Duration
	ChunkBytes int
}

// Configured reports whether a daemon address is present.
func (s ClamAVSettings) Configured() bool {
	return s.Host != "" && s.Port > 0
}

// Addr returns the host:port of the daemon.
func (s ClamAVSettings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ExternalSettings configures the third-party scanning API.
type ExternalSettings struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Configured reports whether the API endpoint is present.
func (s ExternalSettings) Configured() bool {
	return s.BaseURL != ""
}

// IsProduction reports whether env names a production deployment.
func IsProduction(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

// LoadSettingsFromConfig reads scanner configuration and applies safe defaults.
func LoadSettingsFromConfig() Settings {
	settings := Settings{
		Enabled:                config.Bool("settings.quarantine.scan.enabled", true),
		AllowBypass:            config.Bool("settings.quarantine.scan.allow_bypass", false),
		PatternFallback:        config.Bool("settings.quarantine.scan.pattern_fallback", true),
		PatternFallbackOnError: config.Bool("settings.quarantine.scan.pattern_fallback_on_error", false),
		KnownBadHashes:         config.Strings("settings.quarantine.scan.known_bad_hashes"),
		ClamAV: ClamAVSettings{
			Host:       config.String("settings.quarantine.scan.clamav.host", ""),
			Port:       config.Int("settings.quarantine.scan.clamav.port", 0),
			Timeout:    time.Duration(config.Int("settings.quarantine.scan.clamav.timeout_ms", 60000)) * time.Millisecond,
			ChunkBytes: config.Int("settings.quarantine.scan.clamav.chunk_bytes", 64*1024),
		},
		External: ExternalSettings{
			BaseURL: strings.TrimRight(config.String("settings.quarantine.scan.external.base_url", ""), "/"),
			APIKey:  config.String("settings.quarantine.scan.external.api_key", ""),
			Timeout: time.Duration(config.Int("settings.quarantine.scan.external.timeout_seconds", 120)) * time.Second,
		},
	}

	return settings.normalize(config.String("settings.env", "dev"))
}

// normalize applies defaults and the production bypass policy.
func (s Settings) normalize(env string) Settings {
	if IsProduction(env) {
		s.AllowBypass = false
	}
	if s.ClamAV.Host != "" && s.ClamAV.Port <= 0 {
		s.ClamAV.Port = 3310
	}
	if s.ClamAV.Timeout <= 0 {
		s.ClamAV.Timeout = 60 * time.Second
	}
	if s.ClamAV.ChunkBytes <= 0 {
		s.ClamAV.ChunkBytes = 64 * 1024
	}
	if s.External.Timeout <= 0 {
		s.External.Timeout = 120 * time.Second
	}
	return s
}
