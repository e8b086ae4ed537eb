package scanner

import (
	"context"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-file-quarantine/internal/verifier"
	"github.com/Laisky/laisky-file-quarantine/library/log"
)

// ErrNoScanner is returned when no backend is available and bypass is not permitted.
var ErrNoScanner = errors.New("no scanner backend available and bypass is not permitted")

// Clock returns the current time in UTC.
type Clock func() time.Time

// Strategies is the ordered set of backends the orchestrator may use.
// A nil field means the backend is not configured.
type Strategies struct {
	External Strategy
	Local    Strategy
	Pattern  Strategy
}

// NewStrategiesFromSettings builds the configured backends.
func NewStrategiesFromSettings(settings Settings) Strategies {
	var strategies Strategies
	if s := NewExternalAPIStrategy(settings.External); s != nil {
		strategies.External = s
	}
	if s := NewClamdStrategy(settings.ClamAV); s != nil {
		strategies.Local = s
	}
	if settings.PatternFallback {
		strategies.Pattern = NewPatternStrategy()
	}
	return strategies
}

// Orchestrator decides whether to scan and which backend's verdict to trust.
type Orchestrator struct {
	settings   Settings
	strategies Strategies
	verifier   *verifier.Verifier
	logger     logSDK.Logger
	clock      Clock
}

// NewOrchestrator constructs an orchestrator over strategies.
func NewOrchestrator(settings Settings, strategies Strategies, v *verifier.Verifier, logger logSDK.Logger, clock Clock) *Orchestrator {
	if logger == nil {
		logger = log.Logger.Named("scan_orchestrator")
	}
	if v == nil {
		v = verifier.New(settings.KnownBadHashes...)
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		settings:   settings,
		strategies: strategies,
		verifier:   v,
		logger:     logger,
		clock:      clock,
	}
}

// Scan produces exactly one normalized Outcome for content.
//
// The only returned error is ErrNoScanner; backend failures are reported as
// error outcomes so callers can hold the file for retry.
func (o *Orchestrator) Scan(ctx context.Context, content []byte) (Outcome, error) {
	if !o.settings.Enabled {
		o.logger.Warn("virus scanning is disabled, content accepted without scanning",
			zap.Int("size", len(content)))
		return o.normalize(Outcome{Clean: true, ScannerType: TypeBypass}), nil
	}

	if o.verifier.CheckKnownMaliciousHash(verifier.SHA256Hex(content)) {
		return o.normalize(Outcome{
			ScannerType: TypeHashDenylist,
			Threat:      "KnownMalicious.Hash",
		}), nil
	}

	external, local, pattern := o.strategies.External, o.strategies.Local, o.strategies.Pattern
	if external == nil && local == nil && pattern == nil {
		if !o.settings.AllowBypass {
			return Outcome{}, errors.WithStack(ErrNoScanner)
		}
		o.logger.Warn("no scanner configured, bypass permitted outside production",
			zap.Int("size", len(content)))
		return o.normalize(Outcome{Clean: true, ScannerType: TypeBypass}), nil
	}

	var failed *Outcome
	for _, s := range []Strategy{external, local} {
		if s == nil {
			continue
		}
		out := s.Scan(ctx, content)
		if out.Error == "" {
			return o.normalize(out), nil
		}
		o.logger.Warn("scanner backend failed, falling through",
			zap.String("scanner", string(s.Type())),
			zap.String("error", out.Error))
		failed = &out
	}

	if pattern != nil && (failed == nil || o.settings.PatternFallbackOnError) {
		return o.normalize(pattern.Scan(ctx, content)), nil
	}
	return o.normalize(*failed), nil
}

// normalize fills the timestamp and makes the threat fields consistent.
func (o *Orchestrator) normalize(out Outcome) Outcome {
	if out.ScannedAt.IsZero() {
		out.ScannedAt = o.clock()
	}
	if out.Threat == "" && len(out.Threats) > 0 {
		out.Threat = out.Threats[0]
	}
	if out.Threat != "" && len(out.Threats) == 0 {
		out.Threats = []string{out.Threat}
	}
	if out.HasThreat() || out.Error != "" {
		out.Clean = false
	}
	if !out.Clean && !out.HasThreat() && out.Error == "" {
		out.Threat = UnknownThreatName
		out.Threats = []string{UnknownThreatName}
	}
	return out
}

// HealthReport describes which backends are configured and reachable.
type HealthReport struct {
	Enabled        bool   `json:"enabled"`
	External       bool   `json:"external"`
	Local          bool   `json:"local"`
	LocalReachable bool   `json:"local_reachable"`
	LocalError     string `json:"local_error,omitempty"`
	Pattern        bool   `json:"pattern"`
	Bypass         bool   `json:"bypass"`
}

// Healthy reports whether the orchestrator can currently produce a real verdict.
func (h HealthReport) Healthy() bool {
	if !h.Enabled {
		return true
	}
	if h.Local && !h.LocalReachable && !h.External && !h.Pattern {
		return false
	}
	return h.External || h.Local || h.Pattern || h.Bypass
}

// Health checks the configured backends.
func (o *Orchestrator) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Enabled:  o.settings.Enabled,
		External: o.strategies.External != nil,
		Local:    o.strategies.Local != nil,
		Pattern:  o.strategies.Pattern != nil,
		Bypass:   o.settings.AllowBypass,
	}
	if pinger, ok := o.strategies.Local.(Pinger); ok && report.Local {
		if err := pinger.Ping(ctx); err != nil {
			report.LocalError = err.Error()
		} else {
			report.LocalReachable = true
		}
	}
	return report
}
