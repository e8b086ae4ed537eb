// Package scanner runs uploaded content through pluggable detection backends
// and folds their answers into one normalized Outcome.
package scanner

import (
	"context"
	"time"
)

// Type names the backend that produced an Outcome.
type Type string

const (
	TypeExternalAPI  Type = "external_api"
	TypeClamAV       Type = "clamav"
	TypePattern      Type = "pattern"
	TypeBypass       Type = "bypass"
	TypeHashDenylist Type = "hash_denylist"
)

// UnknownThreatName is recorded when a backend reports not-clean without naming a threat.
const UnknownThreatName = "Unknown.Malware"

// Outcome is the normalized verdict of one scan.
type Outcome struct {
	Clean       bool
	Threat      string
	Threats     []string
	ScannedAt   time.Time
	ScannerType Type
	Error       string
}

// Failed reports whether the scanner itself failed without naming a threat.
func (o Outcome) Failed() bool {
	return !o.Clean && o.Error != "" && !o.HasThreat()
}

// HasThreat reports whether at least one threat was identified.
func (o Outcome) HasThreat() bool {
	return o.Threat != "" || len(o.Threats) > 0
}

// Strategy is a single detection backend.
//
// Scan never returns an error; backend failures are reported through Outcome.Error.
type Strategy interface {
	Type() Type
	Scan(ctx context.Context, content []byte) Outcome
}

// Pinger is implemented by strategies that can check their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// errorOutcome builds the outcome for a backend failure.
func errorOutcome(typ Type, err error) Outcome {
	return Outcome{
		ScannerType: typ,
		ScannedAt:   time.Now().UTC(),
		Error:       err.Error(),
	}
}

// threatOutcome builds a not-clean outcome for the given threats, or a clean one when empty.
func threatOutcome(typ Type, threats []string) Outcome {
	out := Outcome{
		Clean:       len(threats) == 0,
		ScannerType: typ,
		ScannedAt:   time.Now().UTC(),
	}
	if len(threats) > 0 {
		out.Threat = threats[0]
		out.Threats = threats
	}
	return out
}
