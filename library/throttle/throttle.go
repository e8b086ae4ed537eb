// Package throttle limits upload bursts globally and per organization.
package throttle

import (
	"sync"

	"github.com/Laisky/errors/v2"
	"golang.org/x/time/rate"
)

// UploadThrottleCfg configuration for UploadThrottle
type UploadThrottleCfg struct {
	TotalNPerSec, TotalBurst     int
	EachOrgNPerSec, EachOrgBurst int
}

// UploadThrottle throttle for uploads
type UploadThrottle struct {
	mu            sync.Mutex
	cfg           UploadThrottleCfg
	totalThrottle *rate.Limiter
	orgThrottles  *sync.Map
}

// NewUploadThrottle create new UploadThrottle
func NewUploadThrottle(cfg UploadThrottleCfg) (*UploadThrottle, error) {
	if cfg.TotalNPerSec <= 0 || cfg.EachOrgNPerSec <= 0 {
		return nil, errors.New("NPerSec must bigger than 0")
	}
	if cfg.TotalBurst < cfg.TotalNPerSec || cfg.EachOrgBurst < cfg.EachOrgNPerSec {
		return nil, errors.New("burst must bigger than NPerSec")
	}

	return &UploadThrottle{
		cfg:           cfg,
		totalThrottle: rate.NewLimiter(rate.Limit(cfg.TotalNPerSec), cfg.TotalBurst),
		orgThrottles:  new(sync.Map),
	}, nil
}

// Allow reports whether orgID may upload now.
//
// The org bucket is consulted first so a noisy organization
// does not drain the shared bucket.
func (t *UploadThrottle) Allow(orgID string) bool {
	if !t.orgLimiter(orgID).Allow() {
		return false
	}
	return t.totalThrottle.Allow()
}

func (t *UploadThrottle) orgLimiter(orgID string) *rate.Limiter {
	if v, ok := t.orgThrottles.Load(orgID); ok {
		return v.(*rate.Limiter)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.orgThrottles.Load(orgID); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(t.cfg.EachOrgNPerSec), t.cfg.EachOrgBurst)
	t.orgThrottles.Store(orgID, l)
	return l
}
