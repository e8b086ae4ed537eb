package throttle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestNewUploadThrottleValidation verifies rates and bursts are checked.
func TestNewUploadThrottleValidation(t *testing.T) {
	_, err := NewUploadThrottle(UploadThrottleCfg{})
	require.Error(t, err)

	_, err = NewUploadThrottle(UploadThrottleCfg{
		TotalNPerSec: 10, TotalBurst: 5,
		EachOrgNPerSec: 1, EachOrgBurst: 1,
	})
	require.ErrorContains(t, err, "burst")
}

// TestUploadThrottlePerOrg verifies one organization's burst does not block another.
func TestUploadThrottlePerOrg(t *testing.T) {
	th, err := NewUploadThrottle(UploadThrottleCfg{
		TotalNPerSec: 100, TotalBurst: 100,
		EachOrgNPerSec: 1, EachOrgBurst: 2,
	})
	require.NoError(t, err)

	require.True(t, th.Allow("org-a"))
	require.True(t, th.Allow("org-a"))
	require.False(t, th.Allow("org-a"))

	require.True(t, th.Allow("org-b"))
}

// TestUploadThrottleTotal verifies the shared bucket caps all organizations together.
func TestUploadThrottleTotal(t *testing.T) {
	th, err := NewUploadThrottle(UploadThrottleCfg{
		TotalNPerSec: 1, TotalBurst: 2,
		EachOrgNPerSec: 10, EachOrgBurst: 10,
	})
	require.NoError(t, err)

	require.True(t, th.Allow("org-a"))
	require.True(t, th.Allow("org-b"))
	require.False(t, th.Allow("org-c"))
}
