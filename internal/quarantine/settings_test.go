package quarantine

import (
	"testing"
	"time"

	gconfig "github.com/Laisky/go-config/v2"
	"github.com/stretchr/testify/require"
)

func setForTest(t *testing.T, key string, val any) {
	t.Helper()
	original := gconfig.S.Get(key)
	gconfig.Shared.Set(key, val)
	t.Cleanup(func() { gconfig.Shared.Set(key, original) })
}

// TestLoadSettingsDefaults verifies defaults when nothing is configured.
func TestLoadSettingsDefaults(t *testing.T) {
	settings := LoadSettingsFromConfig()
	require.Equal(t, "quarantine", settings.QuarantinePrefix)
	require.Equal(t, "production", settings.ProductionPrefix)
	require.EqualValues(t, 100<<20, settings.MaxFileBytes)
	require.Equal(t, 4, settings.Workers)
	require.Equal(t, 7*24*time.Hour, settings.Cleanup.MaxAge)
	require.Equal(t, 5, settings.Estimate.MinSeconds)
	require.Equal(t, 120, settings.Estimate.MaxSeconds)
	require.True(t, settings.Scan.Enabled)
}

// TestLoadSettingsOverrides verifies configured values and prefix normalization.
func TestLoadSettingsOverrides(t *testing.T) {
	setForTest(t, "settings.quarantine.quarantine_prefix", "/inbox/")
	setForTest(t, "settings.quarantine.production_prefix", "inbox")
	setForTest(t, "settings.quarantine.max_file_bytes", 1024)
	setForTest(t, "settings.quarantine.cleanup.max_age_hours", 24)
	setForTest(t, "settings.quarantine.notify.contacts", map[string]any{"u1": "a@example.com"})

	settings := LoadSettingsFromConfig()
	require.Equal(t, "inbox", settings.QuarantinePrefix)
	require.Equal(t, "production", settings.ProductionPrefix)
	require.EqualValues(t, 1024, settings.MaxFileBytes)
	require.Equal(t, 24*time.Hour, settings.Cleanup.MaxAge)
	require.Equal(t, map[string]string{"u1": "a@example.com"}, settings.Notify.Contacts)
}

// TestWithDefaultsClampsInvalidValues verifies nonsensical values are replaced.
func TestWithDefaultsClampsInvalidValues(t *testing.T) {
	settings := Settings{
		MaxFileBytes: -1,
		Workers:      -3,
		Estimate:     EstimateSettings{MinSeconds: 10, MaxSeconds: 2},
	}.withDefaults()

	require.EqualValues(t, 100<<20, settings.MaxFileBytes)
	require.Equal(t, 1, settings.Workers)
	require.Equal(t, 10, settings.Estimate.MaxSeconds)
	require.Equal(t, "uploads", settings.Bucket)
}
