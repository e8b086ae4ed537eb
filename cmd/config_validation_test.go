package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestValidateStartupConfigWithGetterEmpty verifies empty configuration passes validation.
func TestValidateStartupConfigWithGetterEmpty(t *testing.T) {
	err := validateStartupConfigWithGetter(newMapConfigGetter(map[string]any{}))
	require.NoError(t, err)
}

// TestValidateStartupConfigWithGetterNil verifies a nil getter is rejected.
func TestValidateStartupConfigWithGetterNil(t *testing.T) {
	require.Error(t, validateStartupConfigWithGetter(nil))
}

// TestValidateStartupConfigWithGetterInvalidBoolean verifies invalid boolean configuration fails validation.
func TestValidateStartupConfigWithGetterInvalidBoolean(t *testing.T) {
	cfg := map[string]any{
		"settings": map[string]any{
			"quarantine": map[string]any{
				"scan": map[string]any{
					"enabled": "not-a-bool",
				},
			},
		},
	}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), "settings.quarantine.scan.enabled")
}

// TestValidateStartupConfigWithGetterAggregatesErrors verifies every violation is reported at once.
func TestValidateStartupConfigWithGetterAggregatesErrors(t *testing.T) {
	cfg := map[string]any{
		"settings": map[string]any{
			"quarantine": map[string]any{
				"max_file_bytes": 0,
				"workers":        "four",
				"estimate": map[string]any{
					"seconds_per_mb": -1.5,
				},
				"alert": map[string]any{
					"webhook_url": "not a url",
				},
				"scan": map[string]any{
					"clamav": map[string]any{
						"host": "tcp://clamd",
						"port": 70000,
					},
				},
				"storage": map[string]any{
					"driver": "gcs",
				},
			},
		},
	}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.Error(t, err)
	for _, key := range []string{
		"settings.quarantine.max_file_bytes",
		"settings.quarantine.workers",
		"settings.quarantine.estimate.seconds_per_mb",
		"settings.quarantine.alert.webhook_url",
		"settings.quarantine.scan.clamav.host",
		"settings.quarantine.scan.clamav.port",
		"settings.quarantine.storage.driver",
	} {
		require.Contains(t, err.Error(), key)
	}
	require.True(t, strings.HasPrefix(err.Error(), "invalid configuration:"))
}

// TestValidateStartupConfigWithGetterRelations verifies cross-key constraints.
func TestValidateStartupConfigWithGetterRelations(t *testing.T) {
	cfg := map[string]any{
		"settings": map[string]any{
			"quarantine": map[string]any{
				"quarantine_prefix": "/files/",
				"production_prefix": "files",
				"estimate": map[string]any{
					"min_seconds": 30,
					"max_seconds": 10,
				},
			},
		},
	}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), "production_prefix must differ")
	require.Contains(t, err.Error(), "max_seconds must be >=")
}

// TestValidateStartupConfigWithGetterProductionPolicy verifies bypass and memory storage are refused in production.
func TestValidateStartupConfigWithGetterProductionPolicy(t *testing.T) {
	cfg := map[string]any{
		"settings": map[string]any{
			"env": "production",
			"quarantine": map[string]any{
				"scan": map[string]any{
					"allow_bypass": true,
				},
				"storage": map[string]any{
					"driver": "memory",
				},
			},
		},
	}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.Error(t, err)
	require.Contains(t, err.Error(), "allow_bypass must be false in production")
	require.Contains(t, err.Error(), "must not be memory in production")

	cfg["settings"].(map[string]any)["env"] = "dev"
	require.NoError(t, validateStartupConfigWithGetter(newMapConfigGetter(cfg)))
}

// TestValidateStartupConfigWithGetterValidConfig verifies a complete configuration passes validation.
func TestValidateStartupConfigWithGetterValidConfig(t *testing.T) {
	cfg := map[string]any{
		"settings": map[string]any{
			"env":    "production",
			"secret": "a-long-signing-secret",
			"db": map[string]any{
				"postgres": map[string]any{
					"addr": "db.internal",
					"port": 5432,
				},
				"redis": map[string]any{
					"addr": "redis.internal:6379",
					"db":   2,
				},
			},
			"quarantine": map[string]any{
				"bucket":            "uploads",
				"quarantine_prefix": "quarantine",
				"production_prefix": "production",
				"max_file_bytes":    "104857600",
				"workers":           4,
				"lock_ttl_seconds":  600,
				"estimate": map[string]any{
					"seconds_per_mb": 0.5,
					"min_seconds":    5,
					"max_seconds":    120,
				},
				"retry": map[string]any{
					"interval_seconds": 300,
					"batch_limit":      50,
					"concurrency":      3,
				},
				"cleanup": map[string]any{
					"interval_seconds": 3600,
					"max_age_hours":    168,
				},
				"alert": map[string]any{
					"webhook_url": "https://alerts.internal/hooks/security",
					"timeout_ms":  5000,
				},
				"notify": map[string]any{
					"webhook_url": "https://notify.internal/infected",
				},
				"scan": map[string]any{
					"enabled":                   true,
					"allow_bypass":              "no",
					"pattern_fallback":          true,
					"pattern_fallback_on_error": false,
					"clamav": map[string]any{
						"host":       "clamd",
						"port":       3310,
						"timeout_ms": 60000,
					},
					"external": map[string]any{
						"base_url":        "https://scanner.internal",
						"timeout_seconds": 120,
					},
				},
				"storage": map[string]any{
					"driver":  "S3",
					"use_ssl": true,
				},
			},
		},
	}

	err := validateStartupConfigWithGetter(newMapConfigGetter(cfg))
	require.NoError(t, err)
}

// newMapConfigGetter builds a dotted-path getter for nested map-based test configuration.
// It accepts a nested map and returns a getter function compatible with validateStartupConfigWithGetter.
func newMapConfigGetter(root map[string]any) configGetter {
	return func(key string) any {
		if key == "" {
			return nil
		}

		parts := strings.Split(key, ".")
		var current any = root
		for _, part := range parts {
			nextMap, ok := current.(map[string]any)
			if !ok {
				return nil
			}

			next, exists := nextMap[part]
			if !exists {
				return nil
			}
			current = next
		}

		return current
	}
}
