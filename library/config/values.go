package config

import (
	"fmt"
	"strings"

	gconfig "github.com/Laisky/go-config/v2"
)

// Int reads an int configuration value with a default fallback.
func Int(key string, def int) int {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return def
		}
		var parsed int
		if _, err := fmt.Sscanf(trimmed, "%d", &parsed); err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// Int64 reads an int64 configuration value with a default fallback.
func Int64(key string, def int64) int64 {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return def
		}
		var parsed int64
		if _, err := fmt.Sscanf(trimmed, "%d", &parsed); err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// Bool reads a boolean configuration value with a default fallback.
func Bool(key string, def bool) bool {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		default:
			return def
		}
	default:
		return def
	}
}

// Float reads a float64 configuration value with a default fallback.
func Float(key string, def float64) float64 {
	value := gconfig.S.Get(key)
	switch v := value.(type) {
	case nil:
		return def
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return def
		}
		var parsed float64
		if _, err := fmt.Sscanf(trimmed, "%f", &parsed); err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

// String reads a trimmed string configuration value, returning def when empty.
func String(key, def string) string {
	if v := strings.TrimSpace(gconfig.S.GetString(key)); v != "" {
		return v
	}
	return def
}

// Strings reads a string list, dropping blank entries.
func Strings(key string) []string {
	var out []string
	for _, v := range gconfig.Shared.GetStringSlice(key) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// StringMap reads a map of string values, dropping blank keys and values.
func StringMap(key string) map[string]string {
	out := make(map[string]string)
	for k, v := range gconfig.Shared.GetStringMap(key) {
		if v == nil {
			continue
		}
		k = strings.TrimSpace(k)
		value := strings.TrimSpace(fmt.Sprint(v))
		if k == "" || value == "" {
			continue
		}
		out[k] = value
	}
	return out
}
