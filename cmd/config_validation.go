package cmd

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"

	"github.com/Laisky/laisky-file-quarantine/internal/scanner"
)

// configGetter retrieves raw configuration values by dotted key path.
type configGetter func(key string) any

// validateStartupConfig validates startup configuration from the shared config source.
// It returns an error when any configured value is malformed or violates constraints.
func validateStartupConfig() error {
	return validateStartupConfigWithGetter(func(key string) any {
		return gconfig.S.Get(key)
	})
}

// validateStartupConfigWithGetter validates startup configuration via a key-value getter.
// It accepts a value getter and returns nil when all configured values are valid.
func validateStartupConfigWithGetter(get configGetter) error {
	if get == nil {
		return errors.New("config getter is nil")
	}

	validationErrs := make([]string, 0)

	validateDBConfig(get, &validationErrs)
	validateQuarantineConfig(get, &validationErrs)
	validateLifecycleConfig(get, &validationErrs)
	validateScanConfig(get, &validationErrs)
	validateStorageConfig(get, &validationErrs)
	validateWebConfig(get, &validationErrs)

	if len(validationErrs) == 0 {
		return nil
	}

	return errors.Errorf("invalid configuration:\n - %s", strings.Join(validationErrs, "\n - "))
}

// validateDBConfig validates postgres and redis connection values.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateDBConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.db.redis.db", 0, errs)
	validateOptionalIntRange(get, "settings.db.postgres.port", 1, 65535, errs)
	validateOptionalStringNonEmpty(get, "settings.db.sqlite.dsn", errs)
	validateOptionalStringNonEmpty(get, "settings.secret", errs)
}

// validateQuarantineConfig validates upload limits, key prefixes and the estimate shape.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateQuarantineConfig(get configGetter, errs *[]string) {
	validateOptionalInt64Min(get, "settings.quarantine.max_file_bytes", 1, errs)
	validateOptionalIntMin(get, "settings.quarantine.workers", 1, errs)
	validateOptionalIntMin(get, "settings.quarantine.lock_ttl_seconds", 1, errs)
	validateOptionalStringNonEmpty(get, "settings.quarantine.bucket", errs)
	validateOptionalStringNonEmpty(get, "settings.quarantine.quarantine_prefix", errs)
	validateOptionalStringNonEmpty(get, "settings.quarantine.production_prefix", errs)

	validateOptionalFloatPositive(get, "settings.quarantine.estimate.seconds_per_mb", errs)
	validateOptionalIntMin(get, "settings.quarantine.estimate.min_seconds", 1, errs)
	validateOptionalIntMin(get, "settings.quarantine.estimate.max_seconds", 1, errs)

	validateOptionalURL(get, "settings.quarantine.alert.webhook_url", errs)
	validateOptionalIntMin(get, "settings.quarantine.alert.timeout_ms", 1, errs)
	validateOptionalURL(get, "settings.quarantine.notify.webhook_url", errs)

	validateQuarantineRelations(get, errs)
}

// validateQuarantineRelations validates constraints spanning several quarantine keys.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateQuarantineRelations(get configGetter, errs *[]string) {
	quarantinePrefix, qErr := parseStrictString(get("settings.quarantine.quarantine_prefix"))
	productionPrefix, pErr := parseStrictString(get("settings.quarantine.production_prefix"))
	if qErr == nil && pErr == nil &&
		strings.Trim(quarantinePrefix, "/") == strings.Trim(productionPrefix, "/") {
		appendValidationError(errs, "settings.quarantine.production_prefix must differ from settings.quarantine.quarantine_prefix")
	}

	minRaw := get("settings.quarantine.estimate.min_seconds")
	maxRaw := get("settings.quarantine.estimate.max_seconds")
	if minRaw == nil || maxRaw == nil {
		return
	}
	minSeconds, minErr := parseStrictInt(minRaw)
	maxSeconds, maxErr := parseStrictInt(maxRaw)
	if minErr == nil && maxErr == nil && maxSeconds < minSeconds {
		appendValidationError(errs, "settings.quarantine.estimate.max_seconds must be >= settings.quarantine.estimate.min_seconds")
	}
}

// validateLifecycleConfig validates the retry and cleanup job settings.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateLifecycleConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.quarantine.retry.interval_seconds", 1, errs)
	validateOptionalIntMin(get, "settings.quarantine.retry.batch_limit", 1, errs)
	validateOptionalIntMin(get, "settings.quarantine.retry.concurrency", 1, errs)
	validateOptionalIntMin(get, "settings.quarantine.cleanup.interval_seconds", 1, errs)
	validateOptionalIntMin(get, "settings.quarantine.cleanup.max_age_hours", 1, errs)
}

// validateScanConfig validates scanner toggles and backend endpoints.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateScanConfig(get configGetter, errs *[]string) {
	for _, key := range []string{
		"settings.quarantine.scan.enabled",
		"settings.quarantine.scan.allow_bypass",
		"settings.quarantine.scan.pattern_fallback",
		"settings.quarantine.scan.pattern_fallback_on_error",
	} {
		validateOptionalBool(get, key, errs)
	}

	if raw := get("settings.quarantine.scan.clamav.host"); raw != nil {
		host, err := parseStrictString(raw)
		if err != nil || !isValidHost(host) {
			appendValidationError(errs, "settings.quarantine.scan.clamav.host must be a bare host name")
		}
	}
	validateOptionalIntRange(get, "settings.quarantine.scan.clamav.port", 1, 65535, errs)
	validateOptionalIntMin(get, "settings.quarantine.scan.clamav.timeout_ms", 1, errs)
	validateOptionalIntMin(get, "settings.quarantine.scan.clamav.chunk_bytes", 1, errs)

	validateOptionalURL(get, "settings.quarantine.scan.external.base_url", errs)
	validateOptionalIntMin(get, "settings.quarantine.scan.external.timeout_seconds", 1, errs)

	env, _ := parseStrictString(get("settings.env"))
	if bypass, ok := parseStrictBool(get("settings.quarantine.scan.allow_bypass")); ok && bypass && scanner.IsProduction(env) {
		appendValidationError(errs, "settings.quarantine.scan.allow_bypass must be false in production")
	}
}

// validateStorageConfig validates the object storage backend selection.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateStorageConfig(get configGetter, errs *[]string) {
	validateOptionalOneOf(get, "settings.quarantine.storage.driver", []string{"minio", "s3", "memory"}, errs)
	validateOptionalBool(get, "settings.quarantine.storage.use_ssl", errs)

	env, _ := parseStrictString(get("settings.env"))
	driver, err := parseStrictString(get("settings.quarantine.storage.driver"))
	if err == nil && strings.EqualFold(strings.TrimSpace(driver), "memory") && scanner.IsProduction(env) {
		appendValidationError(errs, "settings.quarantine.storage.driver must not be memory in production")
	}
}

// validateWebConfig validates HTTP server timeouts and the upload throttle.
// It accepts a getter and an error collector pointer and appends validation errors.
func validateWebConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.web.read_timeout_seconds", 1, errs)
	validateOptionalIntMin(get, "settings.web.write_timeout_seconds", 1, errs)
	validateOptionalIntMin(get, "settings.web.upload_throttle.total_per_sec", 1, errs)
	validateOptionalIntMin(get, "settings.web.upload_throttle.total_burst", 1, errs)
	validateOptionalIntMin(get, "settings.web.upload_throttle.per_org_per_sec", 0, errs)
	validateOptionalIntMin(get, "settings.web.upload_throttle.per_org_burst", 1, errs)
}

// validateOptionalBool validates an optionally configured boolean key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalBool(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	if _, ok := parseStrictBool(raw); !ok {
		appendValidationError(errs, "%s must be a boolean", key)
	}
}

// validateOptionalIntMin validates an optionally configured integer key with a minimum constraint.
// It accepts a getter, the key, a minimum value, and an error collector pointer and appends validation errors.
func validateOptionalIntMin(get configGetter, key string, min int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalInt64Min validates an optionally configured int64 key with a minimum constraint.
// It accepts a getter, the key, a minimum value, and an error collector pointer and appends validation errors.
func validateOptionalInt64Min(get configGetter, key string, min int64, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt64(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalFloatPositive validates an optionally configured positive float key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalFloatPositive(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictFloat(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a float", key)
		return
	}

	if value <= 0 {
		appendValidationError(errs, "%s must be > 0", key)
	}
}

// validateOptionalIntRange validates an optionally configured integer key within [min, max].
// It accepts a getter, the key, inclusive bounds, and an error collector pointer and appends validation errors.
func validateOptionalIntRange(get configGetter, key string, min, max int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min || value > max {
		appendValidationError(errs, "%s must be within [%d, %d]", key, min, max)
	}
}

// validateOptionalOneOf validates an optionally configured string key against allowed values.
// Comparison ignores case and surrounding spaces.
func validateOptionalOneOf(get configGetter, key string, allowed []string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range allowed {
		if normalized == candidate {
			return
		}
	}
	appendValidationError(errs, "%s must be one of %s", key, strings.Join(allowed, ", "))
}

// validateOptionalURL validates an optionally configured absolute URL key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalURL(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string URL", key)
		return
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		appendValidationError(errs, "%s must not be empty", key)
		return
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		appendValidationError(errs, "%s must be a valid absolute URL", key)
	}
}

// validateOptionalStringNonEmpty validates an optionally configured non-empty string key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalStringNonEmpty(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	if strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must not be empty", key)
	}
}

// parseStrictBool parses a value as boolean using strict conversion rules.
// It accepts a raw value and returns the parsed boolean and whether parsing succeeded.
func parseStrictBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case float64:
		if math.Trunc(v) != v {
			return false, false
		}
		return int64(v) != 0, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return false, false
		}
		switch strings.ToLower(trimmed) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

// parseStrictInt parses a value as a strict integer.
// It accepts a raw value and returns the parsed int and an error when parsing fails.
func parseStrictInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.Trunc(v) != v {
			return 0, errors.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty integer string")
		}
		parsed, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, errors.Wrap(err, "atoi")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported int type %T", value)
	}
}

// parseStrictInt64 parses a value as a strict int64.
// It accepts a raw value and returns the parsed int64 and an error when parsing fails.
func parseStrictInt64(value any) (int64, error) {
	parsed, err := parseStrictInt(value)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return int64(parsed), nil
}

// parseStrictFloat parses a value as a strict floating-point number.
// It accepts a raw value and returns the parsed float64 and an error when parsing fails.
func parseStrictFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty float string")
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, errors.Wrap(err, "parse float")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported float type %T", value)
	}
}

// parseStrictString parses a value as a strict string.
// It accepts a raw value and returns the parsed string and an error when parsing fails.
func parseStrictString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.Errorf("unsupported string type %T", value)
	}
}

// isValidHost validates a host string without scheme or path components.
// It accepts a host string and returns true when the host is syntactically acceptable.
func isValidHost(host string) bool {
	trimmed := strings.TrimSpace(host)
	if trimmed == "" {
		return false
	}
	if strings.Contains(trimmed, "://") || strings.Contains(trimmed, "/") {
		return false
	}
	return true
}

// appendValidationError appends a formatted validation error to the collector.
// It accepts an error slice pointer, a format string, and format arguments, and has no return value.
func appendValidationError(errs *[]string, format string, args ...any) {
	if errs == nil {
		return
	}
	*errs = append(*errs, fmt.Sprintf(format, args...))
}
