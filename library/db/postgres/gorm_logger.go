package postgres

import (
	"context"
	"fmt"

	gormLogger "gorm.io/gorm/logger"
)

const defaultMaxLoggedParamLength = 256

// truncatingParamsLogger filters oversized SQL parameters before GORM prints SQL logs.
type truncatingParamsLogger struct {
	gormLogger.Interface
	maxLoggedParamLength int
}

// ParamsFilter truncates oversized parameter values to keep SQL logs concise.
func (l *truncatingParamsLogger) ParamsFilter(_ context.Context, sql string, params ...any) (string, []any) {
	if len(params) == 0 {
		return sql, params
	}
	return sql, sanitizeLoggedSQLParams(l.maxLoggedParamLength, params...)
}

// LogMode keeps the truncation wrapper when the level changes.
func (l *truncatingParamsLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	return &truncatingParamsLogger{
		Interface:            l.Interface.LogMode(level),
		maxLoggedParamLength: l.maxLoggedParamLength,
	}
}

// newTruncatingParamsLogger wraps a GORM logger with parameter truncation.
func newTruncatingParamsLogger(base gormLogger.Interface) gormLogger.Interface {
	return &truncatingParamsLogger{
		Interface:            base,
		maxLoggedParamLength: defaultMaxLoggedParamLength,
	}
}

// sanitizeLoggedSQLParams applies sanitizeLoggedSQLParam to every parameter.
func sanitizeLoggedSQLParams(maxLen int, params ...any) []any {
	filtered := make([]any, len(params))
	for idx, param := range params {
		filtered[idx] = sanitizeLoggedSQLParam(param, maxLen)
	}
	return filtered
}

// sanitizeLoggedSQLParam replaces oversized strings and byte slices with a length summary.
func sanitizeLoggedSQLParam(param any, maxLoggedParamLength int) any {
	if maxLoggedParamLength <= 0 {
		maxLoggedParamLength = defaultMaxLoggedParamLength
	}
	switch value := param.(type) {
	case string:
		if len(value) > maxLoggedParamLength {
			return fmt.Sprintf("%s...<truncated:len=%d>", value[:maxLoggedParamLength], len(value))
		}
		return value
	case []byte:
		if len(value) > maxLoggedParamLength {
			return fmt.Sprintf("<bytes:len=%d,truncated>", len(value))
		}
		return value
	default:
		return param
	}
}
