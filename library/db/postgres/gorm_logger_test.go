package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSanitizeLoggedSQLParamString verifies long strings are truncated with their length.
func TestSanitizeLoggedSQLParamString(t *testing.T) {
	sanitized := sanitizeLoggedSQLParam(strings.Repeat("a", 20), 10)
	result, ok := sanitized.(string)
	require.True(t, ok)
	require.Equal(t, "aaaaaaaaaa...<truncated:len=20>", result)
	require.Equal(t, "short", sanitizeLoggedSQLParam("short", 10))
}

// TestSanitizeLoggedSQLParams verifies params filtering sanitizes oversized values.
func TestSanitizeLoggedSQLParams(t *testing.T) {
	filtered := sanitizeLoggedSQLParams(4, []byte("0123456789"), 42, "ok")
	require.Len(t, filtered, 3)
	require.Equal(t, "<bytes:len=10,truncated>", filtered[0])
	require.Equal(t, 42, filtered[1])
	require.Equal(t, "ok", filtered[2])
}

// TestBuildDSN verifies default port handling.
func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(DialInfo{Addr: "db", DBName: "quarantine", User: "u", Pwd: "p"})
	require.Contains(t, dsn, "host=db")
	require.Contains(t, dsn, "dbname=quarantine")
	require.Contains(t, dsn, "port=5432")
}
