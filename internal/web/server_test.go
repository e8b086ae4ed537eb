package web

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

var (
	ginModeOnce sync.Once
)

func setupGinTestMode() {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.TestMode)
	})
}

func TestAllowCORS(t *testing.T) {
	setupGinTestMode()
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		origin         string
		expectedStatus int
		expectedCORS   bool
	}{
		{"No origin header", http.MethodGet, "", http.StatusOK, false},
		{"Subdomain origin", http.MethodGet, "https://app.example.com", http.StatusOK, true},
		{"Main domain origin", http.MethodPost, "https://example.com", http.StatusOK, true},
		{"Second configured domain", http.MethodGet, "https://files.internal.test", http.StatusOK, true},
		{"Preflight from allowed origin", http.MethodOptions, "https://app.example.com", http.StatusNoContent, true},
		{"Preflight from foreign origin", http.MethodOptions, "https://evil.com", http.StatusForbidden, false},
		{"Foreign origin GET", http.MethodGet, "https://evil.com", http.StatusOK, false},
		{"Suffix trick", http.MethodGet, "https://example.com.evil.com", http.StatusOK, false},
		{"Lookalike domain", http.MethodGet, "https://notexample.com", http.StatusOK, false},
		{"Case insensitive", http.MethodGet, "https://App.EXAMPLE.com", http.StatusOK, true},
		{"Malformed origin", http.MethodGet, "not-a-valid-url", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := gin.New()
			router.Use(allowCORS([]string{"example.com", " .internal.test "}))
			router.Any("/test", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"message": "success"})
			})

			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, "Status code mismatch")
			if tt.expectedCORS {
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}
