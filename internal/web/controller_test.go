package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Laisky/laisky-file-quarantine/internal/quarantine"
	"github.com/Laisky/laisky-file-quarantine/internal/scanner"
	"github.com/Laisky/laisky-file-quarantine/library/auth"
	"github.com/Laisky/laisky-file-quarantine/library/objstore"
	"github.com/Laisky/laisky-file-quarantine/library/throttle"
)

type apiFixture struct {
	router  *gin.Engine
	manager *quarantine.Manager
	jwt     *auth.JWT
}

func newAPIFixture(t *testing.T, opts ...ControllerOption) *apiFixture {
	t.Helper()
	setupGinTestMode()

	dsn := fmt.Sprintf("file:web-%d?mode=memory&cache=shared", time.Now().UTC().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	orch := scanner.NewOrchestrator(
		scanner.Settings{Enabled: true, PatternFallback: true},
		scanner.Strategies{Pattern: scanner.NewPatternStrategy()},
		nil, nil, nil)
	manager, err := quarantine.NewManager(context.Background(), quarantine.Settings{
		Workers:      1,
		MaxFileBytes: 1024,
	}, quarantine.Dependencies{
		DB:       db,
		Storage:  objstore.NewMemory(),
		Scanner:  orch,
		Alerter:  quarantine.NewWebhookAlerter(quarantine.AlertSettings{}, nil),
		Notifier: quarantine.NewWebhookNotifier(quarantine.NotifySettings{}, nil, nil),
	})
	require.NoError(t, err)

	jwt, err := auth.New([]byte("test-secret"))
	require.NoError(t, err)

	ctrl := NewController(manager, orch, jwt, opts...)
	return &apiFixture{
		router:  NewRouter(ctrl, ServerOptions{Debug: true}),
		manager: manager,
		jwt:     jwt,
	}
}

func (f *apiFixture) token(t *testing.T, userID, orgID string, operator bool) string {
	t.Helper()
	token, err := f.jwt.Sign(userID, orgID, operator, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func multipartFile(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func (f *apiFixture) uploadFile(t *testing.T, token, filename string, content []byte) quarantine.UploadResult {
	t.Helper()
	body, ct := multipartFile(t, filename, "text/plain", content)
	w := f.do(t, http.MethodPost, "/api/v1/quarantine/files", token, body, ct)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var res quarantine.UploadResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	f.manager.Wait()
	return res
}

// TestUploadStatusDownload walks a clean file through the API.
func TestUploadStatusDownload(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "org-1", false)

	res := f.uploadFile(t, token, "hello.txt", []byte("hello world"))
	require.Equal(t, quarantine.StatusScanning, res.Status)
	require.Equal(t, 5, res.EstimatedTimeSeconds)

	w := f.do(t, http.MethodGet, "/api/v1/quarantine/files/"+res.ID, token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var st fileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Equal(t, "CLEAN", st.Status)
	require.True(t, st.Downloadable)
	require.NotNil(t, st.Scan)
	require.Equal(t, "pattern", st.Scan.Backend)
	require.NotContains(t, w.Body.String(), "production/")

	w = f.do(t, http.MethodGet, "/api/v1/quarantine/files/"+res.ID+"/download", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hello world", w.Body.String())
	require.Contains(t, w.Header().Get("Content-Disposition"), "hello.txt")
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	// other organizations cannot see the file
	other := f.token(t, "user-2", "org-2", false)
	w = f.do(t, http.MethodGet, "/api/v1/quarantine/files/"+res.ID, other, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodGet, "/api/v1/quarantine/files/"+res.ID+"/download", other, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

// TestUploadResponseHidesStorageKey verifies the 202 body carries no storage key.
func TestUploadResponseHidesStorageKey(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "org-1", false)

	body, ct := multipartFile(t, "hello.txt", "text/plain", []byte("hello world"))
	w := f.do(t, http.MethodPost, "/api/v1/quarantine/files", token, body, ct)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	f.manager.Wait()

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotContains(t, got, "quarantine_key")
	require.NotContains(t, w.Body.String(), "quarantine/")
	require.NotEmpty(t, got["id"])
	require.Equal(t, string(quarantine.StatusScanning), got["status"])
	require.Contains(t, got, "estimated_time_seconds")
}

// TestInfectedFileIsNotDownloadable verifies the API refuses infected content.
func TestInfectedFileIsNotDownloadable(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "org-1", false)

	res := f.uploadFile(t, token, "eicar.com", []byte(scanner.EICARSignature))

	w := f.do(t, http.MethodGet, "/api/v1/quarantine/files/"+res.ID+"/download", token, nil, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "NOT_DOWNLOADABLE")

	w = f.do(t, http.MethodGet, "/api/v1/quarantine/files?status=INFECTED", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.EqualValues(t, 1, list.Total)
	require.Equal(t, res.ID, list.Files[0].ID)
	require.False(t, list.Files[0].Downloadable)
	require.NotEmpty(t, list.Files[0].Scan.Threat)

	w = f.do(t, http.MethodGet, "/api/v1/quarantine/stats", token, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats quarantine.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, quarantine.Stats{Infected: 1, Total: 1}, stats)
}

// TestUploadRejections verifies request validation surfaces as typed HTTP errors.
func TestUploadRejections(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token(t, "user-1", "org-1", false)

	w := f.do(t, http.MethodPost, "/api/v1/quarantine/files", "", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/quarantine/files", token, nil, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "INVALID_ARGUMENT")

	body, ct := multipartFile(t, "big.bin", "application/octet-stream", bytes.Repeat([]byte("a"), 2048))
	w = f.do(t, http.MethodPost, "/api/v1/quarantine/files", token, body, ct)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	body, ct = multipartFile(t, "empty.txt", "text/plain", nil)
	w = f.do(t, http.MethodPost, "/api/v1/quarantine/files", token, body, ct)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/quarantine/files?page=abc", token, nil, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodGet, "/api/v1/quarantine/files/missing", token, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

// TestUploadThrottled verifies uploads beyond the organization burst answer 429.
func TestUploadThrottled(t *testing.T) {
	limiter, err := throttle.NewUploadThrottle(throttle.UploadThrottleCfg{
		TotalNPerSec: 100, TotalBurst: 100,
		EachOrgNPerSec: 1, EachOrgBurst: 1,
	})
	require.NoError(t, err)
	f := newAPIFixture(t, WithUploadLimiter(limiter))
	token := f.token(t, "user-1", "org-1", false)

	f.uploadFile(t, token, "first.txt", []byte("first"))

	body, ct := multipartFile(t, "second.txt", "text/plain", []byte("second"))
	w := f.do(t, http.MethodPost, "/api/v1/quarantine/files", token, body, ct)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Contains(t, w.Body.String(), "RATE_LIMITED")

	// other organizations keep their own budget
	f.uploadFile(t, f.token(t, "user-2", "org-2", false), "other.txt", []byte("other"))
}

// TestOperatorRoutes verifies lifecycle endpoints require an operator token.
func TestOperatorRoutes(t *testing.T) {
	f := newAPIFixture(t)
	user := f.token(t, "user-1", "org-1", false)
	operator := f.token(t, "ops", "org-ops", true)

	w := f.do(t, http.MethodPost, "/api/v1/quarantine/jobs/retry", user, nil, "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/quarantine/jobs/retry?limit=10", operator, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"retried":0,"failed":0}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/v1/quarantine/jobs/cleanup?max_age_hours=24", operator, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"deleted":0}`, w.Body.String())

	res := f.uploadFile(t, user, "a.txt", []byte("fine"))
	w = f.do(t, http.MethodPost, "/api/v1/quarantine/files/"+res.ID+"/reprocess", operator, nil, "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "INVALID_STATE")

	// operators may inspect any organization
	w = f.do(t, http.MethodGet, "/api/v1/quarantine/files/"+res.ID, operator, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
}

// TestHealthAndMetrics verifies the unauthenticated endpoints.
func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var report scanner.HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.True(t, report.Enabled)
	require.True(t, report.Pattern)

	w = f.do(t, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "quarantine_http_requests_total")
}
