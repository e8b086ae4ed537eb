package web

import (
	"context"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-file-quarantine/internal/quarantine"
	"github.com/Laisky/laisky-file-quarantine/internal/scanner"
	"github.com/Laisky/laisky-file-quarantine/library/auth"
)

// multipartOverhead is the body allowance on top of the file size for form framing.
const multipartOverhead = 1 << 20

const ctxKeyClaims = "quarantine_claims"

// HealthChecker reports scanner availability.
type HealthChecker interface {
	Health(ctx context.Context) scanner.HealthReport
}

// UploadLimiter decides whether an organization may upload now.
type UploadLimiter interface {
	Allow(orgID string) bool
}

// Controller exposes the quarantine manager over HTTP.
type Controller struct {
	manager       *quarantine.Manager
	health        HealthChecker
	jwt           *auth.JWT
	uploadLimiter UploadLimiter
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithUploadLimiter throttles uploads per organization.
func WithUploadLimiter(limiter UploadLimiter) ControllerOption {
	return func(ctrl *Controller) {
		ctrl.uploadLimiter = limiter
	}
}

// NewController constructs a controller.
func NewController(manager *quarantine.Manager, health HealthChecker, jwt *auth.JWT, opts ...ControllerOption) *Controller {
	ctrl := &Controller{manager: manager, health: health, jwt: jwt}
	for _, opt := range opts {
		opt(ctrl)
	}
	return ctrl
}

// requestContext detaches the request context from gin and carries the request logger.
func requestContext(c *gin.Context) context.Context {
	return quarantine.WithLogger(c.Request.Context(), gmw.GetLogger(c))
}

// RequireAuth rejects requests without a valid bearer token.
func (ctrl *Controller) RequireAuth(c *gin.Context) {
	if ctrl.jwt == nil {
		abortWithError(c, http.StatusServiceUnavailable, "UNAUTHENTICATED", "authentication is not configured", false)
		return
	}
	claims, err := ctrl.jwt.Parse(c.GetHeader("Authorization"))
	if err != nil {
		gmw.GetLogger(c).Debug("reject unauthenticated request", zap.Error(err))
		abortWithError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "missing or invalid bearer token", false)
		return
	}
	c.Set(ctxKeyClaims, claims)
	c.Next()
}

// RequireOperator restricts lifecycle operations to operator tokens.
func (ctrl *Controller) RequireOperator(c *gin.Context) {
	if !claimsFrom(c).Operator {
		abortWithError(c, http.StatusForbidden, "FORBIDDEN", "operator privileges required", false)
		return
	}
	c.Next()
}

// ThrottleUploads answers 429 when the caller organization exceeds its upload rate.
func (ctrl *Controller) ThrottleUploads(c *gin.Context) {
	if ctrl.uploadLimiter != nil && !ctrl.uploadLimiter.Allow(claimsFrom(c).OrgID) {
		abortWithError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many uploads, retry later", true)
		return
	}
	c.Next()
}

func claimsFrom(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(ctxKeyClaims); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return &auth.Claims{}
}

// Health reports scanner availability; unhealthy scanning answers 503.
func (ctrl *Controller) Health(c *gin.Context) {
	report := ctrl.health.Health(c.Request.Context())
	code := http.StatusOK
	if !report.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

// Upload accepts a multipart "file" field into quarantine.
func (ctrl *Controller) Upload(c *gin.Context) {
	claims := claimsFrom(c)
	limit := ctrl.manager.Settings().MaxFileBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, quarantine.NewError(quarantine.ErrCodePayloadTooLarge, "file exceeds the maximum upload size", false))
			return
		}
		writeError(c, quarantine.NewError(quarantine.ErrCodeInvalidArgument, "multipart field \"file\" is required", false))
		return
	}
	if fh.Size > limit {
		writeError(c, quarantine.NewError(quarantine.ErrCodePayloadTooLarge, "file exceeds the maximum upload size", false))
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, errors.Wrap(err, "open uploaded file"))
		return
	}
	defer f.Close() //nolint:errcheck

	content, err := io.ReadAll(f)
	if err != nil {
		writeError(c, errors.Wrap(err, "read uploaded file"))
		return
	}

	res, err := ctrl.manager.UploadWithQuarantine(requestContext(c), quarantine.UploadRequest{
		Content:     content,
		OrgID:       claims.OrgID,
		UserID:      claims.UserID(),
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        int64(len(content)),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, newUploadResponse(res))
}

// List pages through the caller's organization.
func (ctrl *Controller) List(c *gin.Context) {
	page, err := optionalInt(c, "page")
	if err != nil {
		writeError(c, err)
		return
	}
	pageSize, err := optionalInt(c, "page_size")
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := ctrl.manager.ListQuarantinedFiles(requestContext(c), quarantine.ListRequest{
		OrgID:    claimsFrom(c).OrgID,
		Status:   quarantine.Status(c.Query("status")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	files := make([]fileResponse, 0, len(res.Files))
	for i := range res.Files {
		resp, err := newFileResponse(&res.Files[i])
		if err != nil {
			writeError(c, err)
			return
		}
		files = append(files, resp)
	}
	c.JSON(http.StatusOK, listResponse{
		Files:    files,
		Total:    res.Total,
		Page:     res.Page,
		PageSize: res.PageSize,
	})
}

// Status returns one record of the caller's organization.
func (ctrl *Controller) Status(c *gin.Context) {
	st, ok := ctrl.visibleStatus(c)
	if !ok {
		return
	}
	resp, err := newFileResponse(st)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Download streams the production bytes of a CLEAN file.
func (ctrl *Controller) Download(c *gin.Context) {
	if _, ok := ctrl.visibleStatus(c); !ok {
		return
	}

	st, data, err := ctrl.manager.OpenCleanFile(requestContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	contentType := st.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": quarantine.SanitizeFilename(st.Filename),
	}))
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, contentType, data)
}

// Stats counts the caller organization's records per status.
func (ctrl *Controller) Stats(c *gin.Context) {
	stats, err := ctrl.manager.Stats(requestContext(c), claimsFrom(c).OrgID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Reprocess rescans one ERROR file.
func (ctrl *Controller) Reprocess(c *gin.Context) {
	st, err := ctrl.manager.ReprocessFile(requestContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp, err := newFileResponse(st)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RetryJob runs one retry batch; "org" and "limit" are optional.
func (ctrl *Controller) RetryJob(c *gin.Context) {
	limit, err := optionalInt(c, "limit")
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := ctrl.manager.RetryFailedScans(requestContext(c), c.Query("org"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CleanupJob abandons stuck records; "max_age_hours" is optional.
func (ctrl *Controller) CleanupJob(c *gin.Context) {
	hours, err := optionalInt(c, "max_age_hours")
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := ctrl.manager.CleanupOldQuarantinedFiles(requestContext(c), time.Duration(hours)*time.Hour)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// visibleStatus loads the :id record and hides records of other organizations.
func (ctrl *Controller) visibleStatus(c *gin.Context) (*quarantine.FileStatus, bool) {
	st, err := ctrl.manager.GetQuarantineStatus(requestContext(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	claims := claimsFrom(c)
	if st.OrgID != claims.OrgID && !claims.Operator {
		writeError(c, quarantine.NewError(quarantine.ErrCodeNotFound, "quarantine record not found", false))
		return nil, false
	}
	return st, true
}

func optionalInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, quarantine.NewError(quarantine.ErrCodeInvalidArgument, "invalid "+key, false)
	}
	return v, nil
}
