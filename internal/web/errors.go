package web

import (
	"net/http"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/laisky-file-quarantine/internal/quarantine"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

var statusByCode = map[quarantine.ErrorCode]int{
	quarantine.ErrCodeInvalidArgument: http.StatusBadRequest,
	quarantine.ErrCodeNotFound:        http.StatusNotFound,
	quarantine.ErrCodePayloadTooLarge: http.StatusRequestEntityTooLarge,
	quarantine.ErrCodeStorageFailure:  http.StatusServiceUnavailable,
	quarantine.ErrCodeScanUnavailable: http.StatusServiceUnavailable,
	quarantine.ErrCodeResourceBusy:    http.StatusConflict,
	quarantine.ErrCodeNotDownloadable: http.StatusForbidden,
	quarantine.ErrCodeInvalidState:    http.StatusConflict,
}

// writeError maps typed quarantine errors to HTTP statuses; anything else is a 500
// whose details only go to the log.
func writeError(c *gin.Context, err error) {
	if typed, ok := quarantine.AsError(err); ok {
		status, known := statusByCode[typed.Code]
		if !known {
			status = http.StatusInternalServerError
		}
		abortWithError(c, status, string(typed.Code), typed.Error(), typed.Retryable)
		return
	}

	gmw.GetLogger(c).Error("request failed", zap.Error(err))
	abortWithError(c, http.StatusInternalServerError, "INTERNAL", "internal server error", true)
}

func abortWithError(c *gin.Context, status int, code, message string, retryable bool) {
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{
		Code:      code,
		Message:   message,
		Retryable: retryable,
	}})
}
