package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/safecommute/pkg/logger"
	"go.uber.org/zap"
)

// HandleServiceError writes the JSON envelope for a service error.
// Returns true if an error was handled (and response was sent), false otherwise.
//
// Usage:
//
//	plan, err := h.service.PlanTrip(ctx, sess, req.From, req.To)
//	if HandleServiceError(c, err, "failed to plan trip") {
//	    return
//	}
func HandleServiceError(c *gin.Context, err error, fallbackMessage string) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if errors.Is(err, ErrUnauthorized) && appErr.Code != http.StatusUnauthorized {
			appErr = &AppError{
				Code:      http.StatusUnauthorized,
				ErrorCode: errorCodeFor(ErrUnauthorized),
				Message:   appErr.Message,
				Err:       appErr,
			}
		}
		if appErr.Code >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request.Context(), fallbackMessage, zap.Error(err))
			_ = c.Error(err)
		}
		AppErrorResponse(c, appErr)
		return true
	}

	logger.ErrorContext(c.Request.Context(), fallbackMessage,
		zap.Error(err),
	)
	_ = c.Error(err)

	ErrorResponse(c, http.StatusInternalServerError, fallbackMessage)
	return true
}

// BindJSON binds the request body and answers 400 on failure.
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
