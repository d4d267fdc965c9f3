package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/logger"
)

// SentryConfig holds configuration for Sentry integration
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	SampleRate       float64
	ServerName       string
	AttachStacktrace bool
}

var enabled bool

// InitSentry initializes the Sentry SDK. An empty DSN leaves reporting disabled.
func InitSentry(config SentryConfig) error {
	if config.DSN == "" {
		return fmt.Errorf("sentry DSN is not configured")
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              config.DSN,
		Environment:      config.Environment,
		Release:          config.Release,
		SampleRate:       config.SampleRate,
		ServerName:       config.ServerName,
		AttachStacktrace: config.AttachStacktrace,
		BeforeBreadcrumb: func(breadcrumb *sentry.Breadcrumb, hint *sentry.BreadcrumbHint) *sentry.Breadcrumb {
			if breadcrumb.Data != nil {
				delete(breadcrumb.Data, "Authorization")
				delete(breadcrumb.Data, "Cookie")
			}
			return breadcrumb
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	enabled = true
	return nil
}

// Enabled reports whether InitSentry succeeded.
func Enabled() bool {
	return enabled
}

// Flush flushes the Sentry buffer
func Flush(timeout time.Duration) bool {
	if !enabled {
		return true
	}
	return sentry.Flush(timeout)
}

// CaptureError reports err with the correlation id from ctx and the given extras.
func CaptureError(ctx context.Context, err error, extras map[string]interface{}) *sentry.EventID {
	if err == nil || !enabled {
		return nil
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	var eventID *sentry.EventID
	hub.WithScope(func(scope *sentry.Scope) {
		for key, value := range extras {
			scope.SetExtra(key, value)
		}
		if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
			scope.SetTag("correlation_id", correlationID)
		}
		var appErr *common.AppError
		if stderrors.As(err, &appErr) && appErr.ErrorCode != "" {
			scope.SetTag("error_code", appErr.ErrorCode)
		}
		eventID = hub.CaptureException(err)
	})
	return eventID
}

// AddBreadcrumbForRequest adds a breadcrumb for an HTTP request
func AddBreadcrumbForRequest(method, path string, statusCode int, duration time.Duration) {
	if !enabled {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "http",
		Category:  "http.request",
		Level:     sentry.LevelInfo,
		Message:   fmt.Sprintf("%s %s", method, path),
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"method":      method,
			"url":         path,
			"status_code": statusCode,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// IsBusinessError reports errors that describe the request, not a fault in the system.
func IsBusinessError(err error) bool {
	for _, kind := range []error{
		common.ErrValidation,
		common.ErrUnauthorized,
		common.ErrNotFound,
		common.ErrAlreadyInProgress,
		common.ErrInvalidTransition,
	} {
		if stderrors.Is(err, kind) {
			return true
		}
	}
	return false
}

// ShouldReportError determines if an error should be reported to Sentry
func ShouldReportError(err error, statusCode int) bool {
	if err == nil || IsBusinessError(err) {
		return false
	}
	if statusCode >= 400 && statusCode < 500 && statusCode != http.StatusTooManyRequests {
		return false
	}
	return true
}

// SanitizeHeaders flattens headers and redacts credentials.
func SanitizeHeaders(headers http.Header) map[string]string {
	sanitized := make(map[string]string, len(headers))
	for key, values := range headers {
		switch http.CanonicalHeaderKey(key) {
		case "Authorization", "Cookie", "X-Api-Key", "X-Auth-Token":
			sanitized[key] = "[REDACTED]"
		default:
			if len(values) > 0 {
				sanitized[key] = values[0]
			}
		}
	}
	return sanitized
}
