package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/richxcame/safecommute/pkg/errors"
)

// SentryMiddleware attaches a per-request Sentry hub and reports panics.
func SentryMiddleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// ErrorHandler reports unexpected errors and 5xx responses after the handler ran.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if !errors.Enabled() {
			return
		}

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		errors.AddBreadcrumbForRequest(c.Request.Method, c.Request.URL.Path, statusCode, duration)

		reported := false
		for _, ginErr := range c.Errors {
			if errors.ShouldReportError(ginErr.Err, statusCode) {
				capture(c, statusCode, duration, func(hub *sentry.Hub) { hub.CaptureException(ginErr.Err) })
				reported = true
			}
		}

		if statusCode >= http.StatusInternalServerError && !reported && len(c.Errors) == 0 {
			message := fmt.Sprintf("HTTP %d: %s %s", statusCode, c.Request.Method, c.FullPath())
			capture(c, statusCode, duration, func(hub *sentry.Hub) { hub.CaptureMessage(message) })
		}
	}
}

func capture(c *gin.Context, statusCode int, duration time.Duration, send func(hub *sentry.Hub)) {
	hub := sentrygin.GetHubFromContext(c)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(c.Request)
		scope.SetTag("http.method", c.Request.Method)
		scope.SetTag("http.status_code", fmt.Sprintf("%d", statusCode))
		scope.SetTag("endpoint", c.FullPath())
		if correlationID := GetCorrelationID(c); correlationID != "" {
			scope.SetTag("correlation_id", correlationID)
		}
		if userID := c.GetString("user_id"); userID != "" {
			scope.SetUser(sentry.User{ID: userID})
		}
		scope.SetContext("http", map[string]interface{}{
			"method":      c.Request.Method,
			"status_code": statusCode,
			"duration_ms": duration.Milliseconds(),
			"headers":     errors.SanitizeHeaders(c.Request.Header),
		})
		send(hub)
	})
}
