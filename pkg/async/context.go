package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/richxcame/safecommute/pkg/logger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TaskContext holds the request values a detached task keeps for logging and tracing.
type TaskContext struct {
	CorrelationID string
	UserID        string
	TripID        string
	SpanContext   trace.SpanContext
	StartTime     time.Time
	TaskName      string
}

// CaptureContext captures the current context values for async propagation
func CaptureContext(ctx context.Context, taskName string) TaskContext {
	return TaskContext{
		CorrelationID: logger.CorrelationIDFromContext(ctx),
		UserID:        logger.UserIDFromContext(ctx),
		TripID:        logger.TripIDFromContext(ctx),
		SpanContext:   trace.SpanContextFromContext(ctx),
		StartTime:     time.Now(),
		TaskName:      taskName,
	}
}

// NewContext creates a fresh context carrying the captured values. It is not
// cancelled when the originating request ends.
func (tc TaskContext) NewContext() context.Context {
	ctx := context.Background()
	if tc.CorrelationID != "" {
		ctx = logger.ContextWithCorrelationID(ctx, tc.CorrelationID)
	}
	if tc.UserID != "" {
		ctx = logger.ContextWithUserID(ctx, tc.UserID)
	}
	if tc.TripID != "" {
		ctx = logger.ContextWithTripID(ctx, tc.TripID)
	}
	if tc.SpanContext.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, tc.SpanContext)
	}
	return ctx
}

// NewContextWithTimeout creates a new context with timeout and captured values
func (tc TaskContext) NewContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(tc.NewContext(), timeout)
}

// Go runs fn in a goroutine with context propagation and panic recovery.
//
// Usage:
//
//	async.Go(ctx, "notify-contacts", func(ctx context.Context) {
//	    contacts.SendMessage(ctx, sess, contactID, message)
//	})
func Go(ctx context.Context, taskName string, fn func(ctx context.Context)) {
	tc := CaptureContext(ctx, taskName)

	go func() {
		defer recoverWithLogging(tc)

		newCtx := tc.NewContext()
		fn(newCtx)

		logger.DebugContext(newCtx, "async task completed",
			zap.String("task", tc.TaskName),
			zap.Duration("duration", time.Since(tc.StartTime)),
		)
	}()
}

// GoWithTimeout is Go with a deadline on the task's context.
func GoWithTimeout(ctx context.Context, taskName string, timeout time.Duration, fn func(ctx context.Context)) {
	tc := CaptureContext(ctx, taskName)

	go func() {
		defer recoverWithLogging(tc)

		newCtx, cancel := tc.NewContextWithTimeout(timeout)
		defer cancel()

		fn(newCtx)

		if newCtx.Err() != nil {
			logger.WarnContext(newCtx, "async task timed out",
				zap.String("task", tc.TaskName),
				zap.Duration("timeout", timeout),
			)
			return
		}
		logger.DebugContext(newCtx, "async task completed",
			zap.String("task", tc.TaskName),
			zap.Duration("duration", time.Since(tc.StartTime)),
		)
	}()
}

func recoverWithLogging(tc TaskContext) {
	if r := recover(); r != nil {
		logger.ErrorContext(tc.NewContext(), "async task panicked",
			zap.String("task", tc.TaskName),
			zap.Any("panic", r),
			zap.String("stack", string(debug.Stack())),
		)
	}
}
