package logger

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log *zap.Logger
	mu  sync.RWMutex
)

type contextKey string

const (
	correlationIDContextKey contextKey = "correlation_id"
	userIDContextKey        contextKey = "user_id"
	tripIDContextKey        contextKey = "trip_id"
)

// Init initializes the global logger
func Init(environment string) error {
	var config zap.Config

	if environment == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	built, err := config.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	log = built
	mu.Unlock()
	return nil
}

// Get returns the global logger instance
func Get() *zap.Logger {
	mu.RLock()
	current := log
	mu.RUnlock()
	if current != nil {
		return current
	}

	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		// Fallback to a basic logger if Init wasn't called
		log, _ = zap.NewDevelopment()
	}
	return log
}

// Set replaces the global logger. Used by tests to capture output.
func Set(l *zap.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
}

// WithContext returns a logger enriched with the correlation, user and trip ids found in ctx.
func WithContext(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return Get()
	}

	fields := make([]zap.Field, 0, 3)
	for _, key := range []contextKey{correlationIDContextKey, userIDContextKey, tripIDContextKey} {
		if value := stringFromContext(ctx, key); value != "" {
			fields = append(fields, zap.String(string(key), value))
		}
	}
	if len(fields) == 0 {
		return Get()
	}
	return Get().With(fields...)
}

// ContextWithCorrelationID returns a context containing the provided correlation ID.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return withValue(ctx, correlationIDContextKey, correlationID)
}

// CorrelationIDFromContext extracts a correlation ID from the provided context if available.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, correlationIDContextKey)
}

// ContextWithUserID tags log lines produced under ctx with the acting user.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return withValue(ctx, userIDContextKey, userID)
}

// ContextWithTripID tags log lines produced under ctx with a trip id.
func ContextWithTripID(ctx context.Context, tripID string) context.Context {
	return withValue(ctx, tripIDContextKey, tripID)
}

// UserIDFromContext returns the user recorded by ContextWithUserID.
func UserIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, userIDContextKey)
}

// TripIDFromContext returns the trip recorded by ContextWithTripID.
func TripIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, tripIDContextKey)
}

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	Get().Info(msg, fields...)
}

// InfoContext logs an info message enriched with context-aware fields.
func InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	WithContext(ctx).Info(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	Get().Error(msg, fields...)
}

// ErrorContext logs an error message enriched with context-aware fields.
func ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	WithContext(ctx).Error(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	Get().Debug(msg, fields...)
}

// DebugContext logs a debug message enriched with context-aware fields.
func DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	WithContext(ctx).Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	Get().Warn(msg, fields...)
}

// WarnContext logs a warning message enriched with context-aware fields.
func WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	WithContext(ctx).Warn(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	Get().Fatal(msg, fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		return log.Sync()
	}
	return nil
}
