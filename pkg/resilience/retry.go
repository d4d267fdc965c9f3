package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/richxcame/safecommute/pkg/logger"
	"go.uber.org/zap"
)

// RetryConfig defines the configuration for retry behavior
type RetryConfig struct {
	// MaxAttempts counts the initial attempt too; 1 disables retrying.
	MaxAttempts int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// BackoffMultiplier is the growth factor between attempts (typically 2.0)
	BackoffMultiplier float64
	// EnableJitter applies full jitter to each backoff
	EnableJitter bool
	// AttemptTimeout bounds each individual attempt. Zero leaves only the caller's deadline.
	AttemptTimeout time.Duration
	// RetryableChecker decides whether an error is worth another attempt.
	// Nil retries everything except cancellation and open breakers.
	RetryableChecker func(error) bool
}

// DefaultRetryConfig returns a sensible default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}
}

// UrgentRetryConfig keeps backoff short for deliveries a person is waiting on.
func UrgentRetryConfig(maxAttempts int, attemptTimeout time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
		AttemptTimeout:    attemptTimeout,
	}
}

// Retry executes the operation with exponential backoff, recording metrics under operationName.
func Retry(ctx context.Context, config RetryConfig, operationName string, operation Operation) (interface{}, error) {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if operationName == "" {
		operationName = "unknown"
	}

	log := logger.WithContext(ctx).With(zap.String("operation", operationName))
	startTime := time.Now()
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			RecordRetryOperation(operationName, time.Since(startTime).Seconds(), attempt, false)
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		result, err := runAttempt(ctx, config.AttemptTimeout, operation)
		if err == nil {
			RecordRetryAttempt(operationName, true)
			RecordRetryOperation(operationName, time.Since(startTime).Seconds(), attempt, true)
			if attempt > 1 {
				log.Info("operation succeeded after retry", zap.Int("attempt", attempt))
			}
			return result, nil
		}

		RecordRetryAttempt(operationName, false)
		lastErr = err

		if !shouldRetry(err, config) {
			log.Debug("error is not retryable", zap.Error(err), zap.Int("attempt", attempt))
			RecordRetryOperation(operationName, time.Since(startTime).Seconds(), attempt, false)
			return nil, err
		}

		if attempt == config.MaxAttempts {
			log.Warn("operation failed after all retry attempts", zap.Error(err), zap.Int("attempts", attempt))
			break
		}

		backoff := calculateBackoff(attempt, config)
		RecordRetryBackoff(operationName, backoff.Seconds())
		log.Info("retrying operation after backoff",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", config.MaxAttempts),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			RecordRetryOperation(operationName, time.Since(startTime).Seconds(), attempt, false)
			return nil, lastErr
		case <-timer.C:
		}
	}

	RecordRetryOperation(operationName, time.Since(startTime).Seconds(), config.MaxAttempts, false)
	return nil, lastErr
}

func runAttempt(ctx context.Context, timeout time.Duration, operation Operation) (interface{}, error) {
	if timeout <= 0 {
		return operation(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return operation(attemptCtx)
}

// calculateBackoff returns initial * multiplier^(attempt-1), capped and optionally jittered.
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	multiplier := config.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	backoff := float64(config.InitialBackoff) * math.Pow(multiplier, float64(attempt-1))
	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	duration := time.Duration(backoff)
	if config.EnableJitter && duration > 0 {
		duration = time.Duration(rand.Int63n(int64(duration)))
	}
	return duration
}

func shouldRetry(err error, config RetryConfig) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if config.RetryableChecker != nil {
		return config.RetryableChecker(err)
	}
	return !errors.Is(err, context.DeadlineExceeded)
}

// IsRetryableHTTPStatus determines if an HTTP status code is retryable
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
