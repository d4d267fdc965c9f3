package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/logger"
	"github.com/richxcame/safecommute/pkg/middleware"
	"github.com/richxcame/safecommute/pkg/resilience"
	"github.com/richxcame/safecommute/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxErrorBodyLength = 512

var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upstream_requests_total",
		Help: "Total number of upstream HTTP calls by upstream and outcome",
	}, []string{"upstream", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upstream_request_duration_seconds",
		Help:    "Latency of upstream HTTP calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"upstream"})
)

// Client is a JSON-over-HTTP client bound to one upstream.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	name        string
	breaker     *resilience.CircuitBreaker
	retryConfig *resilience.RetryConfig
}

// Option configures the HTTP client
type Option func(*Client)

// WithName sets the upstream label used for metrics, spans and breaker names.
func WithName(name string) Option {
	return func(c *Client) {
		c.name = name
	}
}

// WithRetry enables retry logic with the given configuration. Only transient
// failures (transport errors, 408, 429, 5xx) are retried.
func WithRetry(config resilience.RetryConfig) Option {
	return func(c *Client) {
		if config.RetryableChecker == nil {
			config.RetryableChecker = IsRetryable
		}
		c.retryConfig = &config
	}
}

// WithBreaker routes every call through the given circuit breaker.
func WithBreaker(breaker *resilience.CircuitBreaker) Option {
	return func(c *Client) {
		c.breaker = breaker
	}
}

// WithoutBreaker detaches any breaker set by an earlier option.
func WithoutBreaker() Option {
	return func(c *Client) {
		c.breaker = nil
	}
}

// WithHTTPClient swaps the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a client for baseURL. timeout bounds every single request.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		name:    "upstream",
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Request describes one call.
type Request struct {
	Method         string
	Path           string
	Body           interface{}
	Credential     string
	IdempotencyKey string
	Headers        map[string]string
}

// PostJSON posts body and decodes the response into out (nil skips decoding).
func (c *Client) PostJSON(ctx context.Context, path, credential string, body, out interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Credential: credential}, out)
}

// GetJSON issues a GET and decodes the response into out (nil skips decoding).
func (c *Client) GetJSON(ctx context.Context, path, credential string, out interface{}) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Credential: credential}, out)
}

// PostWithIdempotency posts with an Idempotency-Key header that stays the same across retries.
func (c *Client) PostWithIdempotency(ctx context.Context, path, credential string, body, out interface{}, idempotencyKey string) error {
	if idempotencyKey == "" {
		idempotencyKey = uuid.New().String()
	}
	return c.Do(ctx, Request{
		Method:         http.MethodPost,
		Path:           path,
		Body:           body,
		Credential:     credential,
		IdempotencyKey: idempotencyKey,
	}, out)
}

// Do executes req with the configured breaker and retry policy.
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	var payload []byte
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return common.NewValidationError(fmt.Sprintf("failed to marshal %s request body: %v", c.name, err))
		}
		payload = encoded
	}

	call := func(ctx context.Context) (interface{}, error) {
		return c.breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return c.doOnce(ctx, req, payload)
		})
	}

	var (
		result interface{}
		err    error
	)
	if c.retryConfig != nil {
		result, err = resilience.Retry(ctx, *c.retryConfig, c.name, call)
	} else {
		result, err = call(ctx)
	}
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return common.NewNetworkError(c.name+" temporarily unavailable", err)
		}
		return err
	}

	if out == nil {
		return nil
	}
	body, _ := result.([]byte)
	if len(bytes.TrimSpace(body)) == 0 {
		return common.NewDecodeError(c.name+" returned an empty body", nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return common.NewDecodeError("failed to decode "+c.name+" response", err)
	}
	return nil
}

func (c *Client) doOnce(ctx context.Context, r Request, payload []byte) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "httpclient", c.name+" "+r.Method+" "+r.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.Path),
			attribute.String("upstream", c.name),
		),
	)
	defer span.End()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, c.baseURL+r.Path, bodyReader)
	if err != nil {
		return nil, common.NewValidationError(fmt.Sprintf("invalid %s request: %v", c.name, err))
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+r.Credential)
	}
	if r.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", r.IdempotencyKey)
	}
	injectCorrelationID(ctx, req)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	upstreamRequestDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(c.name, "transport_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		logger.WarnContext(ctx, "upstream request failed",
			zap.String("upstream", c.name),
			zap.String("path", r.Path),
			zap.Error(err),
		)
		return nil, common.NewNetworkError(c.name+" request failed", err)
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(c.name, strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, common.NewNetworkError("failed to read "+c.name+" response", err)
	}

	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return nil, classifyStatus(c.name, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), maxErrorBodyLength),
		})
	}

	return respBody, nil
}

// HTTPError represents an HTTP error response
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// classifyStatus maps an upstream status onto the shared error kinds.
func classifyStatus(upstream string, httpErr *HTTPError) error {
	switch httpErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return common.NewAuthError(upstream+" rejected the credential", httpErr)
	case http.StatusNotFound:
		return common.NewNotFoundError(upstream+" resource not found", httpErr)
	default:
		return common.NewNetworkError(fmt.Sprintf("%s responded with status %d", upstream, httpErr.StatusCode), httpErr)
	}
}

// IsRetryable reports whether err is a transient failure worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return resilience.IsRetryableHTTPStatus(httpErr.StatusCode)
	}

	return errors.Is(err, common.ErrNetwork)
}

// IsBreakerFailure reports whether err says something about upstream health.
// Client-side outcomes (auth, not found, bad input) never open the breaker.
func IsBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError || httpErr.StatusCode == http.StatusTooManyRequests
	}
	return errors.Is(err, common.ErrNetwork)
}

func injectCorrelationID(ctx context.Context, req *http.Request) {
	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set(middleware.CorrelationIDHeader, correlationID)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
