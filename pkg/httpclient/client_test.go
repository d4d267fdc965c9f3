package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/logger"
	"github.com/richxcame/safecommute/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type coords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func TestPostJSONSendsCredentialAndDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/maps/get-latitude-longitude", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "corr-1", r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Colombo Fort", body["address"])

		_, _ = w.Write([]byte(`{"latitude":6.9344,"longitude":79.8428}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, WithName("geocode"))
	ctx := logger.ContextWithCorrelationID(context.Background(), "corr-1")

	var out coords
	err := client.PostJSON(ctx, "/maps/get-latitude-longitude", "token-1", map[string]string{"address": "Colombo Fort"}, &out)
	require.NoError(t, err)
	assert.InDelta(t, 6.9344, out.Latitude, 1e-9)
	assert.InDelta(t, 79.8428, out.Longitude, 1e-9)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   error
	}{
		{http.StatusUnauthorized, common.ErrUnauthorized},
		{http.StatusForbidden, common.ErrUnauthorized},
		{http.StatusNotFound, common.ErrNotFound},
		{http.StatusInternalServerError, common.ErrNetwork},
		{http.StatusBadRequest, common.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"detail":"nope"}`))
			}))
			defer server.Close()

			err := NewClient(server.URL, time.Second).GetJSON(context.Background(), "/x", "t", nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.StatusCode)
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewClient(url, time.Second).GetJSON(context.Background(), "/x", "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNetwork))
}

func TestTimeoutIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	err := NewClient(server.URL, 20*time.Millisecond).GetJSON(context.Background(), "/slow", "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNetwork))
}

func TestMalformedBodyIsDecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"latitude":`))
	}))
	defer server.Close()

	var out coords
	err := NewClient(server.URL, time.Second).GetJSON(context.Background(), "/x", "", &out)
	assert.True(t, errors.Is(err, common.ErrDecode))
}

func TestRetryOnlyTransientFailuresWithStableIdempotencyKey(t *testing.T) {
	var calls int32
	keys := make(chan string, 5)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("Idempotency-Key")
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, WithRetry(resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}))

	err := client.PostWithIdempotency(context.Background(), "/sos/send-alert", "t", map[string]string{"user_id": "u"}, nil, "key-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	close(keys)
	for key := range keys {
		assert.Equal(t, "key-1", key)
	}
}

func TestRetrySkipsAuthFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second, WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}))
	err := client.PostJSON(context.Background(), "/x", "t", nil, nil)
	assert.True(t, errors.Is(err, common.ErrUnauthorized))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenBreakerIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	breaker := resilience.NewCircuitBreaker(resilience.Settings{
		Name:             "test-upstream",
		Timeout:          time.Minute,
		FailureThreshold: 1,
		IsFailure:        IsBreakerFailure,
	}, nil)
	client := NewClient(server.URL, time.Second, WithBreaker(breaker))

	_ = client.GetJSON(context.Background(), "/x", "", nil)
	err := client.GetJSON(context.Background(), "/x", "", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNetwork))
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
}

func TestIsBreakerFailure(t *testing.T) {
	assert.False(t, IsBreakerFailure(nil))
	assert.False(t, IsBreakerFailure(classifyStatus("x", &HTTPError{StatusCode: 404})))
	assert.False(t, IsBreakerFailure(classifyStatus("x", &HTTPError{StatusCode: 401})))
	assert.True(t, IsBreakerFailure(classifyStatus("x", &HTTPError{StatusCode: 503})))
	assert.True(t, IsBreakerFailure(common.NewNetworkError("dial", errors.New("refused"))))
}
