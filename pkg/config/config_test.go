package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("commute-service")
	require.NoError(t, err)

	assert.Equal(t, "commute-service", cfg.Server.ServiceName)
	assert.Equal(t, "https://ipinfo.io", cfg.Upstreams.IPInfoURL)
	assert.Equal(t, time.Hour, cfg.Cache.GeocodeTTL())
	assert.Equal(t, time.Hour, cfg.Cache.RouteTTL())
	assert.Equal(t, time.Hour, cfg.Cache.SafetyTTL())
	assert.Equal(t, 10*time.Second, cfg.Timeout.Geocode())
	assert.Equal(t, 5*time.Second, cfg.Timeout.IPInfo())
	assert.Equal(t, 3, cfg.SOS.MaxAttempts)
	assert.Equal(t, "Help! I am in danger.", cfg.SOS.DefaultMessage)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadCustomValues(t *testing.T) {
	t.Setenv("BACKEND_BASE_URL", "https://api.example.com/api/")
	t.Setenv("SAFETY_TIMEOUT", "45")
	t.Setenv("ROUTE_CACHE_TTL", "60")
	t.Setenv("SOS_MAX_ATTEMPTS", "1")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", "cache")

	cfg, err := Load("commute-service")
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/api", cfg.Upstreams.BackendBaseURL)
	assert.Equal(t, 45*time.Second, cfg.Timeout.Safety())
	assert.Equal(t, time.Minute, cfg.Cache.RouteTTL())
	assert.Equal(t, 1, cfg.SOS.MaxAttempts)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.RedisAddr())
}

func TestLoadRejectsInvalidTimeouts(t *testing.T) {
	t.Run("exceeds maximum", func(t *testing.T) {
		t.Setenv("GEOCODE_TIMEOUT", "999")
		_, err := Load("commute-service")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "GEOCODE_TIMEOUT")
	})

	t.Run("zero", func(t *testing.T) {
		t.Setenv("IPINFO_TIMEOUT", "0")
		_, err := Load("commute-service")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "IPINFO_TIMEOUT")
	})
}

func TestLoadRejectsNonPositiveSOSAttempts(t *testing.T) {
	t.Setenv("SOS_MAX_ATTEMPTS", "0")
	_, err := Load("commute-service")
	require.Error(t, err)
}

func TestLoadRejectsMalformedBreakerOverrides(t *testing.T) {
	t.Setenv("CB_SERVICE_OVERRIDES", "{not json")
	_, err := Load("commute-service")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CB_SERVICE_OVERRIDES")
}

func TestSettingsFor(t *testing.T) {
	cfg := CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		TimeoutSeconds:   30,
		IntervalSeconds:  60,
		ServiceOverrides: map[string]CircuitBreakerSettings{
			"safety-insights": {FailureThreshold: 2, TimeoutSeconds: 90},
		},
	}

	override := cfg.SettingsFor("safety-insights")
	assert.Equal(t, 2, override.FailureThreshold)
	assert.Equal(t, 90, override.TimeoutSeconds)
	assert.Equal(t, 60, override.IntervalSeconds)

	defaults := cfg.SettingsFor("maps-backend")
	assert.Equal(t, 5, defaults.FailureThreshold)
	assert.Equal(t, 1, defaults.SuccessThreshold)
}

func TestLoadRateLimitOverrides(t *testing.T) {
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "0")
	t.Setenv("RATE_LIMIT_ENDPOINTS", `{"POST:/api/v1/trips/plan":{"limit":5,"burst":2}}`)

	cfg, err := Load("commute-service")
	require.NoError(t, err)

	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, EndpointRateLimitConfig{Limit: 5, Burst: 2}, cfg.RateLimit.EndpointOverrides["POST:/api/v1/trips/plan"])
}

func TestLoadRateLimitRequiresRedis(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")

	_, err := Load("commute-service")
	assert.Error(t, err)
}
