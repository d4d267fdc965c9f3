package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Upper bound for any single upstream timeout, in seconds.
const MaxUpstreamTimeoutSeconds = 120

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Upstreams  UpstreamConfig
	Timeout    TimeoutConfig
	Cache      CacheConfig
	SOS        SOSConfig
	Redis      RedisConfig
	NATS       NATSConfig
	Tracing    TracingConfig
	Sentry     SentryConfig
	RateLimit  RateLimitConfig
	Resilience ResilienceConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string // Comma-separated list of allowed origins
}

// UpstreamConfig locates the services the core talks to.
type UpstreamConfig struct {
	BackendBaseURL string
	IPInfoURL      string
}

// TimeoutConfig holds one timeout per upstream call, in seconds.
type TimeoutConfig struct {
	GeocodeSeconds int
	RouteSeconds   int
	SafetySeconds  int
	TripSeconds    int
	SOSSeconds     int
	IPInfoSeconds  int
}

// CacheConfig holds response cache lifetimes, in seconds.
type CacheConfig struct {
	GeocodeTTLSeconds    int
	RouteTTLSeconds      int
	SafetyTTLSeconds     int
	PurgeIntervalSeconds int
}

// SOSConfig tunes emergency broadcast delivery.
type SOSConfig struct {
	MaxAttempts    int
	DefaultMessage string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// NATSConfig holds event bus configuration
type NATSConfig struct {
	Enabled bool
	URL     string
}

// TracingConfig holds OpenTelemetry exporter settings
type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRate   float64
}

// SentryConfig holds error tracking settings
type SentryConfig struct {
	DSN        string
	SampleRate float64
}

// RateLimitConfig holds per-user rate limiting for the planning endpoints
type RateLimitConfig struct {
	Enabled           bool
	WindowSeconds     int
	DefaultLimit      int
	DefaultBurst      int
	RedisPrefix       string
	EndpointOverrides map[string]EndpointRateLimitConfig
}

// EndpointRateLimitConfig customizes limits for one "METHOD:/path" key
type EndpointRateLimitConfig struct {
	Limit         int `json:"limit"`
	Burst         int `json:"burst"`
	WindowSeconds int `json:"window_seconds"`
}

// ResilienceConfig groups runtime resilience controls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures default and per-upstream breaker tuning
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
	ServiceOverrides map[string]CircuitBreakerSettings
}

// CircuitBreakerSettings overrides defaults for a specific upstream
type CircuitBreakerSettings struct {
	FailureThreshold int `json:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold"`
	TimeoutSeconds   int `json:"timeout_seconds"`
	IntervalSeconds  int `json:"interval_seconds"`
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8090"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 60),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:8501"),
		},
		Upstreams: UpstreamConfig{
			BackendBaseURL: strings.TrimRight(getEnv("BACKEND_BASE_URL", "http://localhost:8080/api"), "/"),
			IPInfoURL:      getEnv("IPINFO_URL", "https://ipinfo.io"),
		},
		Timeout: TimeoutConfig{
			GeocodeSeconds: getEnvAsInt("GEOCODE_TIMEOUT", 10),
			RouteSeconds:   getEnvAsInt("ROUTE_TIMEOUT", 15),
			SafetySeconds:  getEnvAsInt("SAFETY_TIMEOUT", 30),
			TripSeconds:    getEnvAsInt("TRIP_TIMEOUT", 10),
			SOSSeconds:     getEnvAsInt("SOS_TIMEOUT", 10),
			IPInfoSeconds:  getEnvAsInt("IPINFO_TIMEOUT", 5),
		},
		Cache: CacheConfig{
			GeocodeTTLSeconds:    getEnvAsInt("GEOCODE_CACHE_TTL", 3600),
			RouteTTLSeconds:      getEnvAsInt("ROUTE_CACHE_TTL", 3600),
			SafetyTTLSeconds:     getEnvAsInt("SAFETY_CACHE_TTL", 3600),
			PurgeIntervalSeconds: getEnvAsInt("CACHE_PURGE_INTERVAL", 300),
		},
		SOS: SOSConfig{
			MaxAttempts:    getEnvAsInt("SOS_MAX_ATTEMPTS", 3),
			DefaultMessage: getEnv("SOS_DEFAULT_MESSAGE", "Help! I am in danger."),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			Enabled: getEnvAsBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvAsBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0),
		},
		Sentry: SentryConfig{
			DSN:        getEnv("SENTRY_DSN", ""),
			SampleRate: getEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", false),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			DefaultLimit:  getEnvAsInt("RATE_LIMIT_DEFAULT_LIMIT", 30),
			DefaultBurst:  getEnvAsInt("RATE_LIMIT_DEFAULT_BURST", 10),
			RedisPrefix:   getEnv("RATE_LIMIT_REDIS_PREFIX", "rate-limit"),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          getEnvAsBool("CB_ENABLED", false),
				FailureThreshold: getEnvAsInt("CB_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("CB_SUCCESS_THRESHOLD", 1),
				TimeoutSeconds:   getEnvAsInt("CB_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvAsInt("CB_INTERVAL_SECONDS", 60),
			},
		},
	}

	if overrides := getEnv("RATE_LIMIT_ENDPOINTS", ""); overrides != "" {
		var endpointConfig map[string]EndpointRateLimitConfig
		if err := json.Unmarshal([]byte(overrides), &endpointConfig); err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_ENDPOINTS value: %w", err)
		}
		cfg.RateLimit.EndpointOverrides = endpointConfig
	}

	if breakerOverrides := getEnv("CB_SERVICE_OVERRIDES", ""); breakerOverrides != "" {
		var serviceConfig map[string]CircuitBreakerSettings
		if err := json.Unmarshal([]byte(breakerOverrides), &serviceConfig); err != nil {
			return nil, fmt.Errorf("invalid CB_SERVICE_OVERRIDES value: %w", err)
		}
		cfg.Resilience.CircuitBreaker.ServiceOverrides = serviceConfig
	}

	if err := cfg.Timeout.validate(); err != nil {
		return nil, err
	}

	if cfg.SOS.MaxAttempts <= 0 {
		return nil, fmt.Errorf("SOS_MAX_ATTEMPTS must be positive, got %d", cfg.SOS.MaxAttempts)
	}
	if strings.TrimSpace(cfg.SOS.DefaultMessage) == "" {
		cfg.SOS.DefaultMessage = "Help! I am in danger."
	}

	if cfg.RateLimit.WindowSeconds <= 0 {
		cfg.RateLimit.WindowSeconds = int((time.Minute).Seconds())
	}
	if cfg.RateLimit.Enabled && !cfg.Redis.Enabled {
		return nil, fmt.Errorf("RATE_LIMIT_ENABLED requires REDIS_ENABLED")
	}

	if cfg.Cache.PurgeIntervalSeconds <= 0 {
		cfg.Cache.PurgeIntervalSeconds = 300
	}

	if cfg.Resilience.CircuitBreaker.TimeoutSeconds <= 0 {
		cfg.Resilience.CircuitBreaker.TimeoutSeconds = 30
	}
	if cfg.Resilience.CircuitBreaker.IntervalSeconds <= 0 {
		cfg.Resilience.CircuitBreaker.IntervalSeconds = 60
	}
	if cfg.Resilience.CircuitBreaker.FailureThreshold <= 0 {
		cfg.Resilience.CircuitBreaker.FailureThreshold = 5
	}
	if cfg.Resilience.CircuitBreaker.SuccessThreshold <= 0 {
		cfg.Resilience.CircuitBreaker.SuccessThreshold = 1
	}

	return cfg, nil
}

func (t TimeoutConfig) validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{"GEOCODE_TIMEOUT", t.GeocodeSeconds},
		{"ROUTE_TIMEOUT", t.RouteSeconds},
		{"SAFETY_TIMEOUT", t.SafetySeconds},
		{"TRIP_TIMEOUT", t.TripSeconds},
		{"SOS_TIMEOUT", t.SOSSeconds},
		{"IPINFO_TIMEOUT", t.IPInfoSeconds},
	}
	for _, check := range checks {
		if check.value <= 0 || check.value > MaxUpstreamTimeoutSeconds {
			return fmt.Errorf("%s must be between 1 and %d seconds, got %d", check.name, MaxUpstreamTimeoutSeconds, check.value)
		}
	}
	return nil
}

// Geocode returns the geocoding call timeout.
func (t TimeoutConfig) Geocode() time.Duration { return seconds(t.GeocodeSeconds) }

// Route returns the timeout for the timing and geometry calls.
func (t TimeoutConfig) Route() time.Duration { return seconds(t.RouteSeconds) }

// Safety returns the safety insight call timeout.
func (t TimeoutConfig) Safety() time.Duration { return seconds(t.SafetySeconds) }

// Trip returns the trip lifecycle call timeout.
func (t TimeoutConfig) Trip() time.Duration { return seconds(t.TripSeconds) }

// SOS returns the timeout of a single SOS delivery attempt.
func (t TimeoutConfig) SOS() time.Duration { return seconds(t.SOSSeconds) }

// IPInfo returns the IP geolocation call timeout.
func (t TimeoutConfig) IPInfo() time.Duration { return seconds(t.IPInfoSeconds) }

func (c CacheConfig) GeocodeTTL() time.Duration    { return seconds(c.GeocodeTTLSeconds) }
func (c CacheConfig) RouteTTL() time.Duration      { return seconds(c.RouteTTLSeconds) }
func (c CacheConfig) SafetyTTL() time.Duration     { return seconds(c.SafetyTTLSeconds) }
func (c CacheConfig) PurgeInterval() time.Duration { return seconds(c.PurgeIntervalSeconds) }

// SettingsFor returns effective breaker settings for a specific upstream name
func (c CircuitBreakerConfig) SettingsFor(service string) CircuitBreakerSettings {
	settings := CircuitBreakerSettings{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		TimeoutSeconds:   c.TimeoutSeconds,
		IntervalSeconds:  c.IntervalSeconds,
	}

	if override, ok := c.ServiceOverrides[service]; ok {
		if override.FailureThreshold > 0 {
			settings.FailureThreshold = override.FailureThreshold
		}
		if override.SuccessThreshold > 0 {
			settings.SuccessThreshold = override.SuccessThreshold
		}
		if override.TimeoutSeconds > 0 {
			settings.TimeoutSeconds = override.TimeoutSeconds
		}
		if override.IntervalSeconds > 0 {
			settings.IntervalSeconds = override.IntervalSeconds
		}
	}

	if settings.SuccessThreshold <= 0 {
		settings.SuccessThreshold = 1
	}
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.TimeoutSeconds <= 0 {
		settings.TimeoutSeconds = 30
	}
	if settings.IntervalSeconds <= 0 {
		settings.IntervalSeconds = 60
	}

	return settings
}

// Window returns the default rate limit window
func (c RateLimitConfig) Window() time.Duration {
	return seconds(c.WindowSeconds)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
