package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richxcame/safecommute/internal/commute"
	"github.com/richxcame/safecommute/internal/maps"
	"github.com/richxcame/safecommute/internal/safety"
	"github.com/richxcame/safecommute/internal/trips"
	"github.com/richxcame/safecommute/pkg/cache"
	"github.com/richxcame/safecommute/pkg/config"
	apperrors "github.com/richxcame/safecommute/pkg/errors"
	"github.com/richxcame/safecommute/pkg/eventbus"
	"github.com/richxcame/safecommute/pkg/health"
	"github.com/richxcame/safecommute/pkg/httpclient"
	"github.com/richxcame/safecommute/pkg/logger"
	"github.com/richxcame/safecommute/pkg/middleware"
	"github.com/richxcame/safecommute/pkg/ratelimit"
	redisClient "github.com/richxcame/safecommute/pkg/redis"
	"github.com/richxcame/safecommute/pkg/resilience"
	"github.com/richxcame/safecommute/pkg/tracing"
	"go.uber.org/zap"
)

const (
	serviceName = "commute-service"
	version     = "1.0.0"

	// Planned routes are dropped for sessions idle this long.
	sessionIdleTimeout = 2 * time.Hour
)

// natsPinger reports the event bus connection state to the readiness probe.
type natsPinger struct {
	bus *eventbus.Bus
}

func (p natsPinger) Ping(context.Context) error {
	if !p.bus.Connected() {
		return errors.New("nats disconnected")
	}
	return nil
}

// newCache keeps entries in memory, backed by Redis when a client is given.
func newCache[V any](name string, redis *redisClient.Client) *cache.Cache[string, V] {
	if redis == nil {
		return cache.New[string, V](name)
	}
	store := cache.NewTieredStore[V](cache.NewMemoryStore[V](), cache.NewRedisStore[V](redis, name))
	return cache.New[string, V](name, cache.WithStore[string, V](store))
}

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting commute service",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("backend", cfg.Upstreams.BackendBaseURL),
	)

	sentryConfig := apperrors.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Environment:      cfg.Server.Environment,
		Release:          version,
		SampleRate:       cfg.Sentry.SampleRate,
		ServerName:       serviceName,
		AttachStacktrace: true,
	}
	if err := apperrors.InitSentry(sentryConfig); err != nil {
		logger.Warn("Failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	} else {
		defer apperrors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized successfully")
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.Config{
			ServiceName:    serviceName,
			ServiceVersion: version,
			Environment:    cfg.Server.Environment,
			OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
			SampleRate:     cfg.Tracing.SampleRate,
			Enabled:        true,
		}, logger.Get())
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else if tp != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Failed to shutdown tracer", zap.Error(err))
				}
			}()
			logger.Info("OpenTelemetry tracing initialized successfully")
		}
	}

	checker := health.NewDeepChecker(health.DeepCheckerConfig{
		Service:  serviceName,
		Version:  version,
		Timeout:  2 * time.Second,
		CacheTTL: 5 * time.Second,
	})

	var redis *redisClient.Client
	if cfg.Redis.Enabled {
		redis, err = redisClient.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redis.Close()
		checker.AddDependency("redis", redis, true)
		logger.Info("Response cache backed by Redis", zap.String("addr", cfg.Redis.RedisAddr()))
	}

	geocodeCache := newCache[maps.Location]("geocode", redis)
	routeCache := newCache[maps.Route]("route", redis)
	safetyCache := newCache[safety.SafetyReport]("safety", redis)

	// Every upstream gets its own timeout and, when enabled, its own breaker.
	breakerFor := func(name string) []httpclient.Option {
		if !cfg.Resilience.CircuitBreaker.Enabled {
			return nil
		}
		cbCfg := cfg.Resilience.CircuitBreaker.SettingsFor(name)
		settings := resilience.BuildSettings(fmt.Sprintf("%s-%s", serviceName, name),
			cbCfg.IntervalSeconds, cbCfg.TimeoutSeconds, cbCfg.FailureThreshold, cbCfg.SuccessThreshold)
		settings.IsFailure = httpclient.IsBreakerFailure
		breaker := resilience.NewCircuitBreaker(settings, nil)
		checker.AddCircuitBreaker(name, breaker)
		return []httpclient.Option{httpclient.WithBreaker(breaker)}
	}
	newClient := func(name, baseURL string, timeout time.Duration) *httpclient.Client {
		opts := append([]httpclient.Option{httpclient.WithName(name)}, breakerFor(name)...)
		return httpclient.NewClient(baseURL, timeout, opts...)
	}

	backendURL := cfg.Upstreams.BackendBaseURL
	provider := maps.NewBackendProvider(
		newClient("geocode", backendURL, cfg.Timeout.Geocode()),
		newClient("route", backendURL, cfg.Timeout.Route()),
	)
	ipinfo := newClient("ipinfo", cfg.Upstreams.IPInfoURL, cfg.Timeout.IPInfo())

	sosClient := safety.NewSOSClient(backendURL, cfg.Timeout.SOS(), cfg.SOS.MaxAttempts)

	registry := trips.NewRegistry(trips.NewHTTPBackend(newClient("commute", backendURL, cfg.Timeout.Trip())))
	broadcaster := safety.NewBroadcaster(sosClient, safety.DefaultLocators(ipinfo), cfg.SOS.DefaultMessage)

	if cfg.NATS.Enabled {
		bus, err := eventbus.New(eventbus.Config{
			URL:  cfg.NATS.URL,
			Name: serviceName,
		})
		if err != nil {
			logger.Warn("Failed to connect to NATS, continuing without events", zap.Error(err))
		} else {
			defer bus.Close()
			registry.SetEventBus(bus)
			broadcaster.SetEventBus(bus)
			checker.AddDependency("nats", natsPinger{bus: bus}, false)
			logger.Info("NATS event bus enabled")
		}
	}

	service := commute.NewService(commute.Components{
		Geocoder:    maps.NewGeocoder(provider, geocodeCache, cfg.Cache.GeocodeTTL()),
		Aggregator:  maps.NewAggregator(provider, routeCache, cfg.Cache.RouteTTL()),
		Annotator:   safety.NewAnnotator(newClient("safety", backendURL, cfg.Timeout.Safety()), safetyCache, cfg.Cache.SafetyTTL()),
		Broadcaster: broadcaster,
		Contacts:    safety.NewContacts(newClient("users", backendURL, cfg.Timeout.Trip())),
		Trips:       registry,
	})
	handler := commute.NewHandler(service)

	rootCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()
	go func() {
		ticker := time.NewTicker(cfg.Cache.PurgeInterval())
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				purged := geocodeCache.Purge() + routeCache.Purge() + safetyCache.Purge()
				pruned := registry.Prune(sessionIdleTimeout)
				if purged > 0 || pruned > 0 {
					logger.Debug("Expired entries removed",
						zap.Int("cache_entries", purged),
						zap.Int("idle_sessions", pruned),
					)
				}
			}
		}
	}()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	router.Use(middleware.Metrics(serviceName))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware(serviceName))
	}
	router.Use(middleware.ErrorHandler())

	router.GET("/healthz", checker.LiveHandler())
	router.GET("/health/live", checker.LiveHandler())
	router.GET("/health/ready", checker.ReadyHandler())
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "version": version})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// SOS is never rate limited; RegisterRoutes leaves it out.
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled && redis != nil {
		limiter = ratelimit.NewLimiter(redis.Client, cfg.RateLimit)
		logger.Info("Rate limiting enabled", zap.Int("default_limit", cfg.RateLimit.DefaultLimit))
	}
	handler.RegisterRoutes(router, middleware.RateLimit(limiter, cfg.RateLimit))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancelBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
