package maps

import (
	"context"
	"fmt"
	"time"

	"github.com/richxcame/safecommute/pkg/cache"
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/logger"
	"github.com/richxcame/safecommute/pkg/session"
	"github.com/richxcame/safecommute/pkg/tracing"
	"github.com/richxcame/safecommute/pkg/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Aggregator joins the timing and geometry queries into one Route.
type Aggregator struct {
	provider Provider
	cache    *cache.Cache[string, Route]
	ttl      time.Duration
}

// NewAggregator creates an aggregator. A nil cache gets a private in-memory one.
func NewAggregator(provider Provider, c *cache.Cache[string, Route], ttl time.Duration) *Aggregator {
	if c == nil {
		c = cache.New[string, Route]("route")
	}
	return &Aggregator{provider: provider, cache: c, ttl: ttl}
}

// RouteKey identifies a route by its endpoint coordinates.
func RouteKey(origin, destination Location) string {
	return fmt.Sprintf("%.6f,%.6f:%.6f,%.6f",
		origin.Latitude, origin.Longitude,
		destination.Latitude, destination.Longitude,
	)
}

// Aggregate fetches timing and geometry concurrently. Both must succeed or the
// call fails with RouteUnavailable; an undecodable polyline only degrades the result.
func (a *Aggregator) Aggregate(ctx context.Context, sess session.Session, origin, destination Location) (*Route, error) {
	if err := validation.ValidateStruct(origin); err != nil {
		return nil, err
	}
	if err := validation.ValidateStruct(destination); err != nil {
		return nil, err
	}

	attrs := append(
		tracing.LocationAttributes("origin", origin.Latitude, origin.Longitude),
		tracing.LocationAttributes("destination", destination.Latitude, destination.Longitude)...,
	)

	var route Route
	err := tracing.TraceOperation(ctx, tracerName, "maps.aggregate", attrs, func(ctx context.Context) error {
		var err error
		route, err = a.cache.GetOrLoad(ctx, RouteKey(origin, destination), a.ttl, func(ctx context.Context) (Route, error) {
			return a.fetch(ctx, sess, origin, destination)
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	// Cached routes keep the addresses of the first request for these coordinates.
	route.Origin = origin
	route.Destination = destination
	return &route, nil
}

func (a *Aggregator) fetch(ctx context.Context, sess session.Session, origin, destination Location) (Route, error) {
	var (
		timing   *TimeDistance
		geometry *Geometry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		timing, err = a.provider.TimeDistance(gctx, sess, origin, destination)
		return err
	})
	g.Go(func() error {
		var err error
		geometry, err = a.provider.Geometry(gctx, sess, origin, destination)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.WarnContext(ctx, "route aggregation failed", zap.Error(err))
		return Route{}, common.NewRouteUnavailableError("route could not be fetched", err)
	}

	if timing == nil || geometry == nil {
		return Route{}, common.NewRouteUnavailableError("route provider returned no data", nil)
	}
	if len(geometry.Steps) == 0 {
		return Route{}, common.NewRouteUnavailableError("route has no steps", nil)
	}

	route := Route{
		Origin:          origin,
		Destination:     destination,
		DistanceMeters:  timing.DistanceMeters,
		DurationSeconds: timing.DurationSeconds,
		Polyline:        geometry.Polyline,
		Path:            []Coordinate{},
		Steps:           geometry.Steps,
		LegStart:        geometry.LegStart,
	}

	path, err := DecodePolyline(geometry.Polyline)
	if err != nil {
		logger.WarnContext(ctx, "route geometry degraded",
			zap.String("route", RouteKey(origin, destination)),
			zap.Error(err),
		)
		route.GeometryDegraded = true
	} else {
		route.Path = path
	}

	return route, nil
}
