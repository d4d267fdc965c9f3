package commute

import (
	"context"
	"errors"
	"time"

	"github.com/richxcame/safecommute/internal/maps"
	"github.com/richxcame/safecommute/internal/safety"
	"github.com/richxcame/safecommute/internal/trips"
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/geo"
	"github.com/richxcame/safecommute/pkg/logger"
	"github.com/richxcame/safecommute/pkg/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TripPlan is a route ready to be started, with its safety assessment when available.
type TripPlan struct {
	Route            *maps.Route          `json:"route"`
	Safety           *safety.SafetyReport `json:"safety"`
	SafetyError      string               `json:"safety_error,omitempty"`
	EstimatedArrival time.Time            `json:"estimated_arrival"`
}

// Components are the collaborators the service orchestrates.
type Components struct {
	Geocoder    *maps.Geocoder
	Aggregator  *maps.Aggregator
	Annotator   *safety.Annotator
	Broadcaster *safety.Broadcaster
	Contacts    *safety.Contacts
	Trips       *trips.Registry
}

// Service is the planning pipeline plus the trip and SOS entry points.
type Service struct {
	geocoder    *maps.Geocoder
	aggregator  *maps.Aggregator
	annotator   *safety.Annotator
	broadcaster *safety.Broadcaster
	contacts    *safety.Contacts
	trips       *trips.Registry
	now         func() time.Time
}

// NewService creates a commute service.
func NewService(c Components) *Service {
	return &Service{
		geocoder:    c.Geocoder,
		aggregator:  c.Aggregator,
		annotator:   c.Annotator,
		broadcaster: c.Broadcaster,
		contacts:    c.Contacts,
		trips:       c.Trips,
		now:         time.Now,
	}
}

// PlanTrip resolves both endpoints, aggregates the route and annotates it.
// A missing safety report does not fail the plan.
func (s *Service) PlanTrip(ctx context.Context, sess session.Session, from, to string) (*TripPlan, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}

	var origin, destination maps.Location
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		origin, err = s.geocoder.Resolve(gctx, sess, from)
		return err
	})
	g.Go(func() error {
		var err error
		destination, err = s.geocoder.Resolve(gctx, sess, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	route, err := s.aggregator.Aggregate(ctx, sess, origin, destination)
	if err != nil {
		return nil, err
	}

	plan := &TripPlan{
		Route:            route,
		EstimatedArrival: route.EstimatedArrival(s.now()),
	}

	report, err := s.annotator.Annotate(ctx, sess, route.Steps)
	if err != nil {
		logger.WarnContext(ctx, "planning without safety insights", zap.Error(err))
		plan.SafetyError = userMessage(err, "safety insights unavailable")
	} else {
		plan.Safety = report
	}

	s.trips.For(sess).PlanRoute(route)

	logger.InfoContext(ctx, "trip planned",
		zap.String("from", origin.Address),
		zap.String("to", destination.Address),
		zap.Int("distance_m", route.DistanceMeters),
		zap.Int("duration_s", route.DurationSeconds),
		zap.Bool("geometry_degraded", route.GeometryDegraded),
		zap.Bool("annotated", plan.Safety != nil),
	)
	return plan, nil
}

// StartTrip starts the session's most recently planned route.
func (s *Service) StartTrip(ctx context.Context, sess session.Session) (*trips.Trip, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	manager := s.trips.For(sess)
	route, ok := manager.LastPlannedRoute()
	if !ok {
		return nil, common.NewValidationError("plan a trip before starting it")
	}
	return manager.Start(ctx, sess, route)
}

// CompleteTrip marks the session's active trip as completed.
func (s *Service) CompleteTrip(ctx context.Context, sess session.Session, tripID string) (*trips.Trip, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	return s.trips.For(sess).Complete(ctx, sess, tripID)
}

// CancelTrip cancels the session's active trip.
func (s *Service) CancelTrip(ctx context.Context, sess session.Session, tripID string) (*trips.Trip, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	return s.trips.For(sess).Cancel(ctx, sess, tripID)
}

// ReportPosition records live telemetry for the active trip.
func (s *Service) ReportPosition(ctx context.Context, sess session.Session, tripID string, position maps.Location) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if err := s.trips.For(sess).UpdatePosition(tripID, position); err != nil {
		return err
	}
	logger.DebugContext(logger.ContextWithTripID(ctx, tripID), "position reported",
		zap.Float64("latitude", position.Latitude),
		zap.Float64("longitude", position.Longitude),
	)
	return nil
}

// CurrentTrip returns the active trip with its arrival estimate.
func (s *Service) CurrentTrip(_ context.Context, sess session.Session) (*trips.ActiveTripResponse, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	manager := s.trips.For(sess)
	trip, ok := manager.Current()
	if !ok {
		return nil, common.NewNotFoundError("no active trip", nil)
	}

	resp := &trips.ActiveTripResponse{
		Trip:             trip,
		EstimatedArrival: trip.EstimatedArrival(),
	}
	if position, ok := manager.CurrentPosition(); ok {
		remaining := geo.HaversineMeters(position.Latitude, position.Longitude,
			trip.EndLocation.Latitude, trip.EndLocation.Longitude)
		resp.CurrentPosition = &position
		resp.RemainingDistanceMeters = &remaining
	}
	return resp, nil
}

// BroadcastSOS sends an emergency alert using the best location available.
func (s *Service) BroadcastSOS(ctx context.Context, sess session.Session, message string) (*safety.EmergencyAlert, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	return s.broadcaster.Broadcast(ctx, sess, s.trips.For(sess), message)
}

// EmergencyContacts lists the user's emergency contacts.
func (s *Service) EmergencyContacts(ctx context.Context, sess session.Session) ([]safety.EmergencyContact, error) {
	return s.contacts.List(ctx, sess)
}

// MessageContact sends a direct message to one emergency contact.
func (s *Service) MessageContact(ctx context.Context, sess session.Session, contactID, message string) error {
	return s.contacts.SendMessage(ctx, sess, contactID, message)
}

func userMessage(err error, fallback string) string {
	var appErr *common.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}
