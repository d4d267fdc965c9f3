package trips

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/richxcame/safecommute/internal/maps"
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/eventbus"
	"github.com/richxcame/safecommute/pkg/logger"
	"github.com/richxcame/safecommute/pkg/session"
	"github.com/richxcame/safecommute/pkg/tracing"
	"github.com/richxcame/safecommute/pkg/validation"
	"go.uber.org/zap"
)

const (
	tracerName  = "trips"
	eventSource = "commute-service"
)

var (
	tripTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trip_transitions_total",
		Help: "Trip state transitions by target status",
	}, []string{"status"})

	activeTrips = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trips_active",
		Help: "Trips currently ACTIVE",
	})
)

// Manager owns one session's trip lifecycle. At most one trip is ACTIVE, and
// at most one start or end call is in flight at a time. Only the session the
// manager was created for may change it.
type Manager struct {
	userID      string
	fingerprint string
	backend     Backend
	eventBus eventbus.Publisher
	now      func() time.Time

	mu           sync.Mutex
	current      *Trip
	route        *maps.Route
	planned      *maps.Route
	position     *maps.Location
	lastEnded    *Trip
	starting     bool
	ending       bool
	lastActivity time.Time
}

// NewManager creates a manager owned by sess.
func NewManager(sess session.Session, backend Backend) *Manager {
	return &Manager{
		userID:       sess.UserID,
		fingerprint:  sess.Fingerprint(),
		backend:      backend,
		now:          time.Now,
		lastActivity: time.Now(),
	}
}

// SetEventBus sets the NATS event bus for trip events.
func (m *Manager) SetEventBus(pub eventbus.Publisher) {
	m.eventBus = pub
}

// Start commits the session to route. The trip is PLANNED until the backend
// assigns an id, then ACTIVE.
func (m *Manager) Start(ctx context.Context, sess session.Session, route *maps.Route) (*Trip, error) {
	if err := m.authorize(sess); err != nil {
		return nil, err
	}
	if route == nil {
		return nil, common.NewValidationError("route is required to start a trip")
	}

	m.mu.Lock()
	if m.starting || m.ending || m.current != nil {
		m.mu.Unlock()
		return nil, common.NewAlreadyInProgressError("a trip is already in progress")
	}
	m.starting = true
	trip := NewTrip(sess.UserID, route, m.now())
	m.touch()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
	}()

	var id string
	err := tracing.TraceOperation(ctx, tracerName, "trips.start", tracing.TripAttributes("", sess.UserID), func(ctx context.Context) error {
		var err error
		id, err = m.backend.StartTrip(ctx, sess, trip)
		return err
	})
	if err != nil {
		// The trip never got an id, so dropping it stays local.
		_ = trip.TransitionTo(StatusCancelled, m.now())
		logger.WarnContext(ctx, "trip start failed", zap.String("user_id", sess.UserID), zap.Error(err))
		return nil, err
	}

	trip.ID = id
	if err := trip.TransitionTo(StatusActive, m.now()); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = trip
	routeCopy := *route
	m.route = &routeCopy
	m.position = nil
	m.lastEnded = nil
	m.touch()
	snapshot := *trip
	m.mu.Unlock()

	tripTransitionsTotal.WithLabelValues(string(StatusActive)).Inc()
	activeTrips.Inc()

	ctx = logger.ContextWithTripID(ctx, id)
	logger.InfoContext(ctx, "trip started",
		zap.String("start", trip.StartLocation.String()),
		zap.String("end", trip.EndLocation.String()),
		zap.Int("distance_m", trip.DistanceMeters),
		zap.Int("duration_s", trip.DurationSeconds),
	)

	eventbus.PublishAsync(ctx, m.eventBus, eventbus.SubjectTripStarted, eventSource, eventbus.TripStartedData{
		TripID:          id,
		UserID:          trip.UserID,
		StartLocation:   trip.StartLocation.String(),
		EndLocation:     trip.EndLocation.String(),
		DistanceMeters:  trip.DistanceMeters,
		DurationSeconds: trip.DurationSeconds,
		StartedAt:       trip.UpdatedAt,
	})

	return &snapshot, nil
}

// Complete ends the ACTIVE trip as COMPLETED.
func (m *Manager) Complete(ctx context.Context, sess session.Session, tripID string) (*Trip, error) {
	return m.end(ctx, sess, tripID, StatusCompleted)
}

// Cancel ends the ACTIVE trip as CANCELLED.
func (m *Manager) Cancel(ctx context.Context, sess session.Session, tripID string) (*Trip, error) {
	return m.end(ctx, sess, tripID, StatusCancelled)
}

func (m *Manager) end(ctx context.Context, sess session.Session, tripID string, target Status) (*Trip, error) {
	if err := m.authorize(sess); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.current == nil || m.current.ID != tripID {
		ended := m.lastEnded != nil && m.lastEnded.ID == tripID
		m.mu.Unlock()
		if ended {
			return nil, common.NewInvalidTransitionError("trip has already ended")
		}
		return nil, common.NewNotFoundError("trip is not the current trip", nil)
	}
	if m.ending || m.starting {
		m.mu.Unlock()
		return nil, common.NewAlreadyInProgressError("a trip update is already in progress")
	}
	if !m.current.Status.CanTransitionTo(target) {
		status := m.current.Status
		m.mu.Unlock()
		return nil, common.NewInvalidTransitionError("cannot move trip from " + status.String() + " to " + target.String())
	}
	m.ending = true
	m.touch()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.ending = false
		m.mu.Unlock()
	}()

	ctx = logger.ContextWithTripID(ctx, tripID)
	err := tracing.TraceOperation(ctx, tracerName, "trips."+target.String(), tracing.TripAttributes(tripID, sess.UserID), func(ctx context.Context) error {
		if target == StatusCompleted {
			return m.backend.EndTrip(ctx, sess, tripID)
		}
		return m.backend.CancelTrip(ctx, sess, tripID)
	})
	if err != nil {
		logger.WarnContext(ctx, "trip update failed, trip stays active", zap.String("target", target.String()), zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	trip := m.current
	if err := trip.TransitionTo(target, m.now()); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.current = nil
	m.route = nil
	m.position = nil
	m.lastEnded = trip
	m.touch()
	snapshot := *trip
	m.mu.Unlock()

	tripTransitionsTotal.WithLabelValues(target.String()).Inc()
	activeTrips.Dec()
	logger.InfoContext(ctx, "trip ended", zap.String("status", target.String()))

	subject := eventbus.SubjectTripCompleted
	if target == StatusCancelled {
		subject = eventbus.SubjectTripCancelled
	}
	eventbus.PublishAsync(ctx, m.eventBus, subject, eventSource, eventbus.TripEndedData{
		TripID:  tripID,
		UserID:  snapshot.UserID,
		Status:  target.String(),
		EndedAt: snapshot.UpdatedAt,
	})

	return &snapshot, nil
}

// UpdatePosition records the latest telemetry for the ACTIVE trip.
func (m *Manager) UpdatePosition(tripID string, position maps.Location) error {
	if err := validation.ValidateStruct(position); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.ID != tripID {
		return common.NewNotFoundError("trip is not the current trip", nil)
	}
	if m.current.Status != StatusActive {
		return common.NewInvalidTransitionError("positions are only accepted for an active trip")
	}
	m.position = &position
	m.touch()
	return nil
}

// PlanRoute remembers the most recently planned route.
func (m *Manager) PlanRoute(route *maps.Route) {
	if route == nil {
		return
	}
	routeCopy := *route
	m.mu.Lock()
	m.planned = &routeCopy
	m.touch()
	m.mu.Unlock()
}

// LastPlannedRoute returns the route recorded by PlanRoute.
func (m *Manager) LastPlannedRoute() (*maps.Route, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.planned == nil {
		return nil, false
	}
	routeCopy := *m.planned
	return &routeCopy, true
}

// Current returns a copy of the ACTIVE trip.
func (m *Manager) Current() (*Trip, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, false
	}
	snapshot := *m.current
	return &snapshot, true
}

// ActiveTripID implements safety.TripState.
func (m *Manager) ActiveTripID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.ID
}

// CurrentPosition implements safety.TripState. Only an ACTIVE trip has telemetry.
func (m *Manager) CurrentPosition() (maps.Location, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.Status != StatusActive || m.position == nil {
		return maps.Location{}, false
	}
	return *m.position, true
}

// PlannedRoute implements safety.TripState: the active trip's route, or the last planned one.
func (m *Manager) PlannedRoute() (*maps.Route, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	route := m.route
	if route == nil {
		route = m.planned
	}
	if route == nil {
		return nil, false
	}
	routeCopy := *route
	return &routeCopy, true
}

// idleSince reports whether the manager holds no trip work and was last used before cutoff.
func (m *Manager) idleSince(cutoff time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current == nil && !m.starting && !m.ending && m.lastActivity.Before(cutoff)
}

// authorize requires a valid session for this manager's user.
func (m *Manager) authorize(sess session.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if sess.UserID != m.userID || sess.Fingerprint() != m.fingerprint {
		return common.NewUnauthorizedError("session does not own this trip")
	}
	return nil
}

// touch must be called with mu held.
func (m *Manager) touch() {
	m.lastActivity = m.now()
}
