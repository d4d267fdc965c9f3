package commute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/richxcame/safecommute/internal/maps"
	"github.com/richxcame/safecommute/internal/safety"
	"github.com/richxcame/safecommute/internal/trips"
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planSampleTrip(t *testing.T, env *testEnv) *TripPlan {
	t.Helper()
	plan, err := env.service.PlanTrip(context.Background(), testSession, "MG Road, Bengaluru", "Whitefield, Bengaluru")
	require.NoError(t, err)
	return plan
}

func TestPlanTrip(t *testing.T) {
	env := newTestEnv(t)

	plan := planSampleTrip(t, env)

	require.NotNil(t, plan.Route)
	assert.Equal(t, "MG Road, Bengaluru", plan.Route.Origin.Address)
	assert.Equal(t, "Whitefield, Bengaluru", plan.Route.Destination.Address)
	assert.Equal(t, 16400, plan.Route.DistanceMeters)
	assert.Equal(t, 2460, plan.Route.DurationSeconds)
	assert.Len(t, plan.Route.Path, 3)
	assert.False(t, plan.Route.GeometryDegraded)
	assert.Len(t, plan.Route.Steps, 2)
	assert.Equal(t, time.Date(2026, 3, 1, 8, 41, 0, 0, time.UTC), plan.EstimatedArrival)

	require.NotNil(t, plan.Safety)
	assert.Equal(t, "Well lit arterial roads", plan.Safety.GeneralInsights)
	assert.Empty(t, plan.SafetyError)

	route, ok := env.registry.For(testSession).LastPlannedRoute()
	require.True(t, ok)
	assert.Equal(t, plan.Route.Origin, route.Origin)
}

func TestPlanTripIsCached(t *testing.T) {
	env := newTestEnv(t)

	planSampleTrip(t, env)
	planSampleTrip(t, env)

	assert.Equal(t, 2, env.backend.count("/maps/get-latitude-longitude"))
	assert.Equal(t, 1, env.backend.count("/maps/get-time-distance"))
	assert.Equal(t, 1, env.backend.count("/maps/get-route"))
	assert.Equal(t, 1, env.backend.count("/llm/route-safety"))
}

func TestPlanTripWithoutSafetyInsights(t *testing.T) {
	env := newTestEnv(t)
	env.backend.setSafetyDown(true)

	plan := planSampleTrip(t, env)

	assert.NotNil(t, plan.Route)
	assert.Nil(t, plan.Safety)
	assert.Equal(t, "safety insights unavailable", plan.SafetyError)

	_, ok := env.registry.For(testSession).LastPlannedRoute()
	assert.True(t, ok, "a plan without insights is still startable")
}

func TestPlanTripRejectsBlankAddress(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.PlanTrip(context.Background(), testSession, "   ", "Whitefield, Bengaluru")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.Equal(t, 0, env.backend.count("/maps/get-time-distance"))
	assert.Equal(t, 0, env.backend.count("/maps/get-route"))
}

func TestPlanTripUnknownAddress(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.PlanTrip(context.Background(), testSession, "MG Road, Bengaluru", "Atlantis")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	assert.Equal(t, 0, env.backend.count("/maps/get-route"))

	_, ok := env.registry.For(testSession).LastPlannedRoute()
	assert.False(t, ok)
}

func TestPlanTripRequiresSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.PlanTrip(context.Background(), session.New("user-1", ""), "MG Road, Bengaluru", "Whitefield, Bengaluru")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnauthorized))
	assert.Equal(t, 0, env.backend.count("/maps/get-latitude-longitude"))
}

func TestPlanTripRefusedCredential(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.PlanTrip(context.Background(), session.New("user-1", "expired"), "MG Road, Bengaluru", "Whitefield, Bengaluru")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnauthorized))
}

func TestStartTripRequiresPlan(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.StartTrip(context.Background(), testSession)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.Equal(t, 0, env.backend.count("/commute/start-trip"))
}

func TestTripLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	planSampleTrip(t, env)

	trip, err := env.service.StartTrip(ctx, testSession)
	require.NoError(t, err)
	assert.Equal(t, "trip-42", trip.ID)
	assert.Equal(t, trips.StatusActive, trip.Status)

	_, err = env.service.StartTrip(ctx, testSession)
	assert.True(t, errors.Is(err, common.ErrAlreadyInProgress))

	position := maps.Location{Latitude: 12.9600, Longitude: 77.6400, Address: "Domlur"}
	require.NoError(t, env.service.ReportPosition(ctx, testSession, trip.ID, position))

	current, err := env.service.CurrentTrip(ctx, testSession)
	require.NoError(t, err)
	assert.Equal(t, trip.ID, current.Trip.ID)
	require.NotNil(t, current.CurrentPosition)
	assert.Equal(t, position, *current.CurrentPosition)
	assert.Equal(t, trip.EstimatedArrival(), current.EstimatedArrival)
	require.NotNil(t, current.RemainingDistanceMeters)
	assert.InDelta(t, 12000, *current.RemainingDistanceMeters, 500)

	ended, err := env.service.CompleteTrip(ctx, testSession, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, trips.StatusCompleted, ended.Status)
	assert.Equal(t, 1, env.backend.count("/commute/end-trip/trip-42"))

	_, err = env.service.CurrentTrip(ctx, testSession)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	_, err = env.service.CancelTrip(ctx, testSession, trip.ID)
	assert.True(t, errors.Is(err, common.ErrInvalidTransition))
	assert.Equal(t, 0, env.backend.count("/commute/cancel-trip/trip-42"))
}

func TestCancelTrip(t *testing.T) {
	env := newTestEnv(t)
	planSampleTrip(t, env)

	trip, err := env.service.StartTrip(context.Background(), testSession)
	require.NoError(t, err)

	_, err = env.service.CancelTrip(context.Background(), testSession, "trip-other")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	ended, err := env.service.CancelTrip(context.Background(), testSession, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, trips.StatusCancelled, ended.Status)
	assert.Equal(t, 1, env.backend.count("/commute/cancel-trip/trip-42"))
}

func TestBroadcastSOSUsesIPLocation(t *testing.T) {
	env := newTestEnv(t)

	alert, err := env.service.BroadcastSOS(context.Background(), testSession, "")
	require.NoError(t, err)

	assert.Equal(t, safety.LocationSourceIP, alert.LocationSource)
	assert.Equal(t, "Bengaluru, Karnataka, IN", alert.Location.Address)
	assert.Equal(t, safety.DefaultSOSMessage, alert.Message)
	assert.Empty(t, alert.TripID)

	sent := env.backend.alerts()
	require.Len(t, sent, 1)
	assert.Equal(t, "user-1", sent[0]["user_id"])
	assert.Equal(t, safety.DefaultSOSMessage, sent[0]["message"])
	assert.Equal(t, []string{"/json"}, env.backend.lookups())
}

func TestBroadcastSOSFallsBackToTelemetry(t *testing.T) {
	env := newTestEnv(t)
	env.backend.setIPInfoDown(true)
	ctx := context.Background()

	planSampleTrip(t, env)
	trip, err := env.service.StartTrip(ctx, testSession)
	require.NoError(t, err)
	position := maps.Location{Latitude: 12.9600, Longitude: 77.6400, Address: "Domlur"}
	require.NoError(t, env.service.ReportPosition(ctx, testSession, trip.ID, position))

	alert, err := env.service.BroadcastSOS(ctx, testSession, "Car stopped in an unlit stretch")
	require.NoError(t, err)
	assert.Equal(t, safety.LocationSourceTelemetry, alert.LocationSource)
	assert.Equal(t, position, alert.Location)
	assert.Equal(t, "trip-42", alert.TripID)
	assert.Equal(t, "Car stopped in an unlit stretch", alert.Message)
}

func TestBroadcastSOSFallsBackToRouteStart(t *testing.T) {
	env := newTestEnv(t)
	env.backend.setIPInfoDown(true)
	planSampleTrip(t, env)

	alert, err := env.service.BroadcastSOS(context.Background(), testSession, "")
	require.NoError(t, err)
	assert.Equal(t, safety.LocationSourceRouteStart, alert.LocationSource)
	assert.Equal(t, "MG Road Metro, Bengaluru", alert.Location.Address)
}

func TestBroadcastSOSWithoutLocation(t *testing.T) {
	env := newTestEnv(t)
	env.backend.setIPInfoDown(true)

	_, err := env.service.BroadcastSOS(context.Background(), testSession, "help")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrLocationUnresolved))
	assert.Empty(t, env.backend.alerts())
}

func TestBroadcastSOSIsNeverDeduplicated(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.service.BroadcastSOS(context.Background(), testSession, "help")
	require.NoError(t, err)
	second, err := env.service.BroadcastSOS(context.Background(), testSession, "help")
	require.NoError(t, err)

	assert.Len(t, env.backend.alerts(), 2)
	assert.NotEqual(t, first.IdempotencyKey, second.IdempotencyKey)
}

func TestEmergencyContacts(t *testing.T) {
	env := newTestEnv(t)

	contacts, err := env.service.EmergencyContacts(context.Background(), testSession)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Asha", contacts[0].Name)

	require.NoError(t, env.service.MessageContact(context.Background(), testSession, "c-1", "Running late, tracking on"))
	assert.Equal(t, 1, env.backend.count("/emergency/send-message"))

	err = env.service.MessageContact(context.Background(), testSession, "c-1", " ")
	assert.True(t, errors.Is(err, common.ErrValidation))
}

func TestTripStateIsBoundToCredential(t *testing.T) {
	env := newTestEnv(t)
	env.backend.setIPInfoDown(true)
	ctx := context.Background()

	planSampleTrip(t, env)
	trip, err := env.service.StartTrip(ctx, testSession)
	require.NoError(t, err)
	position := maps.Location{Latitude: 12.9600, Longitude: 77.6400, Address: "Domlur"}
	require.NoError(t, env.service.ReportPosition(ctx, testSession, trip.ID, position))

	forged := session.New("user-1", "someone-elses-token")

	_, err = env.service.CurrentTrip(ctx, forged)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	err = env.service.ReportPosition(ctx, forged, trip.ID, maps.Location{Latitude: 13.1, Longitude: 77.1})
	assert.True(t, errors.Is(err, common.ErrNotFound))

	_, err = env.service.BroadcastSOS(ctx, forged, "help")
	assert.True(t, errors.Is(err, common.ErrLocationUnresolved))
	assert.Empty(t, env.backend.alerts())

	current, err := env.service.CurrentTrip(ctx, testSession)
	require.NoError(t, err)
	assert.Equal(t, position, *current.CurrentPosition)
}
