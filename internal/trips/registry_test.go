package trips

import (
	"context"
	"testing"
	"time"

	"github.com/richxcame/safecommute/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsOneManagerPerSession(t *testing.T) {
	registry := NewRegistry(new(mockBackend))

	a := registry.For(testSession)
	b := registry.For(session.New("user-1", "token-1"))
	c := registry.For(session.New("user-2", "token-9"))

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, registry.Len())
}

func TestRegistryIsolatesCredentials(t *testing.T) {
	backend := new(mockBackend)
	backend.On("StartTrip", mock.Anything, testSession, mock.Anything).Return("trip-1", nil).Once()
	registry := NewRegistry(backend)

	owner := registry.For(testSession)
	owner.PlanRoute(testRoute())
	trip, err := owner.Start(context.Background(), testSession, testRoute())
	require.NoError(t, err)
	require.NoError(t, owner.UpdatePosition(trip.ID, testRoute().Origin))

	other := registry.For(session.New("user-1", "forged-token"))
	assert.NotSame(t, owner, other)

	_, ok := other.Current()
	assert.False(t, ok)
	_, ok = other.CurrentPosition()
	assert.False(t, ok)
	_, ok = other.LastPlannedRoute()
	assert.False(t, ok)

	fake := testRoute().Destination
	assert.Error(t, other.UpdatePosition(trip.ID, fake))
	got, ok := owner.CurrentPosition()
	require.True(t, ok)
	assert.Equal(t, testRoute().Origin, got)
}

func TestRegistryPruneKeepsActiveTrips(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	backend := new(mockBackend)
	backend.On("StartTrip", mock.Anything, testSession, mock.Anything).Return("trip-1", nil).Once()

	registry := NewRegistry(backend)
	registry.now = func() time.Time { return now }

	_, err := registry.For(testSession).Start(context.Background(), testSession, testRoute())
	require.NoError(t, err)
	registry.For(session.New("user-2", "token-2")).PlanRoute(testRoute())

	now = now.Add(2 * time.Hour)
	removed := registry.Prune(time.Hour)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, registry.Len())
	_, ok := registry.For(testSession).Current()
	assert.True(t, ok)
}

func TestRegistryForRefreshesActivity(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	registry := NewRegistry(new(mockBackend))
	registry.now = func() time.Time { return now }

	first := registry.For(testSession)
	now = now.Add(3 * time.Hour)
	again := registry.For(testSession)

	assert.Equal(t, 0, registry.Prune(time.Hour))
	assert.Same(t, first, again)
	assert.Same(t, first, registry.For(testSession))
}
