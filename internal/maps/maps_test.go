package maps

import (
	"context"

	"github.com/richxcame/safecommute/pkg/session"
	"github.com/stretchr/testify/mock"
)

// mockProvider is a test-local mock that implements Provider.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Geocode(ctx context.Context, sess session.Session, address string) (Location, error) {
	args := m.Called(ctx, sess, address)
	return args.Get(0).(Location), args.Error(1)
}

func (m *mockProvider) TimeDistance(ctx context.Context, sess session.Session, origin, destination Location) (*TimeDistance, error) {
	args := m.Called(ctx, sess, origin, destination)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TimeDistance), args.Error(1)
}

func (m *mockProvider) Geometry(ctx context.Context, sess session.Session, origin, destination Location) (*Geometry, error) {
	args := m.Called(ctx, sess, origin, destination)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Geometry), args.Error(1)
}

var testSession = session.New("user-1", "token-1")

// Google's documented sample: (38.5,-120.2), (40.7,-120.95), (43.252,-126.453).
const samplePolyline = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

func sampleSteps() []RouteStep {
	return []RouteStep{
		{Instructions: "Head north on MG Road", ReadableDistance: "1.2 km", ReadableDuration: "4 mins"},
		{Instructions: "Turn right onto Old Airport Road", ReadableDistance: "8.5 km", ReadableDuration: "22 mins"},
	}
}
