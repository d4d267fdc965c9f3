package safety

import (
	"context"

	"github.com/richxcame/safecommute/internal/maps"
	"github.com/richxcame/safecommute/pkg/session"
)

// TripState is the read-only view of a session's trip the broadcaster needs.
// trips.Manager implements it.
type TripState interface {
	// ActiveTripID returns the id of the ACTIVE trip, or "" when there is none.
	ActiveTripID() string

	// CurrentPosition returns the last reported position of the ACTIVE trip.
	CurrentPosition() (maps.Location, bool)

	// PlannedRoute returns the active trip's route, or the last planned one.
	PlannedRoute() (*maps.Route, bool)
}

// Locator is one strategy in the SOS location fallback chain.
type Locator interface {
	Source() LocationSource
	Locate(ctx context.Context, sess session.Session, trip TripState) (maps.Location, error)
}
