package trips

import (
	"fmt"
	"time"

	"github.com/richxcame/safecommute/internal/maps"
	"github.com/richxcame/safecommute/pkg/common"
)

// Trip is a commute from the moment the user commits to a route until it ends.
// The id is assigned by the backend and never reused.
type Trip struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	StartLocation   maps.Location `json:"start_location"`
	EndLocation     maps.Location `json:"end_location"`
	DistanceMeters  int           `json:"distance_m"`
	DurationSeconds int           `json:"duration_s"`
	Status          Status        `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewTrip builds a PLANNED trip for route.
func NewTrip(userID string, route *maps.Route, now time.Time) *Trip {
	return &Trip{
		UserID:          userID,
		StartLocation:   route.Origin,
		EndLocation:     route.Destination,
		DistanceMeters:  route.DistanceMeters,
		DurationSeconds: route.DurationSeconds,
		Status:          StatusPlanned,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// TransitionTo moves the trip to target if the state machine allows it.
func (t *Trip) TransitionTo(target Status, now time.Time) error {
	if !t.Status.CanTransitionTo(target) {
		return common.NewInvalidTransitionError(fmt.Sprintf("cannot move trip from %s to %s", t.Status, target))
	}
	t.Status = target
	t.UpdatedAt = now
	return nil
}

// EstimatedArrival is the expected arrival for a trip that started at CreatedAt.
func (t *Trip) EstimatedArrival() time.Time {
	return t.CreatedAt.Add(time.Duration(t.DurationSeconds) * time.Second)
}

// ActiveTripResponse describes the current trip for the API.
type ActiveTripResponse struct {
	Trip             *Trip          `json:"trip"`
	EstimatedArrival time.Time      `json:"estimated_arrival"`
	CurrentPosition  *maps.Location `json:"current_position,omitempty"`
	// Straight-line distance from the last reported position to the destination.
	RemainingDistanceMeters *int `json:"remaining_distance_m,omitempty"`
}
