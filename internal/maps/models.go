package maps

import (
	"fmt"
	"time"
)

// Location is a resolved place. It is not modified after resolution.
type Location struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// String renders the location for logs and trip payloads.
func (l Location) String() string {
	if l.Address != "" {
		return l.Address
	}
	return fmt.Sprintf("%.6f,%.6f", l.Latitude, l.Longitude)
}

// Coordinate is one decoded polyline vertex.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RouteStep is one turn-by-turn instruction, in travel order.
type RouteStep struct {
	Instructions     string `json:"instructions"`
	ReadableDistance string `json:"readable_distance"`
	ReadableDuration string `json:"readable_duration"`
}

// Route is the aggregated result of the timing and geometry queries.
type Route struct {
	Origin          Location     `json:"origin"`
	Destination     Location     `json:"destination"`
	DistanceMeters  int          `json:"distance_m"`
	DurationSeconds int          `json:"duration_s"`
	Polyline        string       `json:"polyline"`
	Path            []Coordinate `json:"path"`
	Steps           []RouteStep  `json:"steps"`
	LegStart        *Location    `json:"leg_start,omitempty"`

	// GeometryDegraded is set when the polyline could not be decoded. Steps and
	// timing are still valid.
	GeometryDegraded bool `json:"geometry_degraded"`
}

// Duration returns the estimated travel time.
func (r *Route) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

// EstimatedArrival returns the arrival time when leaving at now.
func (r *Route) EstimatedArrival(now time.Time) time.Time {
	return now.Add(r.Duration())
}

// StartLocation is where the user is expected to be when the trip begins:
// the provider's first-leg start if known, otherwise the route origin.
func (r *Route) StartLocation() Location {
	if r.LegStart != nil {
		return *r.LegStart
	}
	return r.Origin
}

// TimeDistance is the timing query result.
type TimeDistance struct {
	DistanceMeters  int
	DurationSeconds int
}

// Geometry is the geometry query result.
type Geometry struct {
	Polyline string
	Steps    []RouteStep
	LegStart *Location
}
