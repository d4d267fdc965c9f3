package safety

import (
	"github.com/richxcame/safecommute/internal/maps"
)

// DefaultSOSMessage is sent when the user gives no message.
const DefaultSOSMessage = "Help! I am in danger."

// SafetyReport is the safety-insight service's assessment of a route.
type SafetyReport struct {
	GeneralInsights string            `json:"general_insights"`
	SafetyTips      map[string]string `json:"safety_tips"`
	RoadConditions  map[string]string `json:"road_conditions"`
	AreasOfConcern  map[string]string `json:"areas_of_concern"`
}

// LocationSource names the locator that produced an alert's position.
type LocationSource string

const (
	LocationSourceIP         LocationSource = "ip"
	LocationSourceTelemetry  LocationSource = "telemetry"
	LocationSourceRouteStart LocationSource = "route_start"
)

// EmergencyAlert is built fresh for every broadcast and never stored.
type EmergencyAlert struct {
	UserID         string         `json:"user_id"`
	TripID         string         `json:"trip_id,omitempty"`
	Timestamp      string         `json:"timestamp"`
	Location       maps.Location  `json:"location"`
	Message        string         `json:"message"`
	LocationSource LocationSource `json:"location_source"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// EmergencyContact is a person the user asked to be reachable in an emergency.
type EmergencyContact struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}
