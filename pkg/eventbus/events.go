package eventbus

import "time"

// TripStartedData is emitted when a trip becomes active.
type TripStartedData struct {
	TripID          string    `json:"trip_id"`
	UserID          string    `json:"user_id"`
	StartLocation   string    `json:"start_location"`
	EndLocation     string    `json:"end_location"`
	DistanceMeters  int       `json:"distance_m"`
	DurationSeconds int       `json:"duration_s"`
	StartedAt       time.Time `json:"started_at"`
}

// TripEndedData is emitted when a trip is completed or cancelled.
type TripEndedData struct {
	TripID  string    `json:"trip_id"`
	UserID  string    `json:"user_id"`
	Status  string    `json:"status"`
	EndedAt time.Time `json:"ended_at"`
}

// SOSBroadcastData is emitted after an emergency alert was delivered.
type SOSBroadcastData struct {
	UserID         string    `json:"user_id"`
	TripID         string    `json:"trip_id,omitempty"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	Address        string    `json:"address,omitempty"`
	LocationSource string    `json:"location_source"`
	Message        string    `json:"message"`
	SentAt         time.Time `json:"sent_at"`
}
