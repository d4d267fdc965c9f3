package trips

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/richxcame/safecommute/internal/maps"
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/httpclient"
	"github.com/richxcame/safecommute/pkg/session"
)

const (
	startTripPath  = "/commute/start-trip"
	endTripPath    = "/commute/end-trip/"
	cancelTripPath = "/commute/cancel-trip/"
)

// Backend persists trip lifecycle changes in the commute backend.
type Backend interface {
	StartTrip(ctx context.Context, sess session.Session, trip *Trip) (string, error)
	EndTrip(ctx context.Context, sess session.Session, tripID string) error
	CancelTrip(ctx context.Context, sess session.Session, tripID string) error
}

// HTTPBackend implements Backend over the commute backend's REST API.
type HTTPBackend struct {
	client *httpclient.Client
}

// NewHTTPBackend creates a backend client.
func NewHTTPBackend(client *httpclient.Client) *HTTPBackend {
	return &HTTPBackend{client: client}
}

type startTripRequest struct {
	UserID        string        `json:"user_id"`
	StartLocation maps.Location `json:"start_location"`
	EndLocation   maps.Location `json:"end_location"`
	Distance      int           `json:"distance"`
	Duration      int           `json:"duration"`
}

type startTripResponse struct {
	TripID tripID `json:"trip_id"`
}

// StartTrip registers trip and returns the backend-assigned id.
func (b *HTTPBackend) StartTrip(ctx context.Context, sess session.Session, trip *Trip) (string, error) {
	req := startTripRequest{
		UserID:        trip.UserID,
		StartLocation: trip.StartLocation,
		EndLocation:   trip.EndLocation,
		Distance:      trip.DistanceMeters,
		Duration:      trip.DurationSeconds,
	}

	var resp startTripResponse
	if err := b.client.PostJSON(ctx, startTripPath, sess.Credential, req, &resp); err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(resp.TripID))
	if id == "" {
		return "", common.NewNetworkError("backend did not assign a trip id", nil)
	}
	return id, nil
}

// EndTrip marks the trip completed.
func (b *HTTPBackend) EndTrip(ctx context.Context, sess session.Session, tripID string) error {
	return b.client.GetJSON(ctx, endTripPath+url.PathEscape(tripID), sess.Credential, nil)
}

// CancelTrip marks the trip cancelled.
func (b *HTTPBackend) CancelTrip(ctx context.Context, sess session.Session, tripID string) error {
	return b.client.GetJSON(ctx, cancelTripPath+url.PathEscape(tripID), sess.Credential, nil)
}

// tripID accepts ids issued as JSON strings or numbers.
type tripID string

func (t *tripID) UnmarshalJSON(data []byte) error {
	var raw interface{}
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		*t = tripID(v)
	case json.Number:
		*t = tripID(v.String())
	case nil:
		*t = ""
	default:
		return fmt.Errorf("trip_id has unexpected type %T", v)
	}
	return nil
}
