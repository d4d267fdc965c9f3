package maps

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"

	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/httpclient"
	"github.com/richxcame/safecommute/pkg/session"
)

const (
	geocodePath      = "/maps/get-latitude-longitude"
	timeDistancePath = "/maps/get-time-distance"
	routePath        = "/maps/get-route"
)

// BackendProvider talks to the commute backend's maps endpoints. Geocoding and
// routing use separate clients so each carries its own timeout and breaker.
type BackendProvider struct {
	geocoder *httpclient.Client
	router   *httpclient.Client
}

// NewBackendProvider creates a provider over the given clients.
func NewBackendProvider(geocoder, router *httpclient.Client) *BackendProvider {
	return &BackendProvider{geocoder: geocoder, router: router}
}

type geocodeRequest struct {
	Address string `json:"address"`
}

type geocodeResponse struct {
	Latitude  *flexFloat `json:"latitude"`
	Longitude *flexFloat `json:"longitude"`
}

type routeRequest struct {
	Origin      Location `json:"origin"`
	Destination Location `json:"destination"`
}

type timeDistanceResponse struct {
	Distance *flexFloat `json:"distance"`
	Duration *flexFloat `json:"duration"`
}

type geometryResponse struct {
	Route  string `json:"route"`
	Routes []struct {
		Legs []struct {
			StartLocation *struct {
				Lat flexFloat `json:"lat"`
				Lng flexFloat `json:"lng"`
			} `json:"start_location"`
			StartAddress string      `json:"start_address"`
			Steps        []RouteStep `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// Geocode implements Provider.
func (p *BackendProvider) Geocode(ctx context.Context, sess session.Session, address string) (Location, error) {
	var resp geocodeResponse
	if err := p.geocoder.PostJSON(ctx, geocodePath, sess.Credential, geocodeRequest{Address: address}, &resp); err != nil {
		return Location{}, err
	}
	if resp.Latitude == nil || resp.Longitude == nil {
		return Location{}, common.NewNotFoundError("no coordinates found for address", nil)
	}
	return Location{Latitude: float64(*resp.Latitude), Longitude: float64(*resp.Longitude)}, nil
}

// TimeDistance implements Provider.
func (p *BackendProvider) TimeDistance(ctx context.Context, sess session.Session, origin, destination Location) (*TimeDistance, error) {
	var resp timeDistanceResponse
	req := routeRequest{Origin: origin, Destination: destination}
	if err := p.router.PostJSON(ctx, timeDistancePath, sess.Credential, req, &resp); err != nil {
		return nil, err
	}
	if resp.Distance == nil || resp.Duration == nil {
		return nil, common.NewDecodeError("timing response is missing distance or duration", nil)
	}
	if *resp.Distance < 0 || *resp.Duration < 0 {
		return nil, common.NewDecodeError("timing response has negative distance or duration", nil)
	}
	return &TimeDistance{
		DistanceMeters:  int(math.Round(float64(*resp.Distance))),
		DurationSeconds: int(math.Round(float64(*resp.Duration))),
	}, nil
}

// Geometry implements Provider.
func (p *BackendProvider) Geometry(ctx context.Context, sess session.Session, origin, destination Location) (*Geometry, error) {
	var resp geometryResponse
	req := routeRequest{Origin: origin, Destination: destination}
	if err := p.router.PostJSON(ctx, routePath, sess.Credential, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Routes) == 0 || len(resp.Routes[0].Legs) == 0 {
		return nil, common.NewDecodeError("route response has no legs", nil)
	}

	leg := resp.Routes[0].Legs[0]
	geometry := &Geometry{
		Polyline: resp.Route,
		Steps:    leg.Steps,
	}
	if leg.StartLocation != nil {
		geometry.LegStart = &Location{
			Latitude:  float64(leg.StartLocation.Lat),
			Longitude: float64(leg.StartLocation.Lng),
			Address:   leg.StartAddress,
		}
	}
	return geometry, nil
}

// flexFloat accepts both JSON numbers and numeric strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	data = bytes.Trim(data, `"`)
	value, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(value)
	return nil
}

var _ json.Unmarshaler = (*flexFloat)(nil)
