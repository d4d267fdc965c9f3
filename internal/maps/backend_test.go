package maps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T, handler http.HandlerFunc) *BackendProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	geocoder := httpclient.NewClient(server.URL, time.Second, httpclient.WithName("geocode"))
	router := httpclient.NewClient(server.URL, time.Second, httpclient.WithName("route"))
	return NewBackendProvider(geocoder, router)
}

func TestBackendGeocode(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, geocodePath, r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		var body geocodeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "MG Road, Bengaluru", body.Address)

		_, _ = w.Write([]byte(`{"latitude":12.9756,"longitude":"77.6066"}`))
	})

	location, err := backend.Geocode(context.Background(), testSession, "MG Road, Bengaluru")
	require.NoError(t, err)
	assert.InDelta(t, 12.9756, location.Latitude, 1e-9)
	assert.InDelta(t, 77.6066, location.Longitude, 1e-9)
}

func TestBackendGeocodeNotFound(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"missing coordinates", http.StatusOK, `{"error":"no results"}`},
		{"null coordinates", http.StatusOK, `{"latitude":null,"longitude":null}`},
		{"404", http.StatusNotFound, `{"detail":"not found"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.payload))
			})

			_, err := backend.Geocode(context.Background(), testSession, "Atlantis")
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrNotFound))
		})
	}
}

func TestBackendGeocodeUnauthorized(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := backend.Geocode(context.Background(), testSession, "MG Road")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnauthorized))
}

func TestBackendTimeDistance(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, timeDistancePath, r.URL.Path)

		var body routeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, mgRoad, body.Origin)
		assert.Equal(t, whitefield, body.Destination)

		_, _ = w.Write([]byte(`{"distance":16400.4,"duration":2460}`))
	})

	timing, err := backend.TimeDistance(context.Background(), testSession, mgRoad, whitefield)
	require.NoError(t, err)
	assert.Equal(t, 16400, timing.DistanceMeters)
	assert.Equal(t, 2460, timing.DurationSeconds)
}

func TestBackendTimeDistanceRequiresBothFields(t *testing.T) {
	for _, payload := range []string{`{"distance":100}`, `{"duration":60}`, `{"distance":-1,"duration":60}`} {
		backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(payload))
		})

		_, err := backend.TimeDistance(context.Background(), testSession, mgRoad, whitefield)
		require.Error(t, err, payload)
		assert.True(t, errors.Is(err, common.ErrDecode), payload)
	}
}

func TestBackendGeometry(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, routePath, r.URL.Path)
		_, _ = w.Write([]byte(`{
			"route": "_p~iF~ps|U_ulLnnqC_mqNvxq` + "`" + `@",
			"routes": [{"legs": [{
				"start_location": {"lat": 12.9757, "lng": 77.6065},
				"start_address": "MG Road Metro",
				"steps": [
					{"instructions": "Head north on MG Road", "readable_distance": "1.2 km", "readable_duration": "4 mins"},
					{"instructions": "Turn right onto Old Airport Road", "readable_distance": "8.5 km", "readable_duration": "22 mins"}
				]
			}]}]
		}`))
	})

	geometry, err := backend.Geometry(context.Background(), testSession, mgRoad, whitefield)
	require.NoError(t, err)
	assert.Equal(t, samplePolyline, geometry.Polyline)
	assert.Equal(t, sampleSteps(), geometry.Steps)
	require.NotNil(t, geometry.LegStart)
	assert.Equal(t, "MG Road Metro", geometry.LegStart.Address)
	assert.InDelta(t, 12.9757, geometry.LegStart.Latitude, 1e-9)
}

func TestBackendGeometryWithoutLegs(t *testing.T) {
	backend := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"route":"abc","routes":[]}`))
	})

	_, err := backend.Geometry(context.Background(), testSession, mgRoad, whitefield)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrDecode))
}
