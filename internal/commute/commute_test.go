package commute

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/safecommute/internal/maps"
	"github.com/richxcame/safecommute/internal/safety"
	"github.com/richxcame/safecommute/internal/trips"
	"github.com/richxcame/safecommute/pkg/cache"
	"github.com/richxcame/safecommute/pkg/httpclient"
	"github.com/richxcame/safecommute/pkg/session"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const samplePolyline = "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

var testSession = session.New("user-1", "token-1")

var knownAddresses = map[string][2]float64{
	"MG Road, Bengaluru":    {12.9756, 77.6066},
	"Whitefield, Bengaluru": {12.9698, 77.7500},
}

// fakeBackend serves every upstream path the service calls and records hits.
type fakeBackend struct {
	mu          sync.Mutex
	hits        map[string]int
	safetyDown  bool
	ipinfoDown  bool
	sosAlerts   []map[string]interface{}
	ipinfoPaths []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{hits: make(map[string]int)}
}

func (f *fakeBackend) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeBackend) alerts() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.sosAlerts...)
}

func (f *fakeBackend) lookups() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ipinfoPaths...)
}

func (f *fakeBackend) setSafetyDown(down bool) {
	f.mu.Lock()
	f.safetyDown = down
	f.mu.Unlock()
}

func (f *fakeBackend) setIPInfoDown(down bool) {
	f.mu.Lock()
	f.ipinfoDown = down
	f.mu.Unlock()
}

func (f *fakeBackend) backendHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		f.mu.Lock()
		f.hits[r.URL.Path]++
		safetyDown := f.safetyDown
		f.mu.Unlock()

		switch {
		case r.URL.Path == "/maps/get-latitude-longitude":
			var body struct {
				Address string `json:"address"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			coords, ok := knownAddresses[body.Address]
			if !ok {
				_, _ = w.Write([]byte(`{}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]float64{"latitude": coords[0], "longitude": coords[1]})

		case r.URL.Path == "/maps/get-time-distance":
			_, _ = w.Write([]byte(`{"distance":16400,"duration":"2460"}`))

		case r.URL.Path == "/maps/get-route":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"route": samplePolyline,
				"routes": []interface{}{map[string]interface{}{
					"legs": []interface{}{map[string]interface{}{
						"start_location": map[string]float64{"lat": 12.9757, "lng": 77.6067},
						"start_address":  "MG Road Metro, Bengaluru",
						"steps": []map[string]string{
							{"instructions": "Head east on MG Road", "readable_distance": "2.1 km", "readable_duration": "6 mins"},
							{"instructions": "Continue on Old Airport Road", "readable_distance": "14.3 km", "readable_duration": "35 mins"},
						},
					}},
				}},
			})

		case r.URL.Path == "/llm/route-safety":
			if safetyDown {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"general_insights":"Well lit arterial roads","safety_tips":{"night":"Stay on main roads"}}`))

		case r.URL.Path == "/commute/start-trip":
			_, _ = w.Write([]byte(`{"trip_id":"trip-42"}`))

		case strings.HasPrefix(r.URL.Path, "/commute/end-trip/"),
			strings.HasPrefix(r.URL.Path, "/commute/cancel-trip/"):
			_, _ = w.Write([]byte(`{"status":"ok"}`))

		case r.URL.Path == "/sos/send-alert":
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.mu.Lock()
			f.sosAlerts = append(f.sosAlerts, body)
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"status":"sent"}`))

		case r.URL.Path == "/users/get-users":
			_, _ = w.Write([]byte(`{"emergency_contacts":[{"id":"c-1","name":"Asha","phone":"+919800000001","relationship":"sister"}]}`))

		case r.URL.Path == "/emergency/send-message":
			_, _ = w.Write([]byte(`{"status":"sent"}`))

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (f *fakeBackend) ipinfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.ipinfoPaths = append(f.ipinfoPaths, r.URL.Path)
		down := f.ipinfoDown
		f.mu.Unlock()

		if down {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ip":"203.0.113.7","city":"Bengaluru","region":"Karnataka","country":"IN","loc":"12.9716,77.5946"}`))
	}
}

type testEnv struct {
	backend  *fakeBackend
	service  *Service
	registry *trips.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := newFakeBackend()

	backendServer := httptest.NewServer(fake.backendHandler(t))
	t.Cleanup(backendServer.Close)
	ipinfoServer := httptest.NewServer(fake.ipinfoHandler())
	t.Cleanup(ipinfoServer.Close)

	client := func(name string) *httpclient.Client {
		return httpclient.NewClient(backendServer.URL, 2*time.Second, httpclient.WithName(name))
	}

	provider := maps.NewBackendProvider(client("geocode"), client("route"))
	registry := trips.NewRegistry(trips.NewHTTPBackend(client("commute")))
	ipinfo := httpclient.NewClient(ipinfoServer.URL, 2*time.Second, httpclient.WithName("ipinfo"))

	service := NewService(Components{
		Geocoder:    maps.NewGeocoder(provider, cache.New[string, maps.Location]("geocode"), time.Hour),
		Aggregator:  maps.NewAggregator(provider, cache.New[string, maps.Route]("route"), time.Hour),
		Annotator:   safety.NewAnnotator(client("safety"), cache.New[string, safety.SafetyReport]("safety"), time.Hour),
		Broadcaster: safety.NewBroadcaster(safety.NewSOSClient(backendServer.URL, 2*time.Second, 1), safety.DefaultLocators(ipinfo), ""),
		Contacts:    safety.NewContacts(client("users")),
		Trips:       registry,
	})
	service.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }

	return &testEnv{backend: fake, service: service, registry: registry}
}
