package safety

import (
	"context"
	"net/netip"
	"strconv"
	"strings"

	"github.com/richxcame/safecommute/internal/maps"
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/httpclient"
	"github.com/richxcame/safecommute/pkg/session"
	"github.com/richxcame/safecommute/pkg/validation"
)

type clientIPKey struct{}

// ContextWithClientIP records the caller's address for IP geolocation.
func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

// IPLocator geolocates the caller through ipinfo. Requests without a public
// client address fall back to the service's own egress address.
type IPLocator struct {
	client *httpclient.Client
}

// NewIPLocator creates a locator. client must point at the ipinfo root.
func NewIPLocator(client *httpclient.Client) *IPLocator {
	return &IPLocator{client: client}
}

type ipInfoResponse struct {
	IP      string `json:"ip"`
	City    string `json:"city"`
	Region  string `json:"region"`
	Country string `json:"country"`
	Postal  string `json:"postal"`
	Loc     string `json:"loc"`
}

func (l *IPLocator) Source() LocationSource { return LocationSourceIP }

func (l *IPLocator) Locate(ctx context.Context, _ session.Session, _ TripState) (maps.Location, error) {
	path := "/json"
	if addr, err := netip.ParseAddr(clientIPFromContext(ctx)); err == nil && isPublic(addr) {
		path = "/" + addr.String() + "/json"
	}

	var info ipInfoResponse
	if err := l.client.GetJSON(ctx, path, "", &info); err != nil {
		return maps.Location{}, err
	}
	return parseIPInfo(info)
}

func parseIPInfo(info ipInfoResponse) (maps.Location, error) {
	latText, lonText, found := strings.Cut(info.Loc, ",")
	if !found {
		return maps.Location{}, common.NewDecodeError("ipinfo response has no loc", nil)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latText), 64)
	if err != nil {
		return maps.Location{}, common.NewDecodeError("ipinfo latitude is not a number", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonText), 64)
	if err != nil {
		return maps.Location{}, common.NewDecodeError("ipinfo longitude is not a number", err)
	}
	if err := validation.ValidateCoordinates(lat, lon); err != nil {
		return maps.Location{}, err
	}

	parts := make([]string, 0, 3)
	for _, part := range []string{info.City, info.Region, info.Country} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return maps.Location{Latitude: lat, Longitude: lon, Address: strings.Join(parts, ", ")}, nil
}

func isPublic(addr netip.Addr) bool {
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsUnspecified()
}

// TelemetryLocator uses the last position reported for the ACTIVE trip.
type TelemetryLocator struct{}

func (TelemetryLocator) Source() LocationSource { return LocationSourceTelemetry }

func (TelemetryLocator) Locate(_ context.Context, _ session.Session, trip TripState) (maps.Location, error) {
	if trip == nil {
		return maps.Location{}, common.NewNotFoundError("no trip state", nil)
	}
	position, ok := trip.CurrentPosition()
	if !ok {
		return maps.Location{}, common.NewNotFoundError("no telemetry for an active trip", nil)
	}
	return position, nil
}

// RouteStartLocator uses where the route begins: the first leg's start, or the origin.
type RouteStartLocator struct{}

func (RouteStartLocator) Source() LocationSource { return LocationSourceRouteStart }

func (RouteStartLocator) Locate(_ context.Context, _ session.Session, trip TripState) (maps.Location, error) {
	if trip == nil {
		return maps.Location{}, common.NewNotFoundError("no trip state", nil)
	}
	route, ok := trip.PlannedRoute()
	if !ok || route == nil {
		return maps.Location{}, common.NewNotFoundError("no planned route", nil)
	}
	return route.StartLocation(), nil
}

// DefaultLocators returns the fallback chain in priority order.
func DefaultLocators(ipinfo *httpclient.Client) []Locator {
	return []Locator{
		NewIPLocator(ipinfo),
		TelemetryLocator{},
		RouteStartLocator{},
	}
}
