package maps

import (
	"context"
	"strings"
	"time"

	"github.com/richxcame/safecommute/pkg/cache"
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/logger"
	"github.com/richxcame/safecommute/pkg/session"
	"github.com/richxcame/safecommute/pkg/tracing"
	"github.com/richxcame/safecommute/pkg/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tracerName = "maps"

// Geocoder resolves free-text addresses to locations, caching by normalized address.
type Geocoder struct {
	provider Provider
	cache    *cache.Cache[string, Location]
	ttl      time.Duration
}

// NewGeocoder creates a resolver. A nil cache gets a private in-memory one.
func NewGeocoder(provider Provider, c *cache.Cache[string, Location], ttl time.Duration) *Geocoder {
	if c == nil {
		c = cache.New[string, Location]("geocode")
	}
	return &Geocoder{provider: provider, cache: c, ttl: ttl}
}

// NormalizeAddress lower-cases and collapses whitespace.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// Resolve returns the location for address. Blank input fails before any
// network call. The result carries the caller's trimmed address text.
func (g *Geocoder) Resolve(ctx context.Context, sess session.Session, address string) (Location, error) {
	trimmed := strings.TrimSpace(address)
	key := NormalizeAddress(trimmed)
	if key == "" {
		return Location{}, common.NewValidationError("address is required")
	}

	var location Location
	err := tracing.TraceOperation(ctx, tracerName, "maps.geocode",
		[]attribute.KeyValue{attribute.String("address.normalized", key)},
		func(ctx context.Context) error {
			var err error
			location, err = g.cache.GetOrLoad(ctx, key, g.ttl, func(ctx context.Context) (Location, error) {
				loc, err := g.provider.Geocode(ctx, sess, trimmed)
				if err != nil {
					return Location{}, err
				}
				if err := validation.ValidateStruct(loc); err != nil {
					return Location{}, common.NewNotFoundError("geocoder returned an invalid coordinate", err)
				}
				logger.DebugContext(ctx, "address geocoded",
					zap.String("address", key),
					zap.Float64("latitude", loc.Latitude),
					zap.Float64("longitude", loc.Longitude),
				)
				return loc, nil
			})
			return err
		},
	)
	if err != nil {
		return Location{}, err
	}

	location.Address = trimmed
	return location, nil
}
