package maps

import (
	"context"

	"github.com/richxcame/safecommute/pkg/session"
)

// Provider is the routing backend contract the resolver and aggregator use.
type Provider interface {
	// Geocode resolves free text to coordinates. The returned Location has no address.
	Geocode(ctx context.Context, sess session.Session, address string) (Location, error)

	// TimeDistance returns the aggregate distance and duration between two points.
	TimeDistance(ctx context.Context, sess session.Session, origin, destination Location) (*TimeDistance, error)

	// Geometry returns the encoded path and turn-by-turn steps between two points.
	Geometry(ctx context.Context, sess session.Session, origin, destination Location) (*Geometry, error)
}
