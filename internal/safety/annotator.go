package safety

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/richxcame/safecommute/internal/maps"
	"github.com/richxcame/safecommute/pkg/cache"
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/richxcame/safecommute/pkg/httpclient"
	"github.com/richxcame/safecommute/pkg/logger"
	"github.com/richxcame/safecommute/pkg/session"
	"github.com/richxcame/safecommute/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	tracerName = "safety"

	routeSafetyPath = "/llm/route-safety"
)

// Annotator enriches a route with safety insights. It sends one request per
// route and caches by the exact step sequence.
type Annotator struct {
	client *httpclient.Client
	cache  *cache.Cache[string, SafetyReport]
	ttl    time.Duration
}

// NewAnnotator creates an annotator. A nil cache gets a private in-memory one.
func NewAnnotator(client *httpclient.Client, c *cache.Cache[string, SafetyReport], ttl time.Duration) *Annotator {
	if c == nil {
		c = cache.New[string, SafetyReport]("safety")
	}
	return &Annotator{client: client, cache: c, ttl: ttl}
}

type routeSafetyStep struct {
	Instructions string `json:"instructions"`
	Distance     string `json:"distance"`
	Duration     string `json:"duration"`
}

type routeSafetyRequest struct {
	RouteSteps []routeSafetyStep `json:"route_steps"`
}

// StepsKey hashes the ordered step sequence. Any change in content or order
// yields a different key.
func StepsKey(steps []maps.RouteStep) string {
	encoded, _ := json.Marshal(steps)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

// Annotate returns the safety report for steps.
func (a *Annotator) Annotate(ctx context.Context, sess session.Session, steps []maps.RouteStep) (*SafetyReport, error) {
	if len(steps) == 0 {
		return nil, common.NewValidationError("route has no steps to annotate")
	}

	key := StepsKey(steps)
	var report SafetyReport
	err := tracing.TraceOperation(ctx, tracerName, "safety.annotate",
		[]attribute.KeyValue{attribute.Int("route.steps", len(steps))},
		func(ctx context.Context) error {
			var err error
			report, err = a.cache.GetOrLoad(ctx, key, a.ttl, func(ctx context.Context) (SafetyReport, error) {
				return a.fetch(ctx, sess, steps)
			})
			return err
		},
	)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (a *Annotator) fetch(ctx context.Context, sess session.Session, steps []maps.RouteStep) (SafetyReport, error) {
	req := routeSafetyRequest{RouteSteps: make([]routeSafetyStep, 0, len(steps))}
	for _, step := range steps {
		req.RouteSteps = append(req.RouteSteps, routeSafetyStep{
			Instructions: step.Instructions,
			Distance:     step.ReadableDistance,
			Duration:     step.ReadableDuration,
		})
	}

	var report SafetyReport
	if err := a.client.PostJSON(ctx, routeSafetyPath, sess.Credential, req, &report); err != nil {
		logger.WarnContext(ctx, "safety annotation failed", zap.Int("steps", len(steps)), zap.Error(err))
		return SafetyReport{}, common.NewAnnotationUnavailableError("safety insights unavailable", err)
	}

	if report.SafetyTips == nil {
		report.SafetyTips = map[string]string{}
	}
	if report.RoadConditions == nil {
		report.RoadConditions = map[string]string{}
	}
	if report.AreasOfConcern == nil {
		report.AreasOfConcern = map[string]string{}
	}
	return report, nil
}
