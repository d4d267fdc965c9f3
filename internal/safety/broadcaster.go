package safety

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/richxcame/safecommute/internal/maps"
	"github.com/richxcame/safecommute/pkg/common"
	apperrors "github.com/richxcame/safecommute/pkg/errors"
	"github.com/richxcame/safecommute/pkg/eventbus"
	"github.com/richxcame/safecommute/pkg/httpclient"
	"github.com/richxcame/safecommute/pkg/logger"
	"github.com/richxcame/safecommute/pkg/resilience"
	"github.com/richxcame/safecommute/pkg/session"
	"github.com/richxcame/safecommute/pkg/tracing"
	"go.uber.org/zap"
)

const sendAlertPath = "/sos/send-alert"

var (
	sosBroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sos_broadcasts_total",
		Help: "Emergency broadcasts by result",
	}, []string{"result"})

	sosLocationSourceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sos_location_source_total",
		Help: "Which locator resolved the position of an emergency broadcast",
	}, []string{"source"})
)

// NewSOSClient builds the client used for alert delivery. Transient failures
// are retried up to maxAttempts times, each attempt bounded by timeout. The
// client never goes through a circuit breaker: every new alert is POSTed.
func NewSOSClient(baseURL string, timeout time.Duration, maxAttempts int, opts ...httpclient.Option) *httpclient.Client {
	opts = append([]httpclient.Option{
		httpclient.WithName("sos"),
		httpclient.WithRetry(resilience.UrgentRetryConfig(maxAttempts, timeout)),
	}, opts...)
	opts = append(opts, httpclient.WithoutBreaker())
	return httpclient.NewClient(baseURL, timeout, opts...)
}

// Broadcaster resolves the user's position and sends an emergency alert.
// Alerts are never cached or deduplicated locally.
type Broadcaster struct {
	client         *httpclient.Client
	locators       []Locator
	eventBus       eventbus.Publisher
	defaultMessage string
	now            func() time.Time
	newKey         func() string
}

// NewBroadcaster creates a broadcaster that tries locators in order.
func NewBroadcaster(client *httpclient.Client, locators []Locator, defaultMessage string) *Broadcaster {
	if strings.TrimSpace(defaultMessage) == "" {
		defaultMessage = DefaultSOSMessage
	}
	return &Broadcaster{
		client:         client,
		locators:       locators,
		defaultMessage: defaultMessage,
		now:            time.Now,
		newKey:         func() string { return uuid.New().String() },
	}
}

// SetEventBus sets the NATS event bus for SOS events.
func (b *Broadcaster) SetEventBus(pub eventbus.Publisher) {
	b.eventBus = pub
}

type sendAlertRequest struct {
	UserID    string        `json:"user_id"`
	Timestamp string        `json:"timestamp"`
	Location  maps.Location `json:"location"`
	Message   string        `json:"message"`
}

// Broadcast sends an emergency alert for the session's user. It fails with
// LocationUnresolved, without sending anything, when no locator succeeds.
func (b *Broadcaster) Broadcast(ctx context.Context, sess session.Session, trip TripState, message string) (*EmergencyAlert, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}

	var tripID string
	if trip != nil {
		tripID = trip.ActiveTripID()
	}
	ctx, span := tracing.StartSpan(ctx, tracerName, "safety.broadcast")
	defer span.End()
	tracing.AddSpanAttributes(ctx, tracing.TripAttributes(tripID, sess.UserID)...)

	location, source, err := b.locate(ctx, sess, trip)
	if err != nil {
		sosBroadcastsTotal.WithLabelValues("unresolved").Inc()
		span.RecordError(err)
		logger.ErrorContext(ctx, "SOS location unresolved", zap.String("user_id", sess.UserID), zap.Error(err))
		return nil, err
	}
	sosLocationSourceTotal.WithLabelValues(string(source)).Inc()

	if strings.TrimSpace(message) == "" {
		message = b.defaultMessage
	}

	alert := &EmergencyAlert{
		UserID:         sess.UserID,
		TripID:         tripID,
		Timestamp:      b.now().UTC().Format(time.RFC3339),
		Location:       location,
		Message:        message,
		LocationSource: source,
		IdempotencyKey: b.newKey(),
	}

	req := sendAlertRequest{
		UserID:    alert.UserID,
		Timestamp: alert.Timestamp,
		Location:  alert.Location,
		Message:   alert.Message,
	}
	if err := b.client.PostWithIdempotency(ctx, sendAlertPath, sess.Credential, req, nil, alert.IdempotencyKey); err != nil {
		sosBroadcastsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		logger.ErrorContext(ctx, "SOS delivery failed",
			zap.String("user_id", sess.UserID),
			zap.String("location_source", string(source)),
			zap.Error(err),
		)
		if !errors.Is(err, common.ErrUnauthorized) {
			apperrors.CaptureError(ctx, err, map[string]interface{}{
				"user_id":         sess.UserID,
				"trip_id":         tripID,
				"location_source": string(source),
			})
		}
		return nil, err
	}

	sosBroadcastsTotal.WithLabelValues("sent").Inc()
	logger.InfoContext(ctx, "SOS broadcast sent",
		zap.String("user_id", sess.UserID),
		zap.String("trip_id", tripID),
		zap.String("location_source", string(source)),
	)

	eventbus.PublishAsync(ctx, b.eventBus, eventbus.SubjectSOSBroadcast, "commute-service", eventbus.SOSBroadcastData{
		UserID:         alert.UserID,
		TripID:         alert.TripID,
		Latitude:       alert.Location.Latitude,
		Longitude:      alert.Location.Longitude,
		Address:        alert.Location.Address,
		LocationSource: string(source),
		Message:        alert.Message,
		SentAt:         b.now().UTC(),
	})

	return alert, nil
}

// locate walks the chain and returns the first position found.
func (b *Broadcaster) locate(ctx context.Context, sess session.Session, trip TripState) (maps.Location, LocationSource, error) {
	failures := make([]error, 0, len(b.locators))
	for _, locator := range b.locators {
		location, err := locator.Locate(ctx, sess, trip)
		if err == nil {
			return location, locator.Source(), nil
		}
		logger.WarnContext(ctx, "SOS locator failed",
			zap.String("source", string(locator.Source())),
			zap.Error(err),
		)
		failures = append(failures, err)
	}
	return maps.Location{}, "", common.NewLocationUnresolvedError("could not determine current location", errors.Join(failures...))
}
