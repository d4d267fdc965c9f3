package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/richxcame/safecommute/pkg/async"
	"github.com/richxcame/safecommute/pkg/logger"
	"go.uber.org/zap"
)

// Subjects for commute events.
const (
	SubjectTripStarted   = "trips.started"
	SubjectTripCompleted = "trips.completed"
	SubjectTripCancelled = "trips.cancelled"

	SubjectSOSBroadcast = "safety.sos.broadcast"
)

const defaultStreamName = "SAFECOMMUTE"

// Event is the envelope for all events published through the bus.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates a new event with a unique ID and current timestamp.
func NewEvent(eventType, source string, data interface{}) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// Publisher is what services depend on; *Bus implements it.
type Publisher interface {
	Publish(ctx context.Context, subject string, event *Event) error
}

// Config holds NATS connection settings.
type Config struct {
	URL        string
	Name       string // client connection name
	StreamName string
}

// Bus wraps a NATS JetStream connection for publishing.
type Bus struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// New connects to NATS and ensures the JetStream stream exists.
func New(cfg Config) (*Bus, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	streamName := cfg.StreamName
	if streamName == "" {
		streamName = defaultStreamName
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"trips.>", "safety.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream: %w", err)
	}

	logger.Info("NATS event bus connected",
		zap.String("url", cfg.URL),
		zap.String("stream", streamName),
	)

	return &Bus{conn: nc, js: js}, nil
}

// Publish sends an event to the given subject. The event id doubles as the
// JetStream message id so redelivered publishes are deduplicated server-side.
func (b *Bus) Publish(ctx context.Context, subject string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := b.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}

	logger.DebugContext(ctx, "event published",
		zap.String("subject", subject),
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
	)
	return nil
}

// Close drains and closes the NATS connection.
func (b *Bus) Close() {
	if b.conn != nil {
		_ = b.conn.Drain()
	}
	logger.Info("NATS event bus closed")
}

// Connected returns true if the NATS connection is active.
func (b *Bus) Connected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// PublishAsync builds and publishes an event without failing the caller.
// A nil publisher is a no-op.
func PublishAsync(ctx context.Context, pub Publisher, subject, source string, data interface{}) {
	if pub == nil {
		return
	}
	event, err := NewEvent(subject, source, data)
	if err != nil {
		logger.WarnContext(ctx, "failed to build event", zap.String("subject", subject), zap.Error(err))
		return
	}

	async.GoWithTimeout(ctx, "publish "+subject, 5*time.Second, func(publishCtx context.Context) {
		if err := pub.Publish(publishCtx, subject, event); err != nil {
			logger.WarnContext(publishCtx, "failed to publish event",
				zap.String("subject", subject),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	})
}
