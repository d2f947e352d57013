package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/observability"
)

// Topics published by the service.
const (
	TopicAssessmentCompleted = "assessment.completed"
	TopicSessionExpired      = "session.expired"
	TopicProctoringViolation = "proctoring.violation"
)

// Envelope wraps every event on the wire.
type Envelope struct {
	Topic      string          `json:"topic"`
	Source     string          `json:"source"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// AssessmentCompleted is published once an assessment review has been finalized.
type AssessmentCompleted struct {
	UserID       uint      `json:"userId"`
	AssessmentID uint      `json:"assessmentId"`
	TotalScore   int       `json:"totalScore"`
	AvgExecMs    int64     `json:"avgExecMs"`
	Trigger      string    `json:"trigger"`
	CompletedAt  time.Time `json:"completedAt"`
}

// SessionExpired is published when an assessment countdown runs out.
type SessionExpired struct {
	UserID       uint `json:"userId"`
	AssessmentID uint `json:"assessmentId"`
}

// ViolationRecorded is published for every proctoring violation.
type ViolationRecorded struct {
	UserID       uint      `json:"userId"`
	AssessmentID uint      `json:"assessmentId"`
	SessionID    string    `json:"sessionId"`
	Type         string    `json:"type"`
	Severity     int       `json:"severity"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Handler reacts to an event. It receives events published on this node directly
// and events from other nodes through NATS.
type Handler func(ctx context.Context, envelope Envelope)

// Conn is the part of a NATS connection the bus uses. Every node subscribes
// without a queue group so each one sees every event published elsewhere.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// Bus publishes events locally and, when connected, over NATS.
type Bus struct {
	conn     Conn
	base     string
	nodeID   string
	logger   zerolog.Logger
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus constructs a bus. conn may be nil, in which case events stay in-process.
// base prefixes every subject, with ':' separators converted to '.'.
func NewBus(conn *nats.Conn, base string, logger zerolog.Logger) *Bus {
	var wire Conn
	if conn != nil {
		wire = conn
	}
	return newBus(wire, base, logger)
}

func newBus(conn Conn, base string, logger zerolog.Logger) *Bus {
	return &Bus{
		conn:     conn,
		base:     strings.Trim(strings.ReplaceAll(base, ":", "."), "."),
		nodeID:   uuid.NewString(),
		logger:   logger.With().Str("component", "event_bus").Logger(),
		handlers: make(map[string][]Handler),
	}
}

// Subject returns the NATS subject of topic.
func (b *Bus) Subject(topic string) string {
	if b.base == "" {
		return topic
	}
	return b.base + "." + topic
}

// Subscribe registers a local handler for topic.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Publish encodes payload, dispatches it to local handlers and forwards it to NATS.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	envelope := Envelope{Topic: topic, Source: b.nodeID, OccurredAt: time.Now().UTC(), Payload: raw}
	b.dispatch(ctx, envelope)
	observability.EventsPublished().WithLabelValues(topic).Inc()

	if b.conn == nil {
		return nil
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", topic, err)
	}
	if err := b.conn.Publish(b.Subject(topic), data); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Start consumes events from other nodes until ctx is cancelled.
func (b *Bus) Start(ctx context.Context) error {
	if b.conn == nil {
		return nil
	}

	sub, err := b.conn.Subscribe(b.Subject(">"), func(msg *nats.Msg) {
		b.receive(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to unsubscribe from events")
		}
	}()
	return nil
}

// receive dispatches an event published by another node. Events this node
// published were already dispatched locally.
func (b *Bus) receive(ctx context.Context, msg *nats.Msg) {
	var envelope Envelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		b.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("discarding malformed event")
		return
	}
	if envelope.Source == b.nodeID {
		return
	}
	b.dispatch(ctx, envelope)
}

func (b *Bus) dispatch(ctx context.Context, envelope Envelope) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[envelope.Topic]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, envelope)
	}
}

// Decode unmarshals the envelope payload into target.
func Decode[T any](envelope Envelope) (T, error) {
	var target T
	if err := json.Unmarshal(envelope.Payload, &target); err != nil {
		return target, fmt.Errorf("decode %s: %w", envelope.Topic, err)
	}
	return target, nil
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, any) error { return nil }
