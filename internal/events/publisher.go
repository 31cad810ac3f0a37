package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

// Publisher emits envelopes to downstream consumers. The routing key is the
// envelope's event type.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Emit builds an envelope for evt and publishes it.
func Emit(ctx context.Context, pub Publisher, aggregate, correlationID string, evt CanonicalEvent) (Envelope, error) {
	if pub == nil {
		return Envelope{}, errors.New("events: publisher required")
	}
	env, err := NewEnvelope(aggregate, correlationID, evt)
	if err != nil {
		return Envelope{}, err
	}
	if err := pub.Publish(ctx, env); err != nil {
		return Envelope{}, fmt.Errorf("events: publish %s: %w", env.EventType, err)
	}
	return env, nil
}

// AMQPPublisher publishes envelopes to a durable topic exchange with
// publisher confirms enabled.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	logger   *logging.Logger
}

// NewAMQPPublisher declares the exchange on conn.
func NewAMQPPublisher(conn *amqp091.Connection, exchange string, logger *logging.Logger) (*AMQPPublisher, error) {
	if conn == nil {
		panic("events: amqp connection cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, exchange: exchange, logger: logger}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, env Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("events: open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("events: enable confirms: %w", err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	correlationID := env.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, env.EventType, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     env.EventID.String(),
		CorrelationId: correlationID,
		Timestamp:     env.OccurredAt,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("events: await confirm: %w", err)
	}
	if !acked {
		return errors.New("events: broker nacked publish")
	}
	p.logger.Debug("event published", "event_type", env.EventType, "event_id", env.EventID, "exchange", p.exchange)
	return nil
}

// NopPublisher drops every envelope.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Envelope) error { return nil }

// MemoryPublisher records envelopes in process.
type MemoryPublisher struct {
	mu        sync.Mutex
	envelopes []Envelope
	Err       error
}

func (p *MemoryPublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.envelopes = append(p.envelopes, env)
	return nil
}

// Envelopes returns the envelopes published so far.
func (p *MemoryPublisher) Envelopes() []Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Envelope(nil), p.envelopes...)
}

// OfType returns the published envelopes with the given event type.
func (p *MemoryPublisher) OfType(eventType string) []Envelope {
	var out []Envelope
	for _, env := range p.Envelopes() {
		if env.EventType == eventType {
			out = append(out, env)
		}
	}
	return out
}
