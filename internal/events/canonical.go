package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types published on the inbox exchange. The type doubles as the
// AMQP routing key.
const (
	TypeMessageReceived = "inbox.message.received.v1"
	TypeAIReplySent     = "inbox.ai_reply.sent.v1"
	TypeQuotaExceeded   = "inbox.quota.exceeded.v1"
)

var (
	// ErrUnknownEventType is returned for event types outside the registry
	ErrUnknownEventType = errors.New("events: unknown event type")

	// ErrInvalidEvent is returned when an event is missing required fields
	ErrInvalidEvent = errors.New("events: invalid event")
)

// CanonicalEvent is a versioned inbox event.
type CanonicalEvent interface {
	EventType() string
	Validate() error
}

var registry = map[string]func() CanonicalEvent{
	TypeMessageReceived: func() CanonicalEvent { return &MessageReceivedV1{} },
	TypeAIReplySent:     func() CanonicalEvent { return &AIReplySentV1{} },
	TypeQuotaExceeded:   func() CanonicalEvent { return &QuotaExceededV1{} },
}

// KnownTypes returns the registered event types, sorted.
func KnownTypes() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsKnownType reports whether eventType is registered.
func IsKnownType(eventType string) bool {
	_, ok := registry[eventType]
	return ok
}

// Envelope is the wire form of an event.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	Aggregate     string          `json:"aggregate"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// overridden in tests
var (
	newEventID = uuid.New
	clock      = time.Now
)

// NewEnvelope validates evt and wraps it for publishing. aggregate names the
// entity the event belongs to, e.g. "conversation:<id>".
func NewEnvelope(aggregate, correlationID string, evt CanonicalEvent) (Envelope, error) {
	if evt == nil {
		return Envelope{}, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	eventType := evt.EventType()
	if !IsKnownType(eventType) {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	aggregate = strings.TrimSpace(aggregate)
	if aggregate == "" {
		return Envelope{}, fmt.Errorf("%w: %s: aggregate is required", ErrInvalidEvent, eventType)
	}
	if err := evt.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("%w: %s: %w", ErrInvalidEvent, eventType, err)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", eventType, err)
	}
	return Envelope{
		EventID:       newEventID(),
		EventType:     eventType,
		Aggregate:     aggregate,
		OccurredAt:    clock().UTC(),
		CorrelationID: strings.TrimSpace(correlationID),
		Payload:       payload,
	}, nil
}

// Decode returns the typed event carried by env as a pointer,
// e.g. *MessageReceivedV1.
func Decode(env Envelope) (CanonicalEvent, error) {
	factory, ok := registry[env.EventType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}
	evt := factory()
	if err := json.Unmarshal(env.Payload, evt); err != nil {
		return nil, fmt.Errorf("events: decode %s: %w", env.EventType, err)
	}
	return evt, nil
}

// missingFields takes name/value pairs and names the blank ones.
func missingFields(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing %s", strings.Join(missing, ", "))
}
