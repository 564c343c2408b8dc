package domain

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// eventNamespace seeds name-based IDs for messages delivered without a broker message id.
var eventNamespace = uuid.MustParse("6f1c3d2a-8b4e-4f7a-9c1d-2e5b7a9f0c31")

// entityIDFields is the priority order used to pick a StoredEvent's entity id.
var entityIDFields = []string{
	"application_id",
	"placement_id",
	"job_id",
	"candidate_id",
	"recruiter_id",
	"proposal_id",
	"entity_id",
	"id",
}

// Message is a single delivery taken off the broker.
type Message struct {
	ID         string
	RoutingKey string
	Body       []byte
}

// DomainEvent is an event as published by a producer.
type DomainEvent struct {
	EventType string
	Data      map[string]any
	Payload   Payload
	Timestamp time.Time
}

type wireEvent struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	Timestamp *time.Time      `json:"timestamp"`
}

// ParseDomainEvent decodes the broker wire format.
// A missing timestamp is left zero; callers substitute the receive time.
func ParseDomainEvent(body []byte) (DomainEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return DomainEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(w.EventType) == "" {
		return DomainEvent{}, fmt.Errorf("%w: missing eventType", ErrMalformedEvent)
	}

	data := map[string]any{}
	raw := bytes.TrimSpace(w.Data)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &data); err != nil {
			return DomainEvent{}, fmt.Errorf("%w: data must be an object: %v", ErrMalformedEvent, err)
		}
	}

	ev := DomainEvent{
		EventType: w.EventType,
		Data:      data,
		Payload:   DecodePayload(w.EventType, raw, data),
	}
	if w.Timestamp != nil {
		ev.Timestamp = w.Timestamp.UTC()
	}
	return ev, nil
}

// EventID returns the broker message id, or a stable id derived from the body
// so that redelivery of the same bytes maps to the same StoredEvent.
func EventID(messageID string, body []byte) string {
	if messageID != "" {
		return messageID
	}
	return uuid.NewSHA1(eventNamespace, body).String()
}

// EntityType is the event type prefix before the first dot.
func EntityType(eventType string) string {
	if i := strings.IndexByte(eventType, '.'); i >= 0 {
		return eventType[:i]
	}
	return eventType
}

// StoredEvent is the immutable, append-only record of a consumed event.
// CreatedAt is when the consumer received it and drives rollup bucketing;
// OccurredAt is the producer's timestamp.
type StoredEvent struct {
	ID             string         `json:"id"`
	EventType      string         `json:"event_type"`
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	UserRole       string         `json:"user_role,omitempty"`
	OrganizationID string         `json:"organization_id,omitempty"`
	Metadata       map[string]any `json:"metadata"`
	OccurredAt     time.Time      `json:"occurred_at"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ToStoredEvent derives the persisted shape of the event.
func (e DomainEvent) ToStoredEvent(id string, receivedAt time.Time) StoredEvent {
	receivedAt = receivedAt.UTC()
	occurredAt := e.Timestamp
	if occurredAt.IsZero() {
		occurredAt = receivedAt
	}

	metadata := make(map[string]any, len(e.Data))
	for k, v := range e.Data {
		metadata[k] = v
	}

	org := IDString(e.Data["organization_id"])
	if org == "" {
		org = IDString(e.Data["company_id"])
	}

	return StoredEvent{
		ID:             id,
		EventType:      e.EventType,
		EntityType:     EntityType(e.EventType),
		EntityID:       firstID(e.Data, entityIDFields),
		UserID:         IDString(e.Data["user_id"]),
		UserRole:       IDString(e.Data["user_role"]),
		OrganizationID: org,
		Metadata:       metadata,
		OccurredAt:     occurredAt,
		CreatedAt:      receivedAt,
	}
}

func firstID(data map[string]any, fields []string) string {
	for _, f := range fields {
		if s := IDString(data[f]); s != "" {
			return s
		}
	}
	return ""
}

// MarshalDomainEvent encodes an event in the broker wire format.
func MarshalDomainEvent(eventType string, data map[string]any, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	ts := at.UTC()
	return json.Marshal(wireEvent{EventType: eventType, Data: raw, Timestamp: &ts})
}
