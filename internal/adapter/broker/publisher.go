package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/V4T54L/marketplace-pulse/internal/domain"
)

// PublishChannel is the subset of *amqp.Channel the publisher needs.
type PublishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends domain events to the topic exchange, routed by event type.
// The load tester and integration tests use it to stand in for producers.
type Publisher struct {
	ch       PublishChannel
	exchange string
	now      func() time.Time
}

func NewPublisher(ch PublishChannel, exchange string) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, now: time.Now}
}

// Publish sends one persistent message and returns its message id.
func (p *Publisher) Publish(ctx context.Context, eventType string, data map[string]any) (string, error) {
	now := p.now()
	body, err := domain.MarshalDomainEvent(eventType, data, now)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	err = p.ch.PublishWithContext(ctx, p.exchange, eventType, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    now,
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", eventType, err)
	}
	return id, nil
}
