package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DashboardChannel publishes and relays dashboard notifications over Redis
// pub/sub. It implements domain.DashboardChannel and domain.DashboardSubscriber.
type DashboardChannel struct {
	client *redis.Client
	logger *slog.Logger
}

func NewDashboardChannel(client *redis.Client, logger *slog.Logger) *DashboardChannel {
	return &DashboardChannel{client: client, logger: logger.With("component", "dashboard_channel")}
}

func (c *DashboardChannel) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", channel, err)
	}
	return nil
}

// Subscribe blocks until the subscription is confirmed, then relays payloads
// until ctx is done or the returned close function is called.
func (c *DashboardChannel) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					c.logger.Warn("dropping dashboard notification for slow subscriber", "channel", channel)
				}
			}
		}
	}()
	return out, pubsub.Close, nil
}
