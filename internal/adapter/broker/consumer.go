package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/V4T54L/marketplace-pulse/internal/adapter/metrics"
	"github.com/V4T54L/marketplace-pulse/internal/domain"
	"github.com/V4T54L/marketplace-pulse/internal/usecase"
)

// processTimeout bounds one delivery. Processing is detached from the service
// context so a shutdown does not abort a message halfway through its writes.
const processTimeout = 30 * time.Second

// Handler processes one decoded delivery.
type Handler interface {
	Handle(ctx context.Context, msg domain.Message) (usecase.ProcessResult, error)
}

// Consumer reads the analytics queue one message at a time. It implements
// suture.Service: Serve returns when the connection drops so the supervisor
// can reconnect with backoff.
type Consumer struct {
	url      string
	tag      string
	topology Topology
	handler  Handler
	metrics  *metrics.PipelineMetrics
	logger   *slog.Logger
}

func NewConsumer(url, tag string, topology Topology, handler Handler, m *metrics.PipelineMetrics, logger *slog.Logger) *Consumer {
	return &Consumer{
		url:      url,
		tag:      tag,
		topology: topology,
		handler:  handler,
		metrics:  m,
		logger:   logger.With("component", "amqp_consumer", "queue", topology.Queue),
	}
}

// Serve implements suture.Service.
func (c *Consumer) Serve(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := c.topology.Declare(ch); err != nil {
		return err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.topology.Queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.topology.Queue, err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	c.logger.Info("consumer started", "bindings", c.topology.Bindings)
	return c.consume(ctx, deliveries, closed)
}

func (c *Consumer) String() string { return "amqp-consumer" }

func (c *Consumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context cancelled, stopping consumer")
			return ctx.Err()
		case amqpErr := <-closed:
			return fmt.Errorf("broker connection closed: %v", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), processTimeout)
			c.process(pctx, d)
			cancel()
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	start := time.Now()
	res, err := c.handler.Handle(ctx, domain.Message{ID: d.MessageId, RoutingKey: d.RoutingKey, Body: d.Body})
	c.metrics.ProcessingSeconds.Observe(time.Since(start).Seconds())

	if res.CacheFailures > 0 {
		c.metrics.SideEffectErrors.WithLabelValues("cache").Add(float64(res.CacheFailures))
	}
	if res.DashboardFailures > 0 {
		c.metrics.SideEffectErrors.WithLabelValues("dashboard").Add(float64(res.DashboardFailures))
	}

	var outcome string
	switch {
	case errors.Is(err, domain.ErrMalformedEvent):
		outcome = "malformed"
	case err != nil:
		outcome = "failed"
	case res.Duplicate:
		outcome = "duplicate"
	default:
		outcome = "acked"
	}
	c.metrics.MessagesTotal.WithLabelValues(outcome).Inc()

	if err != nil {
		// Rejected messages go to the dead-letter exchange.
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("failed to nack message", "delivery_tag", d.DeliveryTag, "error", nackErr)
		}
		return
	}
	if ackErr := d.Ack(false); ackErr != nil {
		c.logger.Error("failed to ack message", "delivery_tag", d.DeliveryTag, "error", ackErr)
	}
}
