// Package broker connects the consumer to the AMQP topic exchange.
package broker

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Declarer is the subset of *amqp.Channel used to declare the topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
}

// Topology names the exchanges and queues the consumer owns.
type Topology struct {
	Exchange           string
	Queue              string
	DeadLetterExchange string
	DeadLetterQueue    string
	Bindings           []string
}

// Declare creates the exchanges, queues and bindings if they are missing and
// limits the channel to one unacknowledged delivery. Declaring is idempotent
// as long as the arguments match what already exists on the broker.
func (t Topology) Declare(ch Declarer) error {
	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}

	if t.DeadLetterExchange != "" {
		if err := ch.ExchangeDeclare(t.DeadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead-letter exchange %s: %w", t.DeadLetterExchange, err)
		}
		if _, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare dead-letter queue %s: %w", t.DeadLetterQueue, err)
		}
		if err := ch.QueueBind(t.DeadLetterQueue, "", t.DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("bind dead-letter queue: %w", err)
		}
	}

	args := amqp.Table{}
	if t.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = t.DeadLetterExchange
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	for _, key := range t.Bindings {
		if err := ch.QueueBind(t.Queue, key, t.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, t.Queue, err)
		}
	}

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	return nil
}
