package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

const prefetch = 10

// Handler processes one delivery body. Returning false re-queues the message.
type Handler func(ctx context.Context, body []byte) bool

// Consumer reads from a durable queue bound to a topic exchange.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewConsumer(amqpURL string) (*Consumer, error) {
	conn, ch, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		closeAll(conn, ch)
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch}, nil
}

// ConsumeWithBindings binds queueName to each routing key and hands
// deliveries to the matching handler. It blocks until ctx is cancelled or the
// broker closes the delivery channel.
func (c *Consumer) ConsumeWithBindings(ctx context.Context, exchange, queueName string, bindings map[string]Handler) error {
	routes := make(map[string]Handler, len(bindings))
	for key, h := range bindings {
		if h != nil {
			routes[key] = h
		}
	}
	if len(routes) == 0 {
		return errors.New("no bindings provided")
	}

	if err := declareExchange(c.ch, exchange); err != nil {
		return err
	}
	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}
	for key := range routes {
		if err := c.ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	deliveries, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for queue %s closed", q.Name)
			}
			dispatch(ctx, routes, d)
		}
	}
}

// dispatch acks handled and unroutable deliveries and re-queues failures.
func dispatch(ctx context.Context, routes map[string]Handler, d amqp.Delivery) {
	h, ok := routes[d.RoutingKey]
	switch {
	case !ok:
		log.Printf("no handler for routing key %s; dropping", d.RoutingKey)
		_ = d.Ack(false)
	case h(ctx, d.Body):
		_ = d.Ack(false)
	default:
		log.Printf("handler for routing key %s failed; re-queuing", d.RoutingKey)
		_ = d.Nack(false, true)
	}
}

func (c *Consumer) Close() {
	closeAll(c.conn, c.ch)
}
