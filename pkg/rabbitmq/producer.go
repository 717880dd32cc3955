package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// NoopPublisher logs events instead of publishing them. It stands in when
// no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	log.Printf("[MQ-DISABLED] %s/%s: %v", exchange, routingKey, body)
	return nil
}

func (NoopPublisher) Close() {}

// EventProducer publishes persistent JSON events to durable topic exchanges.
type EventProducer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// NewEventProducer dials the broker and opens a channel.
func NewEventProducer(amqpURL string) (*EventProducer, error) {
	conn, ch, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}
	return &EventProducer{conn: conn, ch: ch, declared: map[string]bool{}}, nil
}

// Publish sends body as JSON. When the channel has failed it is reopened
// once and the publish retried before the error is returned.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	}

	err = p.publishOnce(ctx, exchange, routingKey, msg)
	if err == nil {
		return nil
	}
	log.Printf("publish %s/%s failed, reopening channel: %v", exchange, routingKey, err)

	ch, reopenErr := p.conn.Channel()
	if reopenErr != nil {
		return err
	}
	p.ch = ch
	p.declared = map[string]bool{}
	return p.publishOnce(ctx, exchange, routingKey, msg)
}

func (p *EventProducer) publishOnce(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if !p.declared[exchange] {
		if err := declareExchange(p.ch, exchange); err != nil {
			return err
		}
		p.declared[exchange] = true
	}
	return p.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
}

// Close closes the channel and connection.
func (p *EventProducer) Close() {
	closeAll(p.conn, p.ch)
}
