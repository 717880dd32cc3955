package rabbitmq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dialTimeout  = 10 * time.Second
	exchangeKind = "topic"
)

// dial connects to the broker and opens one channel on the connection.
func dial(rawURL string) (*amqp.Connection, *amqp.Channel, error) {
	target, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, nil, err
	}
	conn, err := amqp.DialConfig(target, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

func declareExchange(ch *amqp.Channel, name string) error {
	return ch.ExchangeDeclare(name, exchangeKind, true, false, false, false, nil)
}

func closeAll(conn *amqp.Connection, ch *amqp.Channel) {
	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}
