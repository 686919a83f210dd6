package rabbitmq

import (
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrPublishFailed = errors.New("publish failed")
	ErrNoQueue       = errors.New("no queue name provided")
	ErrNacked        = errors.New("broker refused message")
)

// Message is a single queue body together with the properties the consumer
// relies on.
type Message struct {
	ID      string
	Body    []byte
	Headers amqp.Table
}

// URL builds an amqp:// connection string.
func URL(host string, port int, user, password, vhost string) string {
	if vhost == "" {
		vhost = "/"
	}
	return amqp.URI{
		Scheme:   "amqp",
		Host:     host,
		Port:     port,
		Username: user,
		Password: password,
		Vhost:    vhost,
	}.String()
}

// declareQueue declares a durable, non-exclusive queue. Redeclaring an existing
// queue with the same flags is a no-op on the broker.
func declareQueue(ch *amqp.Channel, name string) error {
	if name == "" {
		return ErrNoQueue
	}

	if _, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %q: %w", name, err)
	}

	return nil
}
