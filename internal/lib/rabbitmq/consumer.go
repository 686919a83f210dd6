package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Consumer struct {
	log      *slog.Logger
	url      string
	queue    string
	prefetch int
	tag      string

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewConsumer(log *slog.Logger, url, queue string, prefetch int, tag string) (*Consumer, error) {
	if queue == "" {
		return nil, ErrNoQueue
	}
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		log:      log,
		url:      url,
		queue:    queue,
		prefetch: prefetch,
		tag:      tag,
	}, nil
}

// Consume subscribes to the queue with manual acknowledgements. The returned
// channel is closed when ctx is done or the broker connection drops; calling
// Consume again opens a new subscription.
func (c *Consumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	const op = "rabbitmq.Consumer.Consume"

	log := c.log.With(slog.String("op", op), slog.String("queue", c.queue))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		log.Error("failed to dial rabbitmq", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: dial: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: open channel: %w", op, err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: qos: %w", op, err)
	}

	if err := declareQueue(ch, c.queue); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx,
		c.queue,
		c.tag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: consume: %w", op, err)
	}

	c.conn = conn

	log.Info("rabbitmq consumer subscribed", slog.Int("prefetch", c.prefetch))

	return deliveries, nil
}

func (c *Consumer) Close() error {
	const op = "rabbitmq.Consumer.Close"

	c.log.With(slog.String("op", op)).
		Info("closing rabbitmq consumer")

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeLocked()
}

func (c *Consumer) closeLocked() error {
	if c.conn == nil {
		return nil
	}

	var err error
	if !c.conn.IsClosed() {
		err = c.conn.Close()
	}
	c.conn = nil

	return err
}
