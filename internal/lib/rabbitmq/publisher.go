package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultPoolSize = 4

// Publisher keeps one broker connection and a small pool of confirm-mode
// channels. Every Publish behaves like a fresh connection from the caller's
// point of view: a failed channel is dropped and a closed connection is
// redialled on the next call.
type Publisher struct {
	log  *slog.Logger
	url  string
	idle chan *pubChannel

	mu   sync.Mutex
	conn *amqp.Connection
}

type pubChannel struct {
	ch       *amqp.Channel
	declared map[string]struct{}
}

func NewPublisher(log *slog.Logger, url string, poolSize int) (*Publisher, error) {
	const op = "rabbitmq.NewPublisher"

	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	p := &Publisher{
		log:  log,
		url:  url,
		idle: make(chan *pubChannel, poolSize),
	}

	if _, err := p.connection(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("rabbitmq publisher initialized", slog.Int("pool_size", poolSize))

	return p, nil
}

// Declare makes sure the queue exists. Publish declares on its own; this is for
// failing fast at startup.
func (p *Publisher) Declare(queue string) error {
	const op = "rabbitmq.Publisher.Declare"

	pc, err := p.acquire()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := pc.declare(queue); err != nil {
		p.discard(pc)
		return fmt.Errorf("%s: %w", op, err)
	}
	p.release(pc)

	return nil
}

// Publish sends msg to queue as a persistent message and waits for the broker
// to confirm it. Any failure wraps ErrPublishFailed.
func (p *Publisher) Publish(ctx context.Context, queue string, msg Message) error {
	const op = "rabbitmq.Publisher.Publish"

	log := p.log.With(slog.String("op", op), slog.String("queue", queue))

	pc, err := p.acquire()
	if err != nil {
		log.Error("failed to get channel", slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w: %w", op, ErrPublishFailed, err)
	}

	if err := pc.declare(queue); err != nil {
		p.discard(pc)
		log.Error("failed to declare queue", slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w: %w", op, ErrPublishFailed, err)
	}

	dc, err := pc.ch.PublishWithDeferredConfirmWithContext(ctx,
		"",    // default exchange routes by queue name
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Timestamp:    time.Now().UTC(),
			Headers:      msg.Headers,
			Body:         msg.Body,
		},
	)
	if err != nil {
		p.discard(pc)
		log.Error("failed to publish message", slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w: %w", op, ErrPublishFailed, err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		p.discard(pc)
		log.Error("failed to wait for confirm", slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w: %w", op, ErrPublishFailed, err)
	}
	p.release(pc)

	if !acked {
		log.Error("message nacked by broker", slog.String("message_id", msg.ID))
		return fmt.Errorf("%s: %w: %w", op, ErrPublishFailed, ErrNacked)
	}

	log.Debug("message published",
		slog.String("message_id", msg.ID),
		slog.Int("body_size", len(msg.Body)),
	)

	return nil
}

func (p *Publisher) Close() error {
	const op = "rabbitmq.Publisher.Close"

	p.log.With(slog.String("op", op)).Info("closing rabbitmq publisher")

drain:
	for {
		select {
		case pc := <-p.idle:
			_ = pc.ch.Close()
		default:
			break drain
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil

	return err
}

func (p *Publisher) connection() (*amqp.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn, nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	p.conn = conn

	return conn, nil
}

func (p *Publisher) acquire() (*pubChannel, error) {
	for {
		select {
		case pc := <-p.idle:
			if pc.ch.IsClosed() {
				continue
			}
			return pc, nil
		default:
			return p.open()
		}
	}
}

func (p *Publisher) open() (*pubChannel, error) {
	conn, err := p.connection()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	return &pubChannel{ch: ch, declared: make(map[string]struct{})}, nil
}

func (p *Publisher) release(pc *pubChannel) {
	if pc.ch.IsClosed() {
		return
	}
	select {
	case p.idle <- pc:
	default:
		_ = pc.ch.Close()
	}
}

func (p *Publisher) discard(pc *pubChannel) {
	if err := pc.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		p.log.Debug("failed to close channel", slog.String("error", err.Error()))
	}
}

func (pc *pubChannel) declare(queue string) error {
	if _, ok := pc.declared[queue]; ok {
		return nil
	}
	if err := declareQueue(pc.ch, queue); err != nil {
		return err
	}
	pc.declared[queue] = struct{}{}
	return nil
}
