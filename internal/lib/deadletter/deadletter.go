// Package deadletter parks messages the consumer gives up on, either because
// they can never be decoded or because they kept failing past the retry
// budget.
package deadletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"notification/internal/lib/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ReasonMalformed        = "malformed"
	ReasonRetriesExhausted = "retries_exhausted"
)

// ErrNotDurable is returned by sinks that cannot keep a message that would
// otherwise still be retried.
var ErrNotDurable = errors.New("dead-letter sink does not store messages")

// Letter is a message that left the main queue for good.
type Letter struct {
	MessageID string
	Queue     string
	Body      []byte
	Reason    string
	Attempts  int
	Error     string
	FailedAt  time.Time
}

func (l Letter) headers() map[string]string {
	return map[string]string{
		"x-source-queue": l.Queue,
		"x-reason":       l.Reason,
		"x-attempts":     strconv.Itoa(l.Attempts),
		"x-error":        l.Error,
		"x-failed-at":    l.FailedAt.UTC().Format(time.RFC3339Nano),
	}
}

type Sink interface {
	DeadLetter(ctx context.Context, letter Letter) error
}

// LogSink only records the letter in the log. It accepts malformed bodies,
// which are dropped anyway, and refuses exhausted retries so the caller keeps
// the message on the queue.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) DeadLetter(_ context.Context, l Letter) error {
	s.log.Warn("message dead-lettered",
		slog.String("message_id", l.MessageID),
		slog.String("reason", l.Reason),
		slog.Int("attempts", l.Attempts),
		slog.String("error", l.Error),
		slog.String("body", string(l.Body)),
	)

	if l.Reason == ReasonRetriesExhausted {
		return ErrNotDurable
	}
	return nil
}

type KafkaWriter interface {
	Send(ctx context.Context, key, value []byte, headers map[string]string) error
}

// KafkaSink forwards the original body to a dead-letter topic, keyed by
// message id, with the failure details in headers.
type KafkaSink struct {
	writer KafkaWriter
}

func NewKafkaSink(writer KafkaWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) DeadLetter(ctx context.Context, l Letter) error {
	const op = "deadletter.KafkaSink.DeadLetter"

	if err := s.writer.Send(ctx, []byte(l.MessageID), l.Body, l.headers()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

type QueuePublisher interface {
	Publish(ctx context.Context, queue string, msg rabbitmq.Message) error
}

// QueueSink republishes the letter to a durable side queue on the same broker.
type QueueSink struct {
	publisher QueuePublisher
	queue     string
}

func NewQueueSink(publisher QueuePublisher, queue string) *QueueSink {
	return &QueueSink{publisher: publisher, queue: queue}
}

func (s *QueueSink) DeadLetter(ctx context.Context, l Letter) error {
	const op = "deadletter.QueueSink.DeadLetter"

	headers := amqp.Table{}
	for k, v := range l.headers() {
		headers[k] = v
	}

	err := s.publisher.Publish(ctx, s.queue, rabbitmq.Message{
		ID:      l.MessageID,
		Body:    l.Body,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// QueueName is the side queue used for dead letters of queue.
func QueueName(queue string) string {
	return queue + ".dead"
}
