package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"notification/internal/domain/models"
	"notification/internal/lib/metrics"
	"notification/internal/lib/rabbitmq"

	"github.com/google/uuid"
)

type EventPublisher interface {
	Publish(ctx context.Context, queue string, msg rabbitmq.Message) error
}

// Service hands accepted events to the broker. Callers validate first.
type Service struct {
	log       *slog.Logger
	publisher EventPublisher
	queue     string
	timeout   time.Duration
}

func New(log *slog.Logger, publisher EventPublisher, queue string, timeout time.Duration) *Service {
	return &Service{
		log:       log,
		publisher: publisher,
		queue:     queue,
		timeout:   timeout,
	}
}

// Publish returns once the broker has confirmed the message.
func (s *Service) Publish(ctx context.Context, event models.Event) error {
	const op = "publisher.Service.Publish"

	msg := rabbitmq.Message{ID: uuid.NewString()}

	log := s.log.With(
		slog.String("op", op),
		slog.String("message_id", msg.ID),
		slog.String("user_id", event.UserID),
		slog.String("event_type", event.EventType),
	)

	body, err := json.Marshal(event)
	if err != nil {
		log.Error("failed to encode event", slog.String("error", err.Error()))
		return fmt.Errorf("%s: encode event: %w", op, err)
	}
	msg.Body = body

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	err = s.publisher.Publish(ctx, s.queue, msg)
	metrics.ObservePublish(err)
	if err != nil {
		log.Error("failed to publish event", slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("event published")
	return nil
}
