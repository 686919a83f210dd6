package processors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"notification/internal/domain/models"
	"notification/internal/lib/metrics"
	"notification/internal/storage"
)

type EventSaver interface {
	SaveEvent(ctx context.Context, event models.ProcessedEvent) (storage.SaveResult, error)
}

// EventProcessor turns a queue body into a stored row. A body that cannot be
// decoded yields an error wrapping models.ErrMalformedEvent; every other error
// comes from the store and is worth retrying.
type EventProcessor struct {
	log   *slog.Logger
	saver EventSaver
	now   func() time.Time
}

func NewEventProcessor(log *slog.Logger, saver EventSaver) *EventProcessor {
	return &EventProcessor{
		log:   log,
		saver: saver,
		now:   time.Now,
	}
}

func (p *EventProcessor) ProcessEvent(ctx context.Context, payload []byte) error {
	const op = "processors.EventProcessor.ProcessEvent"

	log := p.log.With(slog.String("op", op))

	event, err := models.Decode(payload)
	if err != nil {
		log.Error("failed to decode event", slog.Int("body_size", len(payload)), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", op, err)
	}

	event = event.Normalized()
	log = log.With(
		slog.String("user_id", event.UserID),
		slog.String("event_type", event.EventType),
	)

	start := time.Now()
	res, err := p.saver.SaveEvent(ctx, models.ProcessedEvent{
		Event:       event,
		ProcessedAt: p.now().UTC(),
	})
	if err != nil {
		metrics.ObservePersist("failed", time.Since(start))
		log.Error("failed to save event", slog.String("error", err.Error()))
		return fmt.Errorf("%s: save event: %w", op, err)
	}
	metrics.ObservePersist(res.String(), time.Since(start))

	if res == storage.AlreadyPresent {
		log.Info("event already stored, skipping")
		return nil
	}

	log.Info("event stored")
	return nil
}
