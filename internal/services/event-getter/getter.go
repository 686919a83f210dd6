package eventgetter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"notification/internal/domain/models"
	"notification/internal/lib/attempts"
	"notification/internal/lib/deadletter"
	"notification/internal/lib/metrics"
	"notification/internal/services/processors"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned when the broker closes the subscription. The
// caller is expected to subscribe again.
var ErrDeliveriesClosed = errors.New("deliveries channel closed")

const deliveryCountHeader = "x-delivery-count"

type EventConsumer interface {
	Consume(ctx context.Context) (<-chan amqp.Delivery, error)
}

type AttemptCounter interface {
	Next(key string) int
	Forget(key string)
}

// RetryPolicy bounds how a message whose persist failed is retried.
// MaxAttempts = 0 retries forever.
type RetryPolicy struct {
	PersistTimeout time.Duration
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

type State string

const (
	StateAcked             State = "acked"
	StateRejectedPermanent State = "rejected_permanent"
	StateRejectedRetryable State = "rejected_retryable"
	StateDeadLettered      State = "dead_lettered"
)

type Getter struct {
	log            *slog.Logger
	EventConsumer  EventConsumer
	EventProcessor processors.Processor
	sink           deadletter.Sink
	attempts       AttemptCounter
	policy         RetryPolicy
	queue          string

	sleep func(ctx context.Context, d time.Duration)
	now   func() time.Time
}

func New(
	log *slog.Logger,
	consumer EventConsumer,
	processor processors.Processor,
	sink deadletter.Sink,
	attemptCounter AttemptCounter,
	policy RetryPolicy,
	queue string,
) *Getter {
	return &Getter{
		log:            log,
		EventConsumer:  consumer,
		EventProcessor: processor,
		sink:           sink,
		attempts:       attemptCounter,
		policy:         policy,
		queue:          queue,
		sleep:          sleepContext,
		now:            time.Now,
	}
}

// GetEventStart subscribes and handles deliveries one at a time until ctx is
// done or the broker closes the channel.
func (g *Getter) GetEventStart(ctx context.Context) error {
	const op = "eventgetter.Getter.GetEventStart"

	log := g.log.With(slog.String("op", op))

	deliveries, err := g.EventConsumer.Consume(ctx)
	if err != nil {
		log.Error("failed to subscribe", slog.String("error", err.Error()))
		return fmt.Errorf("%s: subscribe: %w", op, err)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping event getter")
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn("deliveries channel closed by broker")
				return fmt.Errorf("%s: %w", op, ErrDeliveriesClosed)
			}
			g.handleDelivery(ctx, d)
		}
	}
}

func (g *Getter) handleDelivery(ctx context.Context, d amqp.Delivery) State {
	const op = "eventgetter.Getter.handleDelivery"

	log := g.log.With(
		slog.String("op", op),
		slog.Uint64("delivery_tag", d.DeliveryTag),
		slog.String("message_id", d.MessageId),
	)

	log.Debug("event received",
		slog.Int("body_size", len(d.Body)),
		slog.Bool("redelivered", d.Redelivered),
	)

	state := g.process(ctx, log, d)
	metrics.ObserveDelivery(string(state))

	return state
}

func (g *Getter) process(ctx context.Context, log *slog.Logger, d amqp.Delivery) State {
	key := attempts.Key(d.MessageId, d.Body)

	pctx := ctx
	if g.policy.PersistTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, g.policy.PersistTimeout)
		defer cancel()
	}

	err := g.EventProcessor.ProcessEvent(pctx, d.Body)
	if err == nil {
		g.attempts.Forget(key)
		if err := d.Ack(false); err != nil {
			log.Error("failed to ack message", slog.String("error", err.Error()))
		}
		log.Info("event processed")
		return StateAcked
	}

	if errors.Is(err, models.ErrMalformedEvent) {
		log.Error("dropping malformed message",
			slog.Int("body_size", len(d.Body)),
			slog.String("error", err.Error()),
		)
		g.deadLetter(ctx, log, d, deadletter.ReasonMalformed, 1, err)
		if err := d.Nack(false, false); err != nil {
			log.Error("failed to nack message", slog.String("error", err.Error()))
		}
		return StateRejectedPermanent
	}

	// Shutdown interrupted the save; it does not count against the budget.
	if ctx.Err() != nil {
		log.Info("requeueing message on shutdown", slog.String("error", err.Error()))
		if err := d.Nack(false, true); err != nil {
			log.Error("failed to requeue message", slog.String("error", err.Error()))
		}
		return StateRejectedRetryable
	}

	attempt := g.attempt(d, key)
	log = log.With(slog.Int("attempt", attempt))

	if g.policy.MaxAttempts > 0 && attempt >= g.policy.MaxAttempts {
		if dlErr := g.deadLetter(ctx, log, d, deadletter.ReasonRetriesExhausted, attempt, err); dlErr == nil {
			g.attempts.Forget(key)
			if err := d.Ack(false); err != nil {
				log.Error("failed to ack dead-lettered message", slog.String("error", err.Error()))
			}
			return StateDeadLettered
		}
	}

	delay := Backoff(attempt, g.policy.BaseBackoff, g.policy.MaxBackoff)
	log.Warn("persist failed, requeueing",
		slog.Duration("backoff", delay),
		slog.String("error", err.Error()),
	)
	g.sleep(ctx, delay)

	if err := d.Nack(false, true); err != nil {
		log.Error("failed to requeue message", slog.String("error", err.Error()))
	}
	return StateRejectedRetryable
}

// attempt returns the 1-based number of the current try. Quorum queues report
// earlier deliveries in a header; otherwise the local counter is used.
func (g *Getter) attempt(d amqp.Delivery, key string) int {
	if n, ok := deliveryCount(d.Headers); ok {
		return n + 1
	}
	return g.attempts.Next(key)
}

func (g *Getter) deadLetter(
	ctx context.Context,
	log *slog.Logger,
	d amqp.Delivery,
	reason string,
	attempt int,
	cause error,
) error {
	if g.sink == nil {
		return errors.New("no dead-letter sink")
	}

	err := g.sink.DeadLetter(ctx, deadletter.Letter{
		MessageID: d.MessageId,
		Queue:     g.queue,
		Body:      d.Body,
		Reason:    reason,
		Attempts:  attempt,
		Error:     cause.Error(),
		FailedAt:  g.now().UTC(),
	})
	if err != nil {
		log.Error("failed to dead-letter message", slog.String("error", err.Error()))
		return err
	}

	log.Warn("message dead-lettered", slog.String("reason", reason))
	return nil
}

// Backoff is base * 2^(attempt-1), capped at limit.
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	if base <= 0 || attempt <= 0 {
		return 0
	}

	d := base
	for i := 1; i < attempt; i++ {
		if limit > 0 && d >= limit {
			break
		}
		d *= 2
	}
	if limit > 0 && d > limit {
		d = limit
	}

	return d
}

func deliveryCount(headers amqp.Table) (int, bool) {
	v, ok := headers[deliveryCountHeader]
	if !ok {
		return 0, false
	}

	switch n := v.(type) {
	case int:
		return n, true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	default:
		return 0, false
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
