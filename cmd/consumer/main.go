package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notification/internal/config"
	"notification/internal/lib/attempts"
	"notification/internal/lib/deadletter"
	kafkaproducer "notification/internal/lib/kafka"
	"notification/internal/lib/logger"
	"notification/internal/lib/metrics"
	"notification/internal/lib/rabbitmq"
	eventgetter "notification/internal/services/event-getter"
	"notification/internal/services/processors"
	"notification/internal/storage/sqlstorage"
	"notification/migrations"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	log.Info("starting consumer", slog.String("env", cfg.Env), slog.String("queue", cfg.RabbitMQ.Queue))

	storage := setupStorage(log, cfg)
	defer storage.Close()

	consumer := setupConsumer(log, cfg)
	defer consumer.Close()

	sink, sinkCloser := setupDeadLetterSink(log, cfg)
	defer sinkCloser.Close()

	getter := eventgetter.New(
		log,
		consumer,
		processors.NewEventProcessor(log, storage),
		sink,
		attempts.New(cfg.Consumer.AttemptCacheSize, cfg.Consumer.AttemptTTL),
		eventgetter.RetryPolicy{
			PersistTimeout: cfg.Consumer.PersistTimeout,
			MaxAttempts:    cfg.Consumer.MaxAttempts,
			BaseBackoff:    cfg.Consumer.BaseBackoff,
			MaxBackoff:     cfg.Consumer.MaxBackoff,
		},
		cfg.RabbitMQ.Queue,
	)

	go func() {
		if err := metrics.Listen(cfg.Metrics.Host, cfg.Metrics.Port); err != nil {
			log.Error("failed to start metrics server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run(ctx, log, getter, cfg.Consumer.ResubscribeBackoff)

	log.Info("consumer stopped")
}

// run keeps a subscription alive until ctx is done.
func run(ctx context.Context, log *slog.Logger, getter *eventgetter.Getter, backoff time.Duration) {
	for {
		err := getter.GetEventStart(ctx)
		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, eventgetter.ErrDeliveriesClosed) {
			log.Warn("subscription lost, resubscribing", slog.Duration("backoff", backoff))
		} else {
			log.Error("consumer failed, resubscribing",
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func setupStorage(log *slog.Logger, cfg *config.Config) *sqlstorage.SQLStorage {
	storage, err := sqlstorage.New(log, cfg.Storage.Driver, cfg.Storage.DataSource())
	if err != nil {
		log.Error("failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if cfg.Storage.AutoMigrate {
		if err := migrations.Up(storage.DB(), cfg.Storage.Driver); err != nil {
			log.Error("failed to apply migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	return storage
}

func setupConsumer(log *slog.Logger, cfg *config.Config) *rabbitmq.Consumer {
	consumer, err := rabbitmq.NewConsumer(
		log, cfg.RabbitMQ.URL(), cfg.RabbitMQ.Queue, cfg.RabbitMQ.Prefetch, cfg.RabbitMQ.ConsumerTag)
	if err != nil {
		log.Error("failed to initialize rabbitmq consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	return consumer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func setupDeadLetterSink(log *slog.Logger, cfg *config.Config) (deadletter.Sink, io.Closer) {
	switch cfg.DeadLetter.Sink {
	case config.SinkKafka:
		producer, err := kafkaproducer.New(log, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.DialAddress)
		if err != nil {
			log.Error("failed to initialize kafka producer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return deadletter.NewKafkaSink(producer), producer
	case config.SinkQueue:
		publisher, err := rabbitmq.NewPublisher(log, cfg.RabbitMQ.URL(), 1)
		if err != nil {
			log.Error("failed to initialize dead letter publisher", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return deadletter.NewQueueSink(publisher, deadletter.QueueName(cfg.RabbitMQ.Queue)), publisher
	default:
		return deadletter.NewLogSink(log), nopCloser{}
	}
}
