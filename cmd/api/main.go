package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	httpapp "notification/internal/app/http"
	"notification/internal/config"
	"notification/internal/lib/logger"
	"notification/internal/lib/rabbitmq"
	"notification/internal/services/publisher"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	log.Info("starting api", slog.String("env", cfg.Env))

	brokerPublisher := setupPublisher(log, cfg)
	defer brokerPublisher.Close()

	eventPublisher := publisher.New(log, brokerPublisher, cfg.RabbitMQ.Queue, cfg.RabbitMQ.PublishTimeout)

	application := httpapp.New(log, eventPublisher, httpapp.AppConfig{
		Host:            cfg.HTTP.Host,
		Port:            cfg.HTTP.Port,
		RequestTimeout:  cfg.HTTP.RequestTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		JWTSecret:       cfg.HTTP.JWTSecret,
	})

	go application.MustRun()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	stopSignal := <-stop
	log.Info("shutting down application", slog.String("signal", stopSignal.String()))

	application.Stop()

	log.Info("application stopped")
}

func setupPublisher(log *slog.Logger, cfg *config.Config) *rabbitmq.Publisher {
	p, err := rabbitmq.NewPublisher(log, cfg.RabbitMQ.URL(), cfg.RabbitMQ.PoolSize)
	if err != nil {
		log.Error("failed to initialize rabbitmq publisher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := p.Declare(cfg.RabbitMQ.Queue); err != nil {
		log.Error("failed to declare queue", slog.String("error", err.Error()))
		os.Exit(1)
	}

	return p
}
