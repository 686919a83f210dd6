package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"notification/internal/http-server/handlers"
	"notification/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type App struct {
	log             *slog.Logger
	server          *http.Server
	port            int
	shutdownTimeout time.Duration
}

type AppConfig struct {
	Host            string
	Port            int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	JWTSecret       string
}

func New(log *slog.Logger, publisher handlers.EventPublisher, cfg AppConfig) *App {
	router := NewRouter(log, publisher, cfg)

	return &App{
		log: log,
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		port:            cfg.Port,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// NewRouter wires the request surface. The JWT guard is only installed on the
// publish route, and only when a secret is configured.
func NewRouter(log *slog.Logger, publisher handlers.EventPublisher, cfg AppConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer, middleware.Metrics)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", handlers.HealthHandler)
	r.Handle("/metrics", promhttp.Handler())

	events := handlers.NewEventHandlers(log, publisher)
	r.Route("/api", func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(middleware.JWTAuth(cfg.JWTSecret))
		}
		r.Post("/events", events.PublishHandler)
	})

	return r
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpapp.Run"

	log := a.log.With(slog.String("op", op), slog.Int("port", a.port))

	l, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		log.Error("failed to listen", slog.String("error", err.Error()))
		return fmt.Errorf("%s: failed to listen: %w", op, err)
	}

	log.Info("server started", slog.String("addr", l.Addr().String()))

	if err := a.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: serve: %w", op, err)
	}

	return nil
}

func (a *App) Stop() {
	const op = "httpapp.Stop"

	log := a.log.With(slog.String("op", op))
	log.Info("stopping server", slog.Int("port", a.port))

	timeout := a.shutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		log.Error("failed to shut down gracefully", slog.String("error", err.Error()))
	}
}
