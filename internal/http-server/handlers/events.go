package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"notification/internal/domain/models"
	"notification/internal/middleware"
)

const maxEventBytes = 1 << 20

type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

type EventHandlers struct {
	log       *slog.Logger
	publisher EventPublisher
}

func NewEventHandlers(log *slog.Logger, publisher EventPublisher) *EventHandlers {
	return &EventHandlers{log: log, publisher: publisher}
}

type publishResponse struct {
	Message string `json:"message"`
}

// PublishHandler accepts one event and returns 202 once the broker has it.
func (h *EventHandlers) PublishHandler(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.EventHandlers.PublishHandler"

	log := h.log.With(slog.String("op", op))
	if caller, ok := middleware.Caller(r.Context()); ok {
		log = log.With(slog.String("caller", caller))
	}

	var event models.Event
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err := dec.Decode(&event); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		log.Debug("invalid request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event = event.Normalized()
	if err := event.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", validationDetails(err)...)
		return
	}

	if err := h.publisher.Publish(r.Context(), event); err != nil {
		log.Error("failed to publish event", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, publishResponse{Message: "Event published successfully"})
}

func validationDetails(err error) []string {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []string{err.Error()}
	}

	errs := joined.Unwrap()
	details := make([]string, 0, len(errs))
	for _, e := range errs {
		details = append(details, e.Error())
	}
	return details
}
