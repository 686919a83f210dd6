package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidUserID  = errors.New("user_id must be a valid uuid")
	ErrEmptyEventType = errors.New("event_type must not be empty")
	ErrEmptyMessage   = errors.New("message must not be empty")

	// ErrMalformedEvent marks a queue body that can never be persisted, no
	// matter how often it is redelivered.
	ErrMalformedEvent = errors.New("malformed event")
)

// Event is a user event as accepted by the api and carried through the queue.
type Event struct {
	UserID    string  `json:"user_id"`
	EventType string  `json:"event_type"`
	Message   string  `json:"message"`
	Payload   Payload `json:"payload"`
}

// EventKey is the natural dedup key of an event.
type EventKey struct {
	UserID    string
	EventType string
	Message   string
}

// ProcessedEvent is the row written by the consumer.
type ProcessedEvent struct {
	Event
	ProcessedAt time.Time
}

func (e Event) Key() EventKey {
	return EventKey{
		UserID:    e.UserID,
		EventType: e.EventType,
		Message:   e.Message,
	}
}

// Validate checks the structural rules every event satisfies before publish.
// All failing rules are reported.
func (e Event) Validate() error {
	var errs []error

	if _, err := uuid.Parse(e.UserID); err != nil {
		errs = append(errs, ErrInvalidUserID)
	}
	if strings.TrimSpace(e.EventType) == "" {
		errs = append(errs, ErrEmptyEventType)
	}
	if strings.TrimSpace(e.Message) == "" {
		errs = append(errs, ErrEmptyMessage)
	}

	return errors.Join(errs...)
}

// Normalized returns the event with user_id in canonical lowercase form.
// Events with an unparsable user_id are returned unchanged.
func (e Event) Normalized() Event {
	if id, err := uuid.Parse(e.UserID); err == nil {
		e.UserID = id.String()
	}
	return e
}

type wireEvent struct {
	UserID    *string `json:"user_id"`
	EventType *string `json:"event_type"`
	Message   *string `json:"message"`
	Payload   Payload `json:"payload"`
}

// Decode parses a queue body. Every failure wraps ErrMalformedEvent.
func Decode(body []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	var missing []string
	if w.UserID == nil {
		missing = append(missing, "user_id")
	}
	if w.EventType == nil {
		missing = append(missing, "event_type")
	}
	if w.Message == nil {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return Event{}, fmt.Errorf("%w: missing %s", ErrMalformedEvent, strings.Join(missing, ", "))
	}

	ev := Event{
		UserID:    *w.UserID,
		EventType: *w.EventType,
		Message:   *w.Message,
		Payload:   w.Payload,
	}
	if err := ev.Validate(); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	return ev, nil
}
