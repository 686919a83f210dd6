package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"notification/internal/domain/models"
	"notification/internal/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publisherStub struct {
	events []models.Event
	err    error
}

func (p *publisherStub) Publish(_ context.Context, event models.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func doPublish(t *testing.T, pub EventPublisher, body string) *httptest.ResponseRecorder {
	t.Helper()

	h := NewEventHandlers(slog.New(slog.DiscardHandler), pub)
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.PublishHandler(rec, req)
	return rec
}

func TestPublishHandler_Accepted(t *testing.T) {
	pub := &publisherStub{}

	rec := doPublish(t, pub, `{"user_id":"AAAAAAAA-1111-4111-8111-111111111111","event_type":"login","message":"user logged in","payload":{"ip":"10.0.0.1","tries":2}}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"message":"Event published successfully"}`, rec.Body.String())

	require.Len(t, pub.events, 1)
	got := pub.events[0]
	assert.Equal(t, "aaaaaaaa-1111-4111-8111-111111111111", got.UserID)
	assert.True(t, got.Payload.Equal(models.Payload{
		"ip":    models.String("10.0.0.1"),
		"tries": models.Number("2"),
	}))
}

func TestPublishHandler_BadJSON(t *testing.T) {
	pub := &publisherStub{}

	for _, body := range []string{`{`, `[]`, `{"user_id":1}`, `{"user_id":"11111111-1111-1111-1111-111111111111","event_type":"a","message":"b","payload":[1]}`} {
		rec := doPublish(t, pub, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, pub.events)
}

func TestPublishHandler_Validation(t *testing.T) {
	pub := &publisherStub{}

	rec := doPublish(t, pub, `{"user_id":"nope","event_type":" ","message":""}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation failed", resp.Error)
	assert.ElementsMatch(t, []string{
		models.ErrInvalidUserID.Error(),
		models.ErrEmptyEventType.Error(),
		models.ErrEmptyMessage.Error(),
	}, resp.Details)
	assert.Empty(t, pub.events)
}

func TestPublishHandler_PublishFailure(t *testing.T) {
	pub := &publisherStub{err: errors.New("broker unreachable")}

	rec := doPublish(t, pub, `{"user_id":"11111111-1111-1111-1111-111111111111","event_type":"login","message":"m"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"broker unreachable"}`, rec.Body.String())
}

func TestPublishHandler_TooLarge(t *testing.T) {
	body := `{"user_id":"11111111-1111-1111-1111-111111111111","event_type":"login","message":"` +
		strings.Repeat("x", maxEventBytes) + `"}`

	rec := doPublish(t, &publisherStub{}, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPublishHandler_LogsCaller(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := NewEventHandlers(log, &publisherStub{err: errors.New("broker unreachable")})

	req := httptest.NewRequest(http.MethodPost, "/api/events",
		strings.NewReader(`{"user_id":"11111111-1111-1111-1111-111111111111","event_type":"login","message":"m"}`))
	req = req.WithContext(context.WithValue(req.Context(), middleware.EmailKey, "ops@example.com"))
	rec := httptest.NewRecorder()

	h.PublishHandler(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, buf.String(), `"caller":"ops@example.com"`)
}
