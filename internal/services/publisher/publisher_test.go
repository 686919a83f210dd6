package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"notification/internal/domain/models"
	"notification/internal/lib/rabbitmq"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publisherStub struct {
	queue    string
	msgs     []rabbitmq.Message
	deadline time.Time
	err      error
}

func (p *publisherStub) Publish(ctx context.Context, queue string, msg rabbitmq.Message) error {
	p.queue = queue
	p.deadline, _ = ctx.Deadline()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestPublish(t *testing.T) {
	stub := &publisherStub{}
	svc := New(slog.New(slog.DiscardHandler), stub, "notification_events", time.Second)

	event := models.Event{
		UserID:    "11111111-1111-1111-1111-111111111111",
		EventType: "login",
		Message:   "user logged in",
		Payload:   models.Payload{"attempt": models.Number("1")},
	}
	require.NoError(t, svc.Publish(context.Background(), event))

	require.Len(t, stub.msgs, 1)
	assert.Equal(t, "notification_events", stub.queue)
	assert.False(t, stub.deadline.IsZero())

	msg := stub.msgs[0]
	_, err := uuid.Parse(msg.ID)
	assert.NoError(t, err)
	assert.JSONEq(t,
		`{"user_id":"11111111-1111-1111-1111-111111111111","event_type":"login","message":"user logged in","payload":{"attempt":1}}`,
		string(msg.Body),
	)

	decoded, err := models.Decode(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, event.Key(), decoded.Key())
}

func TestPublish_NullPayload(t *testing.T) {
	stub := &publisherStub{}
	svc := New(slog.New(slog.DiscardHandler), stub, "q", 0)

	require.NoError(t, svc.Publish(context.Background(), models.Event{
		UserID:    "11111111-1111-1111-1111-111111111111",
		EventType: "logout",
		Message:   "bye",
	}))

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(stub.msgs[0].Body, &raw))
	assert.Equal(t, "null", string(raw["payload"]))
	assert.True(t, stub.deadline.IsZero())
}

func TestPublish_Failure(t *testing.T) {
	stub := &publisherStub{err: fmt.Errorf("%w: connection refused", rabbitmq.ErrPublishFailed)}
	svc := New(slog.New(slog.DiscardHandler), stub, "q", time.Second)

	err := svc.Publish(context.Background(), models.Event{
		UserID:    "11111111-1111-1111-1111-111111111111",
		EventType: "login",
		Message:   "m",
	})
	assert.ErrorIs(t, err, rabbitmq.ErrPublishFailed)
}
