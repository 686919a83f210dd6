package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	uri, err := amqp.ParseURI(URL("localhost", 5673, "noti", "s3cret", "events"))
	require.NoError(t, err)

	assert.Equal(t, "localhost", uri.Host)
	assert.Equal(t, 5673, uri.Port)
	assert.Equal(t, "noti", uri.Username)
	assert.Equal(t, "s3cret", uri.Password)
	assert.Equal(t, "events", uri.Vhost)
}

func TestURL_DefaultVhost(t *testing.T) {
	uri, err := amqp.ParseURI(URL("rabbitmq", 5672, "guest", "guest", ""))
	require.NoError(t, err)

	assert.Equal(t, "rabbitmq", uri.Host)
	assert.Equal(t, "/", uri.Vhost)
}

func TestNewConsumer_RequiresQueue(t *testing.T) {
	_, err := NewConsumer(nil, "amqp://localhost", "", 1, "")
	assert.ErrorIs(t, err, ErrNoQueue)

	c, err := NewConsumer(nil, "amqp://localhost", "notification_events", 0, "")
	require.NoError(t, err)
	assert.Equal(t, 1, c.prefetch)
}
