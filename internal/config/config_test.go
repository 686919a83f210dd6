package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
env: development
rabbitmq:
  host: broker
  queue: events
storage:
  driver: sqlite3
  name: /tmp/events.db
consumer:
  max_attempts: 3
dead_letter:
  sink: kafka
kafka:
  brokers: ["k1:9092", "k2:9092"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "broker", cfg.RabbitMQ.Host)
	assert.Equal(t, "events", cfg.RabbitMQ.Queue)
	assert.Equal(t, 5672, cfg.RabbitMQ.Port)
	assert.Equal(t, 3, cfg.Consumer.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Consumer.PersistTimeout)
	assert.Equal(t, SinkKafka, cfg.DeadLetter.Sink)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "/tmp/events.db", cfg.Storage.DataSource())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "rabbitmq:\n  host: broker\n")

	t.Setenv("RABBITMQ_HOST", "rabbit.internal")
	t.Setenv("RABBITMQ_USER", "svc")
	t.Setenv("RABBITMQ_PASSWORD", "pw")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "rabbit.internal", cfg.RabbitMQ.Host)
	assert.Equal(t, "svc", cfg.RabbitMQ.User)
	assert.Equal(t, "pw", cfg.RabbitMQ.Password)
}

func TestLoad_EnvOnlyDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "notification_events", cfg.RabbitMQ.Queue)
	assert.Equal(t, 1, cfg.RabbitMQ.Prefetch)
	assert.Equal(t, "pgx", cfg.Storage.Driver)
	assert.Equal(t, SinkLog, cfg.DeadLetter.Sink)
	assert.Equal(t, 0, cfg.Consumer.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Consumer.BaseBackoff)
	assert.Equal(t, "postgres://notiuser:notipassword@db:5432/notification_db?sslmode=disable", cfg.Storage.DataSource())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "dead_letter:\n  sink: carrier-pigeon\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "consumer:\n  max_attempts: -1\n"))
	assert.Error(t, err)
}

func TestLoad_RetryBudgetNeedsDurableSink(t *testing.T) {
	_, err := Load(writeConfig(t, "consumer:\n  max_attempts: 10\n"))
	assert.ErrorContains(t, err, "dead letter sink")

	t.Setenv("CONSUMER_MAX_ATTEMPTS", "5")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv("DEAD_LETTER_SINK", SinkQueue)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Consumer.MaxAttempts)
	assert.Equal(t, SinkQueue, cfg.DeadLetter.Sink)
}

func TestStorageConfig_DataSource(t *testing.T) {
	c := StorageConfig{Driver: "mysql", Host: "db", Port: 3306, Name: "n", User: "u", Password: "p"}
	assert.Equal(t, "u:p@tcp(db:3306)/n?parseTime=true", c.DataSource())

	c.DSN = "explicit"
	assert.Equal(t, "explicit", c.DataSource())
}

func TestRabbitMQConfig_URL(t *testing.T) {
	c := RabbitMQConfig{Host: "h", Port: 5673, User: "u", Password: "p", VHost: "/"}
	assert.Contains(t, c.URL(), "amqp://u:p@h:5673")
}
