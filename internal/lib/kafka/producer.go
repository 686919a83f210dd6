package kafkaproducer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

var (
	ErrNoBrokers = errors.New("no kafka brokers provided")
	ErrNoTopic   = errors.New("no kafka topic provided")
)

type Producer struct {
	log    *slog.Logger
	writer *kafka.Writer
}

// New creates a synchronous writer for topic. When dialAddress is set the topic
// is created up front; an existing topic is fine.
func New(
	log *slog.Logger,
	brokers []string,
	topic string,
	dialAddress string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		return nil, ErrNoTopic
	}

	if dialAddress != "" {
		conn, err := kafka.Dial("tcp", dialAddress)
		if err != nil {
			log.Error("failed to dial Kafka", slog.String("error", err.Error()))
			return nil, fmt.Errorf("dial kafka: %w", err)
		}
		defer conn.Close()

		err = conn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		if err != nil {
			log.Warn("failed to create topic", slog.String("error", err.Error()))
		}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	log.Info("Kafka producer initialized", slog.String("topic", topic))

	return &Producer{
		log:    log,
		writer: writer,
	}, nil
}

func (p *Producer) Send(ctx context.Context, key, value []byte, headers map[string]string) error {
	const op = "kafkaproducer.Send"

	log := p.log.With(slog.String("op", op))

	msg := kafka.Message{
		Key:   key,
		Value: value,
		Time:  time.Now().UTC(),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.Error("failed to send Kafka message", slog.String("error", err.Error()))
		return fmt.Errorf("%s: send message: %w", op, err)
	}

	log.Debug("Kafka message sent",
		slog.String("key", string(key)),
		slog.Int("value_size", len(value)),
	)
	return nil
}

func (p *Producer) Close() error {
	const op = "kafkaproducer.Close"

	p.log.With(slog.String("op", op)).
		Info("closing Kafka producer")
	return p.writer.Close()
}
