package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes result documents keyed by job id so a job's
// records land on one partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher builds a writer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		},
	}, nil
}

// Name implements Publisher.
func (p *KafkaPublisher) Name() string { return "kafka" }

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, rec Record) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.JobID),
		Value: rec.Document,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "role", Value: []byte(rec.Role)},
			{Key: "status", Value: []byte(rec.Status)},
			{Key: "schema_version", Value: []byte(fmt.Sprintf("%d", rec.SchemaVersion))},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", rec.JobID, err)
	}
	return nil
}

// Close implements Publisher.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
