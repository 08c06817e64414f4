package sink

import (
	"context"
	"errors"
	"log/slog"

	"mediaworker/internal/config"
)

// Publisher announces stored results to downstream consumers.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, rec Record) error
	Close() error
}

// OpenPublishers builds every publisher with a configured endpoint.
func OpenPublishers(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]Publisher, error) {
	var pubs []Publisher
	if len(cfg.Sink.Kafka.Brokers) > 0 {
		pub, err := NewKafkaPublisher(cfg.Sink.Kafka.Brokers, cfg.Sink.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	if cfg.Sink.MQTT.Broker != "" {
		pub, err := NewMQTTPublisher(ctx, MQTTOptions{
			Broker:      cfg.Sink.MQTT.Broker,
			ClientID:    cfg.Sink.MQTT.ClientID,
			TopicPrefix: cfg.Sink.MQTT.TopicPrefix,
			QoS:         byte(cfg.Sink.MQTT.QoS),
		}, logger)
		if err != nil {
			_ = ClosePublishers(pubs)
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}

// ClosePublishers closes every publisher and joins their errors.
func ClosePublishers(pubs []Publisher) error {
	var errs []error
	for _, pub := range pubs {
		if err := pub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
