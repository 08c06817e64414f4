package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mediaworker/internal/logging"
	"mediaworker/internal/textutil"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// MQTTOptions configures the MQTT publisher.
type MQTTOptions struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// MQTTPublisher publishes result documents to <prefix>/<role>/<status>.
type MQTTPublisher struct {
	client mqtt.Client
	opts   MQTTOptions
	logger *slog.Logger
}

// NewMQTTPublisher connects to the broker. A bare host:port gets tcp://.
func NewMQTTPublisher(ctx context.Context, opts MQTTOptions, logger *slog.Logger) (*MQTTPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt publisher requires a broker")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos %d out of range", opts.QoS)
	}
	logger = logging.NewComponentLogger(logger, "mqtt")
	broker := opts.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(broker)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectRetryInterval(2 * time.Second)
	clientOpts.SetMaxReconnectInterval(30 * time.Second)
	clientOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect",
			logging.String(logging.FieldEventType, "mqtt_connection_lost"),
			logging.String("broker", broker),
			logging.Error(err),
		)
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !waitToken(ctx, token, mqttConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	logger.Info("mqtt connection established", logging.String("broker", broker))
	return &MQTTPublisher{client: client, opts: opts, logger: logger}, nil
}

// Name implements Publisher.
func (p *MQTTPublisher) Name() string { return "mqtt" }

// Topic returns the topic a record is published to.
func (p *MQTTPublisher) Topic(rec Record) string {
	return mqttTopic(p.opts.TopicPrefix, rec)
}

func mqttTopic(prefix string, rec Record) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "mediaworker"
	}
	return fmt.Sprintf("%s/%s/%s", prefix, textutil.SanitizeToken(string(rec.Role)), textutil.SanitizeToken(string(rec.Status)))
}

// Publish implements Publisher.
func (p *MQTTPublisher) Publish(ctx context.Context, rec Record) error {
	topic := p.Topic(rec)
	token := p.client.Publish(topic, p.opts.QoS, false, rec.Document)
	if !waitToken(ctx, token, mqttPublishTimeout) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close implements Publisher.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

// waitToken waits for token completion, the timeout, or ctx, whichever
// comes first. It reports whether the token completed.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
