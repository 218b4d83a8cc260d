package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/okian/satobs/internal/domain/batch"
	"github.com/okian/satobs/pkg/logger"
	"github.com/okian/satobs/pkg/metrics"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 2 * time.Second
	disconnectQuiesceMs   = 250
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timeout")

// MQTTConfig holds broker settings.
type MQTTConfig struct {
	Broker   string
	ClientID string
	// Topic is the prefix; events go to <Topic>/<batch_id>/progress and
	// <Topic>/<batch_id>/result.
	Topic          string
	PublishTimeout time.Duration
}

// publisher is the subset of mqtt.Client the publisher needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
}

// MQTTPublisher mirrors progress events and results to an MQTT broker.
// Publish failures are logged and never reach the orchestrator.
type MQTTPublisher struct {
	client  publisher
	closer  func()
	topic   string
	timeout time.Duration
	logger  logger.Logger
}

var _ batch.ProgressSink = (*MQTTPublisher)(nil)

// DialMQTT connects to the broker.
func DialMQTT(ctx context.Context, cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)

	log := logger.Get().Named("progress-mqtt")
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn(context.Background(), "mqtt connection lost", logger.String("broker", cfg.Broker), logger.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	timeout := defaultConnectTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Broker, err)
	}
	log.Info(ctx, "connected to mqtt broker", logger.String("broker", cfg.Broker), logger.String("topic", cfg.Topic))

	p := newMQTTPublisher(client, cfg, log)
	p.closer = func() { client.Disconnect(disconnectQuiesceMs) }
	return p, nil
}

func newMQTTPublisher(client publisher, cfg MQTTConfig, log logger.Logger) *MQTTPublisher {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &MQTTPublisher{client: client, topic: cfg.Topic, timeout: timeout, logger: log}
}

// Progress implements batch.ProgressSink.
func (p *MQTTPublisher) Progress(ctx context.Context, ev batch.Progress) {
	p.publish(ctx, p.topic+"/"+ev.BatchID+"/progress", ev)
}

// Finished implements batch.ProgressSink. Results are retained so late
// subscribers still see them.
func (p *MQTTPublisher) Finished(ctx context.Context, r batch.Result) {
	p.publish(ctx, p.topic+"/"+r.BatchID+"/result", r)
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

func (p *MQTTPublisher) publish(ctx context.Context, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.fail(ctx, topic, err)
		return
	}
	_, retained := v.(batch.Result)
	token := p.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		p.fail(ctx, topic, ErrPublishTimeout)
		return
	}
	if err := token.Error(); err != nil {
		p.fail(ctx, topic, err)
		return
	}
	metrics.RecordProgressPublish("mqtt")
}

func (p *MQTTPublisher) fail(ctx context.Context, topic string, err error) {
	metrics.RecordProgressPublish("mqtt_error")
	p.logger.Warn(ctx, "progress publish failed", logger.String("topic", topic), logger.Error(err))
}
