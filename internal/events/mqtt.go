package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"spe/internal/config"
	"spe/internal/logging"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second
	disconnectQuiesce     = 250 // milliseconds

	maxPayloadSize = 1 << 20
)

// publisher is the slice of pahomqtt.Client the emitter needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Envelope is the JSON body of every published event.
type Envelope struct {
	ID    string    `json:"id"`
	Event string    `json:"event"`
	Time  time.Time `json:"time"`
	Data  any       `json:"data,omitempty"`
}

// MQTTEmitter implements service.EventEmitter on top of a paho client.
// Publishing never blocks the caller; delivery failures are logged.
type MQTTEmitter struct {
	client publisher
	prefix string
	qos    byte
	log    *logging.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

// Connect dials the broker described by cfg.
func Connect(cfg config.MQTTConfig, log *logging.Logger) (*MQTTEmitter, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if log == nil {
		log = logging.Discard()
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID(cfg.ClientID)).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			log.Warn("mqtt connection lost", "error", err)
		}).
		SetOnConnectHandler(func(pahomqtt.Client) {
			log.Info("mqtt connected", "broker", cfg.Broker)
		})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return newEmitter(client, cfg, log), nil
}

func newEmitter(client publisher, cfg config.MQTTConfig, log *logging.Logger) *MQTTEmitter {
	if log == nil {
		log = logging.Discard()
	}
	return &MQTTEmitter{
		client: client,
		prefix: strings.Trim(cfg.TopicPrefix, "/"),
		qos:    byte(cfg.QoS),
		log:    log,
		now:    time.Now,
	}
}

// clientID keeps the configured id unique per process so two instances
// sharing a config don't kick each other off the broker.
func clientID(base string) string {
	if base == "" {
		base = "spe"
	}
	return base + "-" + uuid.NewString()[:8]
}

// Topic returns the topic an event is published on.
func (m *MQTTEmitter) Topic(event string) string {
	t := strings.ReplaceAll(event, ":", "/")
	if m.prefix == "" {
		return t
	}
	return m.prefix + "/" + t
}

// Emit publishes event asynchronously.
func (m *MQTTEmitter) Emit(_ context.Context, event string, data any) {
	payload, err := m.encode(event, data)
	if err != nil {
		m.log.Warn("mqtt event dropped", "event", event, "error", err)
		return
	}

	topic := m.Topic(event)
	token := m.client.Publish(topic, m.qos, false, payload)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if !token.WaitTimeout(defaultPublishTimeout) {
			m.log.Warn("mqtt publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			m.log.Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}()
}

func (m *MQTTEmitter) encode(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(Envelope{
		ID:    uuid.NewString(),
		Event: event,
		Time:  m.now().UTC(),
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", event, err)
	}
	if len(payload) > maxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	return payload, nil
}

// Close waits for in-flight publishes and disconnects.
func (m *MQTTEmitter) Close() error {
	m.wg.Wait()
	m.client.Disconnect(disconnectQuiesce)
	return nil
}
