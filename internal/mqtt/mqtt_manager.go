package mqtt

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher is the part of the broker connection telemetry needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
}

// MQTTManager manages the MQTT connection and message routing.
type MQTTManager struct {
	client mqtt.Client
	log    *slog.Logger
}

// New creates and connects a new MQTTManager.
func New(broker, clientID string, log *slog.Logger) (*MQTTManager, error) {
	if log == nil {
		log = slog.Default()
	}
	m := &MQTTManager{log: log.With("component", "mqtt", "broker", broker)}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.log.Warn("connection lost", "err", err)
		})
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		m.log.Debug("unhandled message", "topic", msg.Topic())
	})

	m.client = mqtt.NewClient(opts)
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect %s: %w", broker, token.Error())
	}
	m.log.Info("connected")
	return m, nil
}

// Subscribe subscribes to a specific topic with the desired QoS.
func (m *MQTTManager) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	token := m.client.Subscribe(topic, qos, callback)
	token.Wait()
	return token.Error()
}

// Publish publishes a message to the given topic.
func (m *MQTTManager) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	token := m.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

// Disconnect performs a clean disconnect from the MQTT broker.
func (m *MQTTManager) Disconnect() {
	m.client.Disconnect(250)
}
