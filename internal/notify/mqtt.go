package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"facemark/internal/attend"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// MQTT publishes fired alerts to a broker topic at QoS 1. The underlying
// client reconnects automatically; publishes while disconnected fail fast
// and are dropped by the alert manager rather than queued.
type MQTT struct {
	client mqtt.Client
	topic  string
}

var _ attend.Notifier = (*MQTT)(nil)

// NewMQTT connects to the broker and returns a notifier publishing to topic.
func NewMQTT(broker, clientID, topic string) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout (broker %s)", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return &MQTT{client: client, topic: topic}, nil
}

func (n *MQTT) Notify(ctx context.Context, ev attend.AlertEvent) error {
	if !n.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	token := n.client.Publish(n.topic, 1, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("mqtt publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish failed: %w", err)
	}
	return nil
}

// Close disconnects from the broker with a short grace period.
func (n *MQTT) Close() {
	if n.client.IsConnected() {
		n.client.Disconnect(250)
	}
}
