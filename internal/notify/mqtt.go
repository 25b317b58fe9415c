package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultMQTTTopic = "watchpost/alerts"

	mqttQoS            = 1
	mqttConnectTimeout = 5 * time.Second
)

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes alerts as JSON at QoS 1.
type MQTTSink struct {
	client Publisher
	topic  string
}

func NewMQTTSink(client Publisher, topic string) *MQTTSink {
	if topic == "" {
		topic = DefaultMQTTTopic
	}
	return &MQTTSink{client: client, topic: topic}
}

// DialMQTT connects to broker with auto-reconnect enabled.
func DialMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(mqttConnectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return client, nil
}

func (s *MQTTSink) Name() string { return "mqtt:" + s.topic }

func (s *MQTTSink) Send(ctx context.Context, p Payload) error {
	if s.client == nil {
		return errNoMQTTClient
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topic, mqttQoS, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", s.topic, err)
	}
	return nil
}

var errNoMQTTClient = errors.New("mqtt client not connected")
