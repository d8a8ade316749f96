package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const mqttTimeout = 10 * time.Second

// MQTT publishes notifications as JSON messages to an MQTT broker. The
// connection is made per notification; runs are rare enough that holding
// a broker session open is not worth the reconnect handling.
type MQTT struct {
	broker   string
	topic    string
	username string
	password string
}

// NewMQTT creates an MQTT provider. broker is a paho URL such as
// "tcp://broker:1883".
func NewMQTT(broker, topic, username, password string) *MQTT {
	return &MQTT{broker: broker, topic: topic, username: username, password: password}
}

func (m *MQTT) Name() string { return "mqtt" }

type mqttPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

func (m *MQTT) Send(_ context.Context, title, body string) error {
	opts := mqtt.NewClientOptions().
		SetClientID("tugtainer").
		AddBroker(m.broker).
		SetConnectTimeout(mqttTimeout).
		SetWriteTimeout(mqttTimeout)
	if m.username != "" {
		opts.SetUsername(m.username)
		opts.SetPassword(m.password)
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if tok.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", tok.Error())
	}
	defer client.Disconnect(250)

	payload, err := json.Marshal(mqttPayload{
		Title:     title,
		Body:      body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal mqtt payload: %w", err)
	}

	pub := client.Publish(m.topic, 0, false, payload)
	if !pub.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("mqtt publish timeout")
	}
	if pub.Error() != nil {
		return fmt.Errorf("mqtt publish: %w", pub.Error())
	}
	return nil
}
