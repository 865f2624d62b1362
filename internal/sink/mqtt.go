package sink

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/krishnanrx/parkwise/internal/plate"
)

const publishTimeout = 5 * time.Second

// MQTTPublisher forwards accepted records to a broker topic, where barrier
// controllers and other downstream consumers subscribe. Valid records only;
// invalid reads are of no use to gate control.
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
}

func NewMQTTPublisher(broker, clientID, topic string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect mqtt broker %s: timed out", broker)
	}
	if token.Error() != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect mqtt broker %s: %w", broker, token.Error())
	}
	return &MQTTPublisher{client: client, topic: topic}, nil
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

func (p *MQTTPublisher) Append(rec plate.Record) error {
	if !rec.Valid {
		return nil
	}
	payload, err := json.Marshal(map[string]interface{}{
		"plate":      rec.Text,
		"confidence": rec.Confidence,
		"timestamp":  rec.Timestamp,
	})
	if err != nil {
		return err
	}
	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", p.topic)
	}
	return token.Error()
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
