package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// ErrNotConnected is returned when publishing without a broker link.
// It is transient: the bridge's reconnect loop handles it, the frame
// path never sees it.
var ErrNotConnected = errors.New("bridge: not connected to broker")

// connectTimeout bounds a single connection attempt so the supervisor's
// backoff stays in control of retry pacing.
const connectTimeout = 10 * time.Second

// Publisher is the broker link the bridge drives. The paho client
// implements it in production; tests substitute a mock.
type Publisher interface {
	Connect(ctx context.Context) error
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
	Disconnect()
	IsConnected() bool
}

// pahoPublisher wraps the eclipse paho MQTT client.
type pahoPublisher struct {
	client mqtt.Client
}

// NewPahoPublisher builds an MQTT publisher with a Last Will that marks
// the deployment offline when the link drops ungracefully. onLost is
// invoked from paho's network goroutine whenever the connection fails;
// auto-reconnect is disabled because the bridge supervises its own
// backoff.
func NewPahoPublisher(brokerURL, team string, willTopic string, willPayload []byte, onLost func(error)) Publisher {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(fmt.Sprintf("facetrack-%s-%s", team, uuid.NewString()[:8])).
		SetAutoReconnect(false).
		SetCleanSession(true).
		SetConnectTimeout(connectTimeout).
		SetBinaryWill(willTopic, willPayload, 1, true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			if onLost != nil {
				onLost(err)
			}
		})

	return &pahoPublisher{client: mqtt.NewClient(opts)}
}

func (p *pahoPublisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

func (p *pahoPublisher) Publish(topic string, payload []byte, retained bool) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}
	token := p.client.Publish(topic, 0, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("bridge: publish %s: %w", topic, err)
	}
	return nil
}

func (p *pahoPublisher) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := p.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("bridge: subscribe %s: %w", topic, err)
	}
	return nil
}

func (p *pahoPublisher) Disconnect() {
	p.client.Disconnect(250)
}

func (p *pahoPublisher) IsConnected() bool {
	return p.client.IsConnected()
}
