package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// MQTTTransport is a Transport over paho. Reconnects are left to the
// Machine, so paho's own auto-reconnect stays off.
type MQTTTransport struct {
	keepAlive  time.Duration
	opTimeout  time.Duration
	bufferSize int

	mu     sync.Mutex
	client paho.Client
	inbox  chan Message
	lost   error
}

// NewMQTTTransport creates an MQTT transport buffering up to bufferSize inbound messages.
func NewMQTTTransport(keepAlive time.Duration, bufferSize int) *MQTTTransport {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &MQTTTransport{
		keepAlive:  keepAlive,
		opTimeout:  5 * time.Second,
		bufferSize: bufferSize,
	}
}

func (t *MQTTTransport) Connect(ctx context.Context, opts ConnectOptions) error {
	t.Disconnect()

	inbox := make(chan Message, t.bufferSize)
	o := paho.NewClientOptions().
		AddBroker("tcp://" + opts.Address).
		SetClientID(opts.ClientID).
		SetKeepAlive(t.keepAlive).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(opts.Timeout).
		SetConnectionLostHandler(func(c paho.Client, err error) {
			t.mu.Lock()
			if t.client == c {
				t.lost = err
			}
			t.mu.Unlock()
		}).
		SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
			select {
			case inbox <- Message{Topic: msg.Topic(), Payload: msg.Payload()}:
			default:
				log.Warn().Str("topic", msg.Topic()).Msg("MQTT inbox full, dropping message")
			}
		})
	if opts.Username != "" {
		o.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		o.SetPassword(opts.Password)
	}

	client := paho.NewClient(o)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return fmt.Errorf("connection timeout: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	t.mu.Lock()
	t.client = client
	t.inbox = inbox
	t.lost = nil
	t.mu.Unlock()
	return nil
}

func (t *MQTTTransport) current() (paho.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil, ErrNotConnected
	}
	return t.client, nil
}

func (t *MQTTTransport) wait(token paho.Token, op string) error {
	if !token.WaitTimeout(t.opTimeout) {
		return fmt.Errorf("%s timeout", op)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return nil
}

func (t *MQTTTransport) Publish(topic string, payload []byte, retained bool) error {
	client, err := t.current()
	if err != nil {
		return err
	}
	return t.wait(client.Publish(topic, 0, retained, payload), "publish")
}

func (t *MQTTTransport) Subscribe(topic string) error {
	client, err := t.current()
	if err != nil {
		return err
	}
	return t.wait(client.Subscribe(topic, 0, nil), "subscribe")
}

func (t *MQTTTransport) Poll() ([]Message, error) {
	t.mu.Lock()
	inbox, lost := t.inbox, t.lost
	t.mu.Unlock()

	if lost != nil {
		return nil, fmt.Errorf("connection lost: %w", lost)
	}
	var msgs []Message
	for {
		select {
		case msg := <-inbox:
			msgs = append(msgs, msg)
		default:
			return msgs, nil
		}
	}
}

func (t *MQTTTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil && t.lost == nil && t.client.IsConnectionOpen()
}

func (t *MQTTTransport) Disconnect() {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.inbox = nil
	t.lost = nil
	t.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}
