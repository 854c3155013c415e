// Package broker connects the device to an MQTT or NATS broker, announces it
// to Home Assistant and relays backlight commands.
//
// Both protocols run through the same Machine; only the Transport differs.
package broker

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

var (
	// ErrNotConnected is returned by transports used before Connect succeeds.
	ErrNotConnected = errors.New("broker transport not connected")
	// ErrNotFound is returned when service discovery finds no broker.
	ErrNotFound = errors.New("no broker found")
)

// Message is one inbound publication.
type Message struct {
	Topic   string
	Payload []byte
}

// ConnectOptions are passed to Transport.Connect.
type ConnectOptions struct {
	Address  string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// Transport is the protocol-specific half of a broker connection.
// Topics always use '/' separators; transports map them as needed.
type Transport interface {
	// Connect blocks until connected, failed, or the timeout elapses.
	Connect(ctx context.Context, opts ConnectOptions) error
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string) error
	// Poll drains buffered inbound messages without blocking. A non-nil
	// error means the connection is gone.
	Poll() ([]Message, error)
	Connected() bool
	Disconnect()
}

// Resolver looks up a broker address by mDNS service type.
type Resolver interface {
	Resolve(ctx context.Context, service string) (string, error)
}

// withDefaultPort appends port when addr has none.
func withDefaultPort(addr string, port int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}
