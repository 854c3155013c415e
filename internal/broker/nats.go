package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSTransport is a Transport over core NATS. Topic separators map to
// subject tokens ("aura/x/state" is "aura.x.state") and the retained flag
// has no NATS equivalent.
type NATSTransport struct {
	pingInterval time.Duration
	bufferSize   int

	mu    sync.Mutex
	conn  *nats.Conn
	inbox chan *nats.Msg
	subs  []*nats.Subscription
	lost  error
}

// NewNATSTransport creates a NATS transport buffering up to bufferSize inbound messages.
func NewNATSTransport(pingInterval time.Duration, bufferSize int) *NATSTransport {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &NATSTransport{pingInterval: pingInterval, bufferSize: bufferSize}
}

func toSubject(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

func fromSubject(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

// setLost records a failure for conn if it is still the active connection.
func (t *NATSTransport) setLost(conn *nats.Conn, err error) {
	if err == nil {
		err = nats.ErrConnectionClosed
	}
	t.mu.Lock()
	if t.conn == conn && t.lost == nil {
		t.lost = err
	}
	t.mu.Unlock()
}

func (t *NATSTransport) Connect(ctx context.Context, opts ConnectOptions) error {
	t.Disconnect()
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}

	natsOpts := []nats.Option{
		nats.Name(opts.ClientID),
		nats.Timeout(timeout),
		nats.NoReconnect(),
		nats.PingInterval(t.pingInterval),
		nats.MaxPingsOutstanding(2),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) { t.setLost(c, err) }),
		nats.ClosedHandler(func(c *nats.Conn) { t.setLost(c, nil) }),
	}
	if opts.Username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(opts.Username, opts.Password))
	}

	conn, err := nats.Connect("nats://"+opts.Address, natsOpts...)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.inbox = make(chan *nats.Msg, t.bufferSize)
	t.subs = nil
	t.lost = nil
	t.mu.Unlock()
	return nil
}

func (t *NATSTransport) Publish(topic string, payload []byte, _ bool) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Publish(toSubject(topic), payload)
}

func (t *NATSTransport) Subscribe(topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ErrNotConnected
	}
	sub, err := t.conn.ChanSubscribe(toSubject(topic), t.inbox)
	if err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	t.subs = append(t.subs, sub)
	return nil
}

func (t *NATSTransport) Poll() ([]Message, error) {
	t.mu.Lock()
	inbox, lost := t.inbox, t.lost
	t.mu.Unlock()

	if lost != nil {
		return nil, fmt.Errorf("connection lost: %w", lost)
	}
	var msgs []Message
	for {
		select {
		case m := <-inbox:
			msgs = append(msgs, Message{Topic: fromSubject(m.Subject), Payload: m.Data})
		default:
			return msgs, nil
		}
	}
}

func (t *NATSTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && t.lost == nil && t.conn.IsConnected()
}

func (t *NATSTransport) Disconnect() {
	t.mu.Lock()
	conn, subs := t.conn, t.subs
	t.conn = nil
	t.subs = nil
	t.inbox = nil
	t.lost = nil
	t.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Unsubscribe()
	}
	if conn != nil {
		conn.Close()
	}
}
