package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eb2tech/aura/internal/state"
)

// Phase is the connection state of a Machine.
type Phase int

const (
	Disabled Phase = iota
	Discovering
	Connecting
	Connected
)

func (p Phase) String() string {
	switch p {
	case Disabled:
		return "disabled"
	case Discovering:
		return "discovering"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// CommandHandler applies backlight commands received from the broker.
type CommandHandler interface {
	HandleBacklightCommand(cmd BacklightCommand) error
}

// Recorder observes machine activity.
type Recorder interface {
	RecordBrokerPhase(kind string, phase int)
	RecordBrokerConnect(kind string, success bool)
}

// Config parameterizes a Machine for one protocol.
type Config struct {
	Kind             state.BrokerKind
	Service          string // mDNS service type, e.g. "_mqtt._tcp"
	DefaultPort      int
	Model            string
	ConnectTimeout   time.Duration
	DiscoveryTimeout time.Duration
	MinBackoff       time.Duration
	MaxBackoff       time.Duration
	Multiplier       float64
}

// DefaultConfig returns the machine settings for a broker kind.
func DefaultConfig(kind state.BrokerKind) Config {
	cfg := Config{
		Kind:             kind,
		Model:            "aurad",
		ConnectTimeout:   10 * time.Second,
		DiscoveryTimeout: 3 * time.Second,
		MinBackoff:       1 * time.Second,
		MaxBackoff:       2 * time.Minute,
		Multiplier:       2.0,
	}
	switch kind {
	case state.NATS:
		cfg.Service = "_nats._tcp"
		cfg.DefaultPort = 4222
	default:
		cfg.Service = "_mqtt._tcp"
		cfg.DefaultPort = 1883
	}
	return cfg
}

// Machine runs the discover/connect/serve cycle for one broker. All methods
// must be called from the scheduler loop.
type Machine struct {
	cfg       Config
	st        *state.State
	transport Transport
	resolver  Resolver
	handler   CommandHandler
	recorder  Recorder
	logs      *LogForwarder
	topics    Topics
	logger    zerolog.Logger

	phase         Phase
	connecting    bool
	usedDiscovery bool
	backoff       time.Duration
	nextAttempt   time.Time
	now           func() time.Time
}

// NewMachine creates a machine. handler and recorder may be nil.
func NewMachine(cfg Config, st *state.State, transport Transport, resolver Resolver, handler CommandHandler, recorder Recorder) *Machine {
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = cfg.MinBackoff
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.0
	}
	return &Machine{
		cfg:       cfg,
		st:        st,
		transport: transport,
		resolver:  resolver,
		handler:   handler,
		recorder:  recorder,
		topics:    TopicsFor(st.DeviceID()),
		logger:    log.With().Str("component", "broker").Str("kind", string(cfg.Kind)).Logger(),
		phase:     Disabled,
		backoff:   cfg.MinBackoff,
		now:       time.Now,
	}
}

// ForwardLogs makes the machine publish buffered log lines while connected.
func (m *Machine) ForwardLogs(f *LogForwarder) {
	m.logs = f
}

// SetHandler replaces the command handler.
func (m *Machine) SetHandler(h CommandHandler) {
	m.handler = h
}

// Kind returns the broker kind.
func (m *Machine) Kind() state.BrokerKind { return m.cfg.Kind }

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

func (m *Machine) setPhase(p Phase) {
	if p == m.phase {
		return
	}
	m.logger.Debug().Str("from", m.phase.String()).Str("to", p.String()).Msg("Broker phase changed")
	m.phase = p
	if m.recorder != nil {
		m.recorder.RecordBrokerPhase(string(m.cfg.Kind), int(p))
	}
}

// Tick advances the machine by at most one discovery and one connect attempt.
func (m *Machine) Tick(ctx context.Context) {
	if !m.st.Broker(m.cfg.Kind).Enabled {
		if m.phase != Disabled {
			m.logger.Info().Msg("Broker disabled")
			m.drop(false)
			m.setPhase(Disabled)
		}
		return
	}

	if m.phase == Disabled {
		m.setPhase(Discovering)
	}

	if m.phase == Connected {
		m.serve()
		return
	}

	if m.now().Before(m.nextAttempt) {
		return
	}

	if m.phase == Discovering {
		m.discover(ctx)
	}
	if m.phase == Connecting {
		m.connect(ctx)
	}
}

// Reset forgets the current connection and discovered address so the next
// tick starts over. Used when settings change.
func (m *Machine) Reset() {
	m.drop(true)
	m.backoff = m.cfg.MinBackoff
	m.nextAttempt = time.Time{}
	if m.phase != Disabled {
		m.setPhase(Discovering)
	}
}

// Close disconnects for shutdown.
func (m *Machine) Close() {
	m.drop(false)
	m.setPhase(Disabled)
}

func (m *Machine) discover(ctx context.Context) {
	if server := m.st.Broker(m.cfg.Kind).Server; server != "" {
		m.usedDiscovery = false
		m.setPhase(Connecting)
		return
	}
	if resolved := m.st.BrokerStatus(m.cfg.Kind).ResolvedServer; resolved != "" {
		m.usedDiscovery = true
		m.setPhase(Connecting)
		return
	}
	if m.resolver == nil {
		m.scheduleRetry()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.DiscoveryTimeout)
	defer cancel()

	addr, err := m.resolver.Resolve(ctx, m.cfg.Service)
	if err != nil {
		m.logger.Debug().Err(err).Str("service", m.cfg.Service).Msg("Broker discovery failed")
		m.scheduleRetry()
		return
	}

	m.logger.Info().Str("address", addr).Msg("Discovered broker")
	m.st.SetResolvedServer(m.cfg.Kind, addr)
	m.usedDiscovery = true
	m.setPhase(Connecting)
}

func (m *Machine) connect(ctx context.Context) {
	if m.connecting {
		return
	}
	m.connecting = true
	defer func() { m.connecting = false }()

	settings := m.st.Broker(m.cfg.Kind)
	addr := withDefaultPort(m.st.BrokerAddress(m.cfg.Kind), m.cfg.DefaultPort)

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	m.logger.Info().Str("address", addr).Msg("Connecting to broker")
	err := m.transport.Connect(ctx, ConnectOptions{
		Address:  addr,
		ClientID: m.st.DeviceID(),
		Username: settings.Username,
		Password: settings.Password,
		Timeout:  m.cfg.ConnectTimeout,
	})
	if m.recorder != nil {
		m.recorder.RecordBrokerConnect(string(m.cfg.Kind), err == nil)
	}
	if err != nil {
		m.fail(fmt.Errorf("connect %s: %w", addr, err))
		return
	}

	m.st.MarkBrokerConnected(m.cfg.Kind)
	m.backoff = m.cfg.MinBackoff
	m.setPhase(Connected)
	m.logger.Info().Str("address", addr).Msg("Broker connected")

	for _, topic := range []string{m.topics.BacklightSet, m.topics.BrightnessSet} {
		if err := m.transport.Subscribe(topic); err != nil {
			m.fail(fmt.Errorf("subscribe %s: %w", topic, err))
			return
		}
	}

	m.publishDiscovery()
}

// fail tears the connection down and schedules the next attempt.
func (m *Machine) fail(err error) {
	m.logger.Warn().Err(err).Dur("backoff", m.backoff).Msg("Broker connection failed")
	m.drop(m.usedDiscovery)
	m.setPhase(Discovering)
	m.scheduleRetry()
}

func (m *Machine) drop(forgetResolved bool) {
	m.transport.Disconnect()
	m.st.ClearBrokerConnection(m.cfg.Kind, forgetResolved)
}

func (m *Machine) scheduleRetry() {
	m.nextAttempt = m.now().Add(m.backoff)
	next := time.Duration(float64(m.backoff) * m.cfg.Multiplier)
	if next > m.cfg.MaxBackoff {
		next = m.cfg.MaxBackoff
	}
	m.backoff = next
}

func (m *Machine) serve() {
	if !m.transport.Connected() {
		m.fail(ErrNotConnected)
		return
	}
	msgs, err := m.transport.Poll()
	if err != nil {
		m.fail(err)
		return
	}

	for _, msg := range msgs {
		m.dispatch(msg)
	}

	if !m.st.BrokerStatus(m.cfg.Kind).DiscoveryPublished {
		m.publishDiscovery()
	}
	m.flushLogs()
}

func (m *Machine) dispatch(msg Message) {
	cmd, ok, err := ParseCommand(m.topics, msg)
	if !ok {
		m.logger.Debug().Str("topic", msg.Topic).Msg("Ignoring message on unknown topic")
		return
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("Rejected backlight command")
		return
	}
	if m.handler == nil {
		return
	}
	if err := m.handler.HandleBacklightCommand(cmd); err != nil {
		m.logger.Error().Err(err).Str("topic", msg.Topic).Msg("Failed to apply backlight command")
	}
}

// publishDiscovery announces both entities. The published flag is set only
// when both retained descriptors went out.
func (m *Machine) publishDiscovery() {
	status := m.st.BrokerStatus(m.cfg.Kind)
	if !status.Connected || status.DiscoveryPublished {
		return
	}

	id := m.st.DeviceID()
	deviceDesc, err := DeviceDescriptor(id, m.cfg.Model)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to encode device descriptor")
		return
	}
	lightDesc, err := LightDescriptor(id, m.cfg.Model)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to encode light descriptor")
		return
	}

	if err := m.transport.Publish(m.topics.DeviceConfig, deviceDesc, true); err != nil {
		m.logger.Warn().Err(err).Msg("Device discovery publish failed")
		return
	}
	if err := m.transport.Publish(m.topics.LightConfig, lightDesc, true); err != nil {
		m.logger.Warn().Err(err).Msg("Backlight discovery publish failed")
		return
	}
	if err := m.st.MarkDiscoveryPublished(m.cfg.Kind); err != nil {
		return
	}

	m.logger.Info().Msg("Home Assistant discovery published")
	m.PublishSensorState()
	m.PublishBacklightState()
}

func (m *Machine) publishJSON(topic string, v any) {
	if m.phase != Connected {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		m.logger.Error().Err(err).Str("topic", topic).Msg("Failed to encode state")
		return
	}
	if err := m.transport.Publish(topic, payload, false); err != nil {
		m.logger.Warn().Err(err).Str("topic", topic).Msg("State publish failed")
	}
}

// PublishSensorState publishes the latest Celsius readings. No-op unless connected.
func (m *Machine) PublishSensorState() {
	rt := m.st.Runtime()
	if !rt.HasReading {
		return
	}
	m.publishJSON(m.topics.State, SensorState{Temperature: rt.TemperatureNow, FeelsLike: rt.FeelsLike})
}

// PublishBacklightState publishes the backlight switch and brightness. No-op unless connected.
func (m *Machine) PublishBacklightState() {
	brightness := m.st.Display().Brightness
	s := BacklightState{State: "OFF", Brightness: brightness}
	if m.st.Runtime().BacklightOn && brightness > 0 {
		s.State = "ON"
	}
	m.publishJSON(m.topics.BacklightState, s)
}

func (m *Machine) flushLogs() {
	if m.logs == nil {
		return
	}
	for _, line := range m.logs.Drain(maxLogLinesPerTick) {
		if err := m.transport.Publish(m.topics.Logs, line, false); err != nil {
			return
		}
	}
}
