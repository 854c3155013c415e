package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/eb2tech/aura/internal/backlight"
	"github.com/eb2tech/aura/internal/broker"
	"github.com/eb2tech/aura/internal/config"
	"github.com/eb2tech/aura/internal/db"
	"github.com/eb2tech/aura/internal/device"
	"github.com/eb2tech/aura/internal/display"
	"github.com/eb2tech/aura/internal/geo"
	"github.com/eb2tech/aura/internal/metrics"
	"github.com/eb2tech/aura/internal/state"
	"github.com/eb2tech/aura/internal/storage/kv"
	"github.com/eb2tech/aura/internal/weather"
)

const preferencesBucket = "preferences"

// Options adjusts service construction.
type Options struct {
	// ResetPreferences clears stored preferences before they are loaded.
	ResetPreferences bool
	// Logs, when set, is drained to the NATS logs subject.
	Logs *broker.LogForwarder
}

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB      *db.DB
	Metrics *metrics.Registry

	// Device state and outputs
	State       *state.State
	Screen      *display.Screen
	Framebuffer *display.Framebuffer
	Backlight   backlight.Driver
	Brokers     *broker.Group
	Device      *device.Device

	// High-level services
	Scheduler *SchedulerService
	Health    *HealthService
	Settings  *SettingsService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, opts Options) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Metrics = metrics.NewRegistry()

	// Load preferences
	bucket := kv.NewSQLiteBucket(database.DB, preferencesBucket)
	if opts.ResetPreferences {
		log.Info().Msg("Clearing stored preferences (--reset-preferences)")
		if err := bucket.Clear(); err != nil {
			log.Warn().Err(err).Msg("Failed to clear preferences")
		}
	}
	deviceID := device.ID(cfg.Device.ID)
	s.State = state.Load(deviceID, bucket)
	log.Info().Str("device_id", deviceID).Msg("Device identity")

	// Outputs
	s.Screen = display.NewScreen()
	s.Framebuffer = display.NewFramebuffer(s.Screen, cfg.Display.Width, cfg.Display.Height)
	s.Backlight, err = newBacklight(cfg.Backlight)
	if err != nil {
		s.Close()
		return nil, err
	}

	// Brokers
	s.Brokers = newBrokers(cfg, s.State, s.Metrics, opts.Logs)

	// Weather and geo
	client := weather.NewClient(weather.ClientConfig{
		BaseURL:          cfg.Weather.BaseURL,
		Timeout:          cfg.Weather.Timeout.Duration(),
		UserAgent:        cfg.Weather.UserAgent,
		FailureThreshold: cfg.Weather.FailureThreshold,
		OpenTimeout:      cfg.Weather.OpenTimeout.Duration(),
	})
	poller := weather.NewPoller(client, s.Screen, s.Brokers, s.Metrics)
	locator := geo.NewClient(geo.Config{
		DetectURL:    cfg.Geo.DetectURL,
		NominatimURL: cfg.Geo.NominatimURL,
		UserAgent:    cfg.Geo.UserAgent,
		Timeout:      cfg.Geo.Timeout.Duration(),
	}, geo.NewCache(database.DB))

	s.Device = device.New(s.State, s.Screen, s.Backlight, poller, device.Options{
		Brokers:           s.Brokers,
		Locator:           locator,
		ReverseOnLocation: cfg.Geo.ReverseOnLocation,
	})

	// Initialize scheduler service
	s.Scheduler = NewSchedulerService(cfg, s.Device, s.Metrics)

	// Initialize health service
	s.Health = NewHealthService(cfg, s.Scheduler, s.Metrics)

	// Initialize settings service
	s.Settings = NewSettingsService(cfg, s.Device, s.Scheduler, s.Framebuffer, s.Metrics)

	return s, nil
}

func newBacklight(cfg config.BacklightConfig) (backlight.Driver, error) {
	if cfg.Driver != "gpio" {
		log.Info().Msg("Using null backlight driver")
		return backlight.NewNull(), nil
	}
	var freq physic.Frequency
	if err := freq.Set(cfg.Frequency); err != nil {
		return nil, fmt.Errorf("invalid backlight frequency %q: %w", cfg.Frequency, err)
	}
	return backlight.NewGPIO(cfg.Pin, freq)
}

func brokerConfig(kind state.BrokerKind, model string, c config.BrokerConfig) broker.Config {
	bc := broker.DefaultConfig(kind)
	bc.Model = model
	bc.ConnectTimeout = c.ConnectTimeout.Duration()
	bc.DiscoveryTimeout = c.DiscoveryTimeout.Duration()
	bc.MinBackoff = c.MinRetryBackoff.Duration()
	bc.MaxBackoff = c.MaxRetryBackoff.Duration()
	bc.Multiplier = c.RetryMultiplier
	return bc
}

func newBrokers(cfg *config.Config, st *state.State, rec *metrics.Registry, logs *broker.LogForwarder) *broker.Group {
	resolver := broker.NewMDNSResolver()

	mqtt := broker.NewMachine(
		brokerConfig(state.MQTT, cfg.Device.Model, cfg.MQTT),
		st,
		broker.NewMQTTTransport(cfg.MQTT.KeepAlive.Duration(), cfg.MQTT.BufferSize),
		resolver, nil, rec,
	)
	nats := broker.NewMachine(
		brokerConfig(state.NATS, cfg.Device.Model, cfg.NATS),
		st,
		broker.NewNATSTransport(cfg.NATS.KeepAlive.Duration(), cfg.NATS.BufferSize),
		resolver, nil, rec,
	)
	if logs != nil {
		nats.ForwardLogs(logs)
	}
	return broker.NewGroup(mqtt, nats)
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context) error {
	s.Device.Start()

	// Start all background services
	s.Scheduler.Start(ctx)
	s.Health.Start(ctx)
	s.Settings.Start(ctx)

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Scheduler != nil {
		s.Scheduler.Wait()
	}
	s.Brokers.Close()
	if s.DB != nil {
		s.DB.Close()
	}
}
