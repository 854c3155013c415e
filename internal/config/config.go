package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the process configuration. User preferences live in
// the database, not here.
type Config struct {
	Device          DeviceConfig      `yaml:"device"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	HTTP            HTTPConfig        `yaml:"http"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	Weather         WeatherConfig     `yaml:"weather"`
	Geo             GeoConfig         `yaml:"geo"`
	MQTT            BrokerConfig      `yaml:"mqtt"`
	NATS            BrokerConfig      `yaml:"nats"`
	Scheduler       SchedulerConfig   `yaml:"scheduler"`
	Backlight       BacklightConfig   `yaml:"backlight"`
	Display         DisplayConfig     `yaml:"display"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DeviceConfig identifies the device
type DeviceConfig struct {
	ID    string `yaml:"id"`    // Overrides the MAC-derived id
	Model string `yaml:"model"` // Reported in broker discovery descriptors
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"use_json"`
	Colors  bool   `yaml:"colors"`
	Forward bool   `yaml:"forward"`     // Forward log lines to the NATS logs subject
	Buffer  int    `yaml:"buffer_size"` // Forwarded lines kept while disconnected
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return strings.ToLower(c.Level)
}

// HTTPConfig contains the Settings API server settings
type HTTPConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	WebRoot string `yaml:"web_root"` // Directory holding index.html and static assets
}

// Addr returns host:port
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// GetHost returns the host with default
func (c *HealthcheckConfig) GetHost() string {
	if c.Host == "" {
		return "0.0.0.0"
	}
	return c.Host
}

// GetPort returns the port with default
func (c *HealthcheckConfig) GetPort() int {
	if c.Port == 0 {
		return 9090
	}
	return c.Port
}

// WeatherConfig contains forecast source settings
type WeatherConfig struct {
	BaseURL          string   `yaml:"base_url"`
	Timeout          Duration `yaml:"timeout"`
	UserAgent        string   `yaml:"user_agent"`
	FailureThreshold uint32   `yaml:"failure_threshold"` // Consecutive failures before the breaker opens
	OpenTimeout      Duration `yaml:"open_timeout"`      // How long the breaker stays open
}

// GeoConfig contains location lookup settings
type GeoConfig struct {
	DetectURL         string   `yaml:"detect_url"`
	NominatimURL      string   `yaml:"nominatim_url"`
	UserAgent         string   `yaml:"user_agent"`
	Timeout           Duration `yaml:"timeout"`
	ReverseOnLocation bool     `yaml:"reverse_on_location"` // Refresh city/region after /setLocation
}

// BrokerConfig contains transport settings for one broker protocol.
// Whether the broker is used at all is a device preference.
type BrokerConfig struct {
	KeepAlive        Duration `yaml:"keep_alive"` // MQTT keepalive / NATS ping interval
	BufferSize       int      `yaml:"buffer_size"`
	ConnectTimeout   Duration `yaml:"connect_timeout"`
	DiscoveryTimeout Duration `yaml:"discovery_timeout"`
	MinRetryBackoff  Duration `yaml:"min_retry_backoff"`
	MaxRetryBackoff  Duration `yaml:"max_retry_backoff"`
	RetryMultiplier  float64  `yaml:"retry_multiplier"`
}

// SchedulerConfig contains loop and job timing
type SchedulerConfig struct {
	Tick            Duration `yaml:"tick"`
	Budget          Duration `yaml:"budget"`
	ClockInterval   Duration `yaml:"clock_interval"`
	DimmingInterval Duration `yaml:"dimming_interval"`
	WeatherInterval Duration `yaml:"weather_interval"`
}

// BacklightConfig selects the backlight driver
type BacklightConfig struct {
	Driver    string `yaml:"driver"`    // "gpio" or "null"
	Pin       string `yaml:"pin"`       // periph pin name, e.g. GPIO18
	Frequency string `yaml:"frequency"` // PWM frequency, e.g. 25kHz
}

// DisplayConfig contains the snapshot framebuffer size
type DisplayConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// GetShutdownTimeout returns the shutdown timeout
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	switch cfg.Backlight.Driver {
	case "gpio", "null":
	default:
		return nil, fmt.Errorf("unknown backlight driver %q", cfg.Backlight.Driver)
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Device.Model == "" {
		cfg.Device.Model = "aurad"
	}
	if cfg.Log.Buffer == 0 {
		cfg.Log.Buffer = 256
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./aura.sqlite"
	}

	// HTTP defaults
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.WebRoot == "" {
		cfg.HTTP.WebRoot = "./web"
	}

	// Weather defaults
	if cfg.Weather.Timeout == 0 {
		cfg.Weather.Timeout = Duration(10 * time.Second)
	}
	if cfg.Weather.FailureThreshold == 0 {
		cfg.Weather.FailureThreshold = 3
	}
	if cfg.Weather.OpenTimeout == 0 {
		cfg.Weather.OpenTimeout = Duration(5 * time.Minute)
	}

	// Geo defaults
	if cfg.Geo.Timeout == 0 {
		cfg.Geo.Timeout = Duration(10 * time.Second)
	}

	cfg.MQTT.applyDefaults(30 * time.Second)
	cfg.NATS.applyDefaults(2 * time.Minute)

	// Scheduler defaults
	if cfg.Scheduler.Tick == 0 {
		cfg.Scheduler.Tick = Duration(50 * time.Millisecond)
	}
	if cfg.Scheduler.Budget == 0 {
		cfg.Scheduler.Budget = Duration(15 * time.Second)
	}
	if cfg.Scheduler.ClockInterval == 0 {
		cfg.Scheduler.ClockInterval = Duration(10 * time.Second)
	}
	if cfg.Scheduler.DimmingInterval == 0 {
		cfg.Scheduler.DimmingInterval = Duration(60 * time.Second)
	}
	if cfg.Scheduler.WeatherInterval == 0 {
		cfg.Scheduler.WeatherInterval = Duration(10 * time.Minute)
	}

	// Backlight defaults
	if cfg.Backlight.Driver == "" {
		cfg.Backlight.Driver = "null"
	}
	if cfg.Backlight.Pin == "" {
		cfg.Backlight.Pin = "GPIO18"
	}
	if cfg.Backlight.Frequency == "" {
		cfg.Backlight.Frequency = "25kHz"
	}

	if cfg.Display.Width == 0 {
		cfg.Display.Width = 480
	}
	if cfg.Display.Height == 0 {
		cfg.Display.Height = 320
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

func (b *BrokerConfig) applyDefaults(keepAlive time.Duration) {
	if b.KeepAlive == 0 {
		b.KeepAlive = Duration(keepAlive)
	}
	if b.BufferSize == 0 {
		b.BufferSize = 32
	}
	if b.ConnectTimeout == 0 {
		b.ConnectTimeout = Duration(10 * time.Second)
	}
	if b.DiscoveryTimeout == 0 {
		b.DiscoveryTimeout = Duration(3 * time.Second)
	}
	if b.MinRetryBackoff == 0 {
		b.MinRetryBackoff = Duration(1 * time.Second)
	}
	if b.MaxRetryBackoff == 0 {
		b.MaxRetryBackoff = Duration(2 * time.Minute)
	}
	if b.RetryMultiplier == 0 {
		b.RetryMultiplier = 2.0
	}
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
