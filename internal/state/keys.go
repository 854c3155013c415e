package state

// Persisted preference keys.
const (
	KeyForecastSevenDay = "display_7day"
	KeyBrightness       = "brightness"
	KeyUseFahrenheit    = "use_fahrenheit"
	KeyLatitude         = "weather_lat"
	KeyLongitude        = "weather_lon"
	KeyCity             = "weather_city"
	KeyRegion           = "weather_region"
	KeyShow24Hour       = "show_24hour"
	KeyDimEnabled       = "dim_at_time"
	KeyDimStart         = "dim_start_time"
	KeyDimEnd           = "dim_end_time"
	KeyUseDST           = "use_dst"
	KeyTimeZone         = "time_zone"
	KeyUTCOffset        = "utc_offset"
)

// BrokerKind names one of the broker integrations.
type BrokerKind string

const (
	MQTT BrokerKind = "mqtt"
	NATS BrokerKind = "nats"
)

// BrokerKinds lists every broker integration in tick order.
var BrokerKinds = []BrokerKind{MQTT, NATS}

// EnabledKey is "use_mqtt" / "use_nats".
func (k BrokerKind) EnabledKey() string { return "use_" + string(k) }

// ServerKey is "mqtt_server" / "nats_server".
func (k BrokerKind) ServerKey() string { return string(k) + "_server" }

// UserKey is "mqtt_user" / "nats_user".
func (k BrokerKind) UserKey() string { return string(k) + "_user" }

// PasswordKey is "mqtt_password" / "nats_password".
func (k BrokerKind) PasswordKey() string { return string(k) + "_password" }

// Defaults
const (
	DefaultBrightness = 255
	DefaultLatitude   = 29.7604
	DefaultLongitude  = -95.3698
	DefaultCity       = "Houston"
	DefaultRegion     = "Texas"
	DefaultDimStart   = "22:00"
	DefaultDimEnd     = "06:00"
	DefaultUTCOffset  = "+00:00"
)
