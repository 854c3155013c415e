// Package state holds the device's shared configuration and runtime state.
//
// A State is owned by the scheduler loop goroutine. Jobs, broker callbacks
// and settings handlers all reach it through that loop, so it carries no
// locking of its own. Every setter validates first, then persists the
// changed keys in one bucket write, then updates memory; a failed write
// leaves memory untouched.
package state

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/eb2tech/aura/internal/dimming"
	"github.com/eb2tech/aura/internal/storage/kv"
)

var (
	// ErrInvalidCoordinates is returned when latitude or longitude is out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidTime is returned for a dim window bound that is not HH:MM.
	ErrInvalidTime = errors.New("invalid time format, expected HH:MM")
	// ErrInvalidOffset is returned for a malformed UTC offset.
	ErrInvalidOffset = errors.New("invalid UTC offset")
	// ErrNotConnected is returned when marking discovery on a disconnected broker.
	ErrNotConnected = errors.New("broker not connected")
)

// Location is where the forecast is fetched for.
type Location struct {
	Latitude  float64
	Longitude float64
	City      string
	Region    string
	TimeZone  string
	UTCOffset string
}

// Display holds the user's presentation preferences.
type Display struct {
	UseFahrenheit    bool
	Show24Hour       bool
	SevenDayForecast bool
	Brightness       int
	DimEnabled       bool
	DimStart         string
	DimEnd           string
	UseDST           bool
}

// BrokerSettings is the persisted part of one broker integration.
type BrokerSettings struct {
	Enabled  bool
	Server   string
	Username string
	Password string
}

// BrokerStatus is the runtime part of one broker integration.
// DiscoveryPublished is only ever true while Connected is true.
type BrokerStatus struct {
	ResolvedServer     string
	Connected          bool
	DiscoveryPublished bool
}

// Settings is everything that survives a restart.
type Settings struct {
	Location Location
	Display  Display
	Brokers  map[BrokerKind]BrokerSettings
}

// Runtime is derived state. Temperatures are Celsius regardless of the
// display unit.
type Runtime struct {
	TemperatureNow float64
	FeelsLike      float64
	HasReading     bool
	BacklightOn    bool
}

// State is the single shared configuration/runtime object.
type State struct {
	deviceID string
	bucket   kv.Bucket

	settings Settings
	runtime  Runtime
	brokers  map[BrokerKind]*BrokerStatus
}

// DefaultSettings returns the factory preferences.
func DefaultSettings() Settings {
	s := Settings{
		Location: Location{
			Latitude:  DefaultLatitude,
			Longitude: DefaultLongitude,
			City:      DefaultCity,
			Region:    DefaultRegion,
			UTCOffset: DefaultUTCOffset,
		},
		Display: Display{
			UseFahrenheit:    true,
			SevenDayForecast: true,
			Brightness:       DefaultBrightness,
			DimStart:         DefaultDimStart,
			DimEnd:           DefaultDimEnd,
		},
		Brokers: make(map[BrokerKind]BrokerSettings, len(BrokerKinds)),
	}
	for _, kind := range BrokerKinds {
		s.Brokers[kind] = BrokerSettings{}
	}
	return s
}

// New creates a State with factory defaults without reading the bucket.
func New(deviceID string, bucket kv.Bucket) *State {
	s := &State{
		deviceID: deviceID,
		bucket:   bucket,
		settings: DefaultSettings(),
		runtime:  Runtime{BacklightOn: true},
		brokers:  make(map[BrokerKind]*BrokerStatus, len(BrokerKinds)),
	}
	for _, kind := range BrokerKinds {
		s.brokers[kind] = &BrokerStatus{}
	}
	return s
}

// Load creates a State from defaults merged with persisted overrides.
// Unreadable or invalid persisted values are logged and replaced by defaults.
func Load(deviceID string, bucket kv.Bucket) *State {
	s := New(deviceID, bucket)
	l := &loader{bucket: bucket}

	d := &s.settings.Display
	d.UseFahrenheit = l.bool(KeyUseFahrenheit, d.UseFahrenheit)
	d.Show24Hour = l.bool(KeyShow24Hour, d.Show24Hour)
	d.SevenDayForecast = l.bool(KeyForecastSevenDay, d.SevenDayForecast)
	d.DimEnabled = l.bool(KeyDimEnabled, d.DimEnabled)
	d.UseDST = l.bool(KeyUseDST, d.UseDST)

	if b := l.int(KeyBrightness, d.Brightness); b >= 0 && b <= 255 {
		d.Brightness = b
	} else {
		l.invalid(KeyBrightness, b)
	}
	for key, dst := range map[string]*string{KeyDimStart: &d.DimStart, KeyDimEnd: &d.DimEnd} {
		v := l.string(key, *dst)
		if _, err := dimming.ParseClock(v); err != nil {
			l.invalid(key, v)
			continue
		}
		*dst = v
	}

	loc := &s.settings.Location
	lat := l.float(KeyLatitude, loc.Latitude)
	lon := l.float(KeyLongitude, loc.Longitude)
	if ValidCoordinates(lat, lon) {
		loc.Latitude, loc.Longitude = lat, lon
	} else {
		l.invalid(KeyLatitude+"/"+KeyLongitude, fmt.Sprintf("%v,%v", lat, lon))
	}
	loc.City = l.string(KeyCity, loc.City)
	loc.Region = l.string(KeyRegion, loc.Region)
	loc.TimeZone = l.string(KeyTimeZone, loc.TimeZone)
	if off := l.string(KeyUTCOffset, loc.UTCOffset); validOffset(off) {
		loc.UTCOffset = off
	} else {
		l.invalid(KeyUTCOffset, off)
	}

	for _, kind := range BrokerKinds {
		b := s.settings.Brokers[kind]
		b.Enabled = l.bool(kind.EnabledKey(), b.Enabled)
		b.Server = l.string(kind.ServerKey(), b.Server)
		b.Username = l.string(kind.UserKey(), b.Username)
		b.Password = l.string(kind.PasswordKey(), b.Password)
		s.settings.Brokers[kind] = b
	}

	log.Info().
		Str("device_id", deviceID).
		Float64("latitude", loc.Latitude).
		Float64("longitude", loc.Longitude).
		Int("brightness", d.Brightness).
		Bool("persistent", bucket.IsPersistent()).
		Msg("Configuration state loaded")
	return s
}

type loader struct {
	bucket kv.Bucket
}

func (l *loader) warn(key string, err error) {
	log.Warn().Err(err).Str("key", key).Msg("Ignoring persisted value")
}

func (l *loader) invalid(key string, v any) {
	log.Warn().Str("key", key).Interface("value", v).Msg("Persisted value out of range, using default")
}

func (l *loader) bool(key string, def bool) bool {
	v, err := kv.Bool(l.bucket, key, def)
	if err != nil {
		l.warn(key, err)
	}
	return v
}

func (l *loader) int(key string, def int) int {
	v, err := kv.Int(l.bucket, key, def)
	if err != nil {
		l.warn(key, err)
	}
	return v
}

func (l *loader) float(key string, def float64) float64 {
	v, err := kv.Float(l.bucket, key, def)
	if err != nil {
		l.warn(key, err)
	}
	return v
}

func (l *loader) string(key, def string) string {
	v, err := kv.String(l.bucket, key, def)
	if err != nil {
		l.warn(key, err)
	}
	return v
}

// DeviceID returns the immutable device identifier.
func (s *State) DeviceID() string { return s.deviceID }

// Location returns the current location.
func (s *State) Location() Location { return s.settings.Location }

// Display returns the current display preferences.
func (s *State) Display() Display { return s.settings.Display }

// Broker returns the persisted settings for one broker.
func (s *State) Broker(kind BrokerKind) BrokerSettings { return s.settings.Brokers[kind] }

// BrokerStatus returns the runtime status for one broker.
func (s *State) BrokerStatus(kind BrokerKind) BrokerStatus {
	if st, ok := s.brokers[kind]; ok {
		return *st
	}
	return BrokerStatus{}
}

// Runtime returns the derived runtime state.
func (s *State) Runtime() Runtime { return s.runtime }

// Snapshot is a detached copy of State for read-only consumers.
type Snapshot struct {
	DeviceID string
	Settings Settings
	Runtime  Runtime
	Brokers  map[BrokerKind]BrokerStatus
}

// Snapshot copies the whole state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		DeviceID: s.deviceID,
		Settings: s.settings,
		Runtime:  s.runtime,
		Brokers:  make(map[BrokerKind]BrokerStatus, len(s.brokers)),
	}
	snap.Settings.Brokers = make(map[BrokerKind]BrokerSettings, len(s.settings.Brokers))
	for kind, b := range s.settings.Brokers {
		snap.Settings.Brokers[kind] = b
	}
	for kind, st := range s.brokers {
		snap.Brokers[kind] = *st
	}
	return snap
}

func (s *State) persist(values map[string]any) error {
	if err := s.bucket.StoreAll(values); err != nil {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("failed to persist %s: %w", strings.Join(keys, ","), err)
	}
	return nil
}

// ClampBrightness limits b to 0..255.
func ClampBrightness(b int) int {
	switch {
	case b < 0:
		return 0
	case b > 255:
		return 255
	}
	return b
}

// SetBrightness clamps, persists and applies b. It returns the stored value.
func (s *State) SetBrightness(b int) (int, error) {
	b = ClampBrightness(b)
	if err := s.persist(map[string]any{KeyBrightness: b}); err != nil {
		return s.settings.Display.Brightness, err
	}
	s.settings.Display.Brightness = b
	return b, nil
}

// ValidCoordinates reports whether lat and lon are both in range.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// SetLocation stores latitude and longitude together.
func (s *State) SetLocation(lat, lon float64) error {
	if !ValidCoordinates(lat, lon) {
		return fmt.Errorf("%w: latitude %v, longitude %v", ErrInvalidCoordinates, lat, lon)
	}
	if err := s.persist(map[string]any{KeyLatitude: lat, KeyLongitude: lon}); err != nil {
		return err
	}
	s.settings.Location.Latitude = lat
	s.settings.Location.Longitude = lon
	return nil
}

// SetPlace stores the human-readable place name.
func (s *State) SetPlace(city, region string) error {
	if err := s.persist(map[string]any{KeyCity: city, KeyRegion: region}); err != nil {
		return err
	}
	s.settings.Location.City = city
	s.settings.Location.Region = region
	return nil
}

// SetTimeZone stores the IANA zone name and the fallback UTC offset.
func (s *State) SetTimeZone(zone, offset string) error {
	offset = normalizeOffset(offset)
	if !validOffset(offset) {
		return fmt.Errorf("%w: %q", ErrInvalidOffset, offset)
	}
	if err := s.persist(map[string]any{KeyTimeZone: zone, KeyUTCOffset: offset}); err != nil {
		return err
	}
	s.settings.Location.TimeZone = zone
	s.settings.Location.UTCOffset = offset
	return nil
}

func (s *State) setFlag(key string, dst *bool, v bool) error {
	if err := s.persist(map[string]any{key: v}); err != nil {
		return err
	}
	*dst = v
	return nil
}

// SetShow24Hour selects the 24-hour clock.
func (s *State) SetShow24Hour(v bool) error {
	return s.setFlag(KeyShow24Hour, &s.settings.Display.Show24Hour, v)
}

// SetUseFahrenheit selects the display temperature unit.
func (s *State) SetUseFahrenheit(v bool) error {
	return s.setFlag(KeyUseFahrenheit, &s.settings.Display.UseFahrenheit, v)
}

// SetSevenDayForecast selects the seven-day (true) or hourly forecast.
func (s *State) SetSevenDayForecast(v bool) error {
	return s.setFlag(KeyForecastSevenDay, &s.settings.Display.SevenDayForecast, v)
}

// SetDimEnabled turns the dim window on or off.
func (s *State) SetDimEnabled(v bool) error {
	return s.setFlag(KeyDimEnabled, &s.settings.Display.DimEnabled, v)
}

// SetUseDST adds an hour to a fixed UTC offset.
func (s *State) SetUseDST(v bool) error {
	return s.setFlag(KeyUseDST, &s.settings.Display.UseDST, v)
}

func (s *State) setClock(key string, dst *string, v string) error {
	if _, err := dimming.ParseClock(v); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTime, v)
	}
	if err := s.persist(map[string]any{key: v}); err != nil {
		return err
	}
	*dst = v
	return nil
}

// SetDimStart sets the dim window start ("HH:MM").
func (s *State) SetDimStart(v string) error {
	return s.setClock(KeyDimStart, &s.settings.Display.DimStart, v)
}

// SetDimEnd sets the dim window end ("HH:MM").
func (s *State) SetDimEnd(v string) error {
	return s.setClock(KeyDimEnd, &s.settings.Display.DimEnd, v)
}

// DimWindow returns the parsed dim window.
func (s *State) DimWindow() dimming.Window {
	w, err := dimming.ParseWindow(s.settings.Display.DimStart, s.settings.Display.DimEnd)
	if err != nil {
		// Setters and Load only accept valid clocks.
		w, _ = dimming.ParseWindow(DefaultDimStart, DefaultDimEnd)
	}
	return w
}

func (s *State) updateBroker(kind BrokerKind, key string, value any, apply func(*BrokerSettings)) error {
	if _, ok := s.settings.Brokers[kind]; !ok {
		return fmt.Errorf("unknown broker %q", kind)
	}
	if err := s.persist(map[string]any{key: value}); err != nil {
		return err
	}
	b := s.settings.Brokers[kind]
	apply(&b)
	s.settings.Brokers[kind] = b
	return nil
}

// SetBrokerEnabled turns a broker integration on or off.
func (s *State) SetBrokerEnabled(kind BrokerKind, v bool) error {
	return s.updateBroker(kind, kind.EnabledKey(), v, func(b *BrokerSettings) { b.Enabled = v })
}

// SetBrokerServer sets the configured broker address. Empty means discover.
func (s *State) SetBrokerServer(kind BrokerKind, v string) error {
	v = strings.TrimSpace(v)
	return s.updateBroker(kind, kind.ServerKey(), v, func(b *BrokerSettings) { b.Server = v })
}

// SetBrokerUsername sets the broker username.
func (s *State) SetBrokerUsername(kind BrokerKind, v string) error {
	return s.updateBroker(kind, kind.UserKey(), v, func(b *BrokerSettings) { b.Username = v })
}

// SetBrokerPassword sets the broker password.
func (s *State) SetBrokerPassword(kind BrokerKind, v string) error {
	return s.updateBroker(kind, kind.PasswordKey(), v, func(b *BrokerSettings) { b.Password = v })
}

// BrokerAddress returns the configured server, or the discovered one.
func (s *State) BrokerAddress(kind BrokerKind) string {
	if server := s.settings.Brokers[kind].Server; server != "" {
		return server
	}
	return s.status(kind).ResolvedServer
}

func (s *State) status(kind BrokerKind) *BrokerStatus {
	st, ok := s.brokers[kind]
	if !ok {
		st = &BrokerStatus{}
		s.brokers[kind] = st
	}
	return st
}

// SetResolvedServer records an address found by service discovery.
func (s *State) SetResolvedServer(kind BrokerKind, addr string) {
	s.status(kind).ResolvedServer = addr
}

// MarkBrokerConnected starts a new connection epoch.
func (s *State) MarkBrokerConnected(kind BrokerKind) {
	st := s.status(kind)
	st.Connected = true
	st.DiscoveryPublished = false
}

// ClearBrokerConnection drops Connected and DiscoveryPublished together.
// With forgetResolved the discovered address is dropped too.
func (s *State) ClearBrokerConnection(kind BrokerKind, forgetResolved bool) {
	st := s.status(kind)
	st.Connected = false
	st.DiscoveryPublished = false
	if forgetResolved {
		st.ResolvedServer = ""
	}
}

// MarkDiscoveryPublished records that this epoch's descriptors are out.
func (s *State) MarkDiscoveryPublished(kind BrokerKind) error {
	st := s.status(kind)
	if !st.Connected {
		return ErrNotConnected
	}
	st.DiscoveryPublished = true
	return nil
}

// SetReadings stores the latest current and feels-like temperatures in Celsius.
func (s *State) SetReadings(tempC, feelsLikeC float64) {
	s.runtime.TemperatureNow = tempC
	s.runtime.FeelsLike = feelsLikeC
	s.runtime.HasReading = true
}

// SetBacklightOn records whether a broker command switched the backlight on.
func (s *State) SetBacklightOn(on bool) {
	s.runtime.BacklightOn = on
}
