// Package device ties the configuration state to everything that depends
// on it. Every write path (Settings API, broker commands, periodic jobs)
// goes through a Device so the follow-up work is identical.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eb2tech/aura/internal/backlight"
	"github.com/eb2tech/aura/internal/broker"
	"github.com/eb2tech/aura/internal/dimming"
	"github.com/eb2tech/aura/internal/display"
	"github.com/eb2tech/aura/internal/geo"
	"github.com/eb2tech/aura/internal/scheduler"
	"github.com/eb2tech/aura/internal/state"
)

// Job names, in execution order.
const (
	JobBroker  = "broker"
	JobClock   = "clock"
	JobDimming = "dimming"
	JobWeather = "weather"
)

// defaultOnBrightness is used when a broker turns the backlight on while
// the stored brightness is zero.
const defaultOnBrightness = 128

// ErrGeoUnavailable is returned by location lookups when no geo client is configured.
var ErrGeoUnavailable = errors.New("geolocation not configured")

// Poller refreshes the forecast.
type Poller interface {
	Poll(ctx context.Context, st *state.State) error
}

// Locator resolves where the device is.
type Locator interface {
	Detect(ctx context.Context) (*geo.Place, error)
	Reverse(ctx context.Context, lat, lon float64) (*geo.Place, error)
}

// Triggerer schedules a job for the next iteration.
type Triggerer interface {
	Trigger(name string)
}

// Options holds the optional collaborators of a Device.
type Options struct {
	Brokers *broker.Group
	Locator Locator
	// ReverseOnLocation refreshes city and region after a manual location change.
	ReverseOnLocation bool
}

// Device is the fan-out coordinator. All methods must run on the scheduler loop.
type Device struct {
	st        *state.State
	renderer  display.Renderer
	backlight backlight.Driver
	poller    Poller
	dim       *dimming.Policy
	brokers   *broker.Group
	locator   Locator
	reverse   bool
	trigger   Triggerer

	now func() time.Time
}

// New creates a Device and installs it as the brokers' command handler.
func New(st *state.State, renderer display.Renderer, driver backlight.Driver, poller Poller, opts Options) *Device {
	d := &Device{
		st:        st,
		renderer:  renderer,
		backlight: driver,
		poller:    poller,
		dim:       dimming.NewPolicy(driver),
		brokers:   opts.Brokers,
		locator:   opts.Locator,
		reverse:   opts.ReverseOnLocation,
		now:       time.Now,
	}
	d.brokers.SetHandler(d)
	return d
}

// State returns the configuration state.
func (d *Device) State() *state.State { return d.st }

// Brokers returns the broker group, which may be nil.
func (d *Device) Brokers() *broker.Group { return d.brokers }

// DimActive reports whether the dim window currently forces the backlight off.
func (d *Device) DimActive() bool { return d.dim.Active() }

// Intervals are the job periods.
type Intervals struct {
	Clock   time.Duration
	Dimming time.Duration
	Weather time.Duration
}

// Schedule registers the device's jobs on loop and routes follow-up polls through it.
func (d *Device) Schedule(loop *scheduler.Loop, iv Intervals) {
	d.trigger = loop
	loop.Add(scheduler.Job{Name: JobBroker, Immediate: true, Run: func(ctx context.Context, _ time.Time) {
		d.TickBrokers(ctx)
	}})
	loop.Add(scheduler.Job{Name: JobClock, Interval: iv.Clock, Immediate: true, Run: func(_ context.Context, now time.Time) {
		d.RefreshClock(now)
	}})
	loop.Add(scheduler.Job{Name: JobDimming, Interval: iv.Dimming, Immediate: true, Run: func(_ context.Context, now time.Time) {
		d.CheckDimming(now)
	}})
	loop.Add(scheduler.Job{Name: JobWeather, Interval: iv.Weather, Immediate: true, Run: func(ctx context.Context, _ time.Time) {
		d.PollWeather(ctx)
	}})
}

// Start drives the backlight and static labels to the stored settings.
func (d *Device) Start() {
	d.applyBacklight()
	d.renderPlace()
}

// restoreLevel is the level outside the dim window.
func (d *Device) restoreLevel() int {
	if !d.st.Runtime().BacklightOn {
		return 0
	}
	return d.st.Display().Brightness
}

// Level returns the effective backlight level.
func (d *Device) Level() int {
	if d.dim.Active() {
		return 0
	}
	return d.restoreLevel()
}

func (d *Device) applyBacklight() {
	level := d.Level()
	if err := d.backlight.SetLevel(level); err != nil {
		log.Error().Err(err).Int("level", level).Msg("Failed to set backlight")
	}
}

func (d *Device) renderPlace() {
	loc := d.st.Location()
	d.renderer.SetLabel(display.Location, fmt.Sprintf("%s, %s", loc.City, loc.Region))
}

func (d *Device) pollSoon(ctx context.Context) {
	if d.trigger != nil {
		d.trigger.Trigger(JobWeather)
		return
	}
	d.PollWeather(ctx)
}

// RefreshClock renders the clock for now in the configured zone.
func (d *Device) RefreshClock(now time.Time) {
	local := now.In(d.st.Clock())
	d.renderer.SetLabel(display.Clock, display.ClockText(local, d.st.Display().Show24Hour))
}

// CheckDimming re-evaluates the dim window.
func (d *Device) CheckDimming(now time.Time) {
	disp := d.st.Display()
	if _, err := d.dim.Evaluate(now.In(d.st.Clock()), d.st.DimWindow(), disp.DimEnabled, d.restoreLevel()); err != nil {
		log.Error().Err(err).Msg("Dim evaluation failed")
	}
}

// PollWeather runs one forecast cycle. Failures keep the last good screen.
func (d *Device) PollWeather(ctx context.Context) {
	if err := d.poller.Poll(ctx, d.st); err != nil {
		log.Debug().Err(err).Msg("Weather poll skipped")
	}
}

// TickBrokers advances every broker state machine.
func (d *Device) TickBrokers(ctx context.Context) {
	d.brokers.Tick(ctx)
}

// SetBrightness stores b (clamped), reapplies the backlight and publishes the new state.
func (d *Device) SetBrightness(b int) (int, error) {
	stored, err := d.st.SetBrightness(b)
	if err != nil {
		return stored, err
	}
	d.applyBacklight()
	d.brokers.PublishBacklightState()
	return stored, nil
}

// SetLocation stores new coordinates and schedules a weather poll.
func (d *Device) SetLocation(ctx context.Context, lat, lon float64) error {
	if err := d.st.SetLocation(lat, lon); err != nil {
		return err
	}
	if d.reverse && d.locator != nil {
		if _, err := d.ReverseGeocode(ctx, lat, lon); err != nil {
			log.Warn().Err(err).Msg("Reverse geocoding failed, keeping previous place name")
		}
	}
	d.pollSoon(ctx)
	return nil
}

// SetClockFormat switches between 12 and 24 hour clocks.
func (d *Device) SetClockFormat(use24 bool) error {
	if err := d.st.SetShow24Hour(use24); err != nil {
		return err
	}
	d.RefreshClock(d.now())
	return nil
}

// SetTempUnit switches between Fahrenheit and Celsius.
func (d *Device) SetTempUnit(ctx context.Context, fahrenheit bool) error {
	if err := d.st.SetUseFahrenheit(fahrenheit); err != nil {
		return err
	}
	d.pollSoon(ctx)
	return nil
}

// SetForecastMode switches between the seven-day and hourly forecast.
func (d *Device) SetForecastMode(ctx context.Context, sevenDay bool) error {
	if err := d.st.SetSevenDayForecast(sevenDay); err != nil {
		return err
	}
	d.pollSoon(ctx)
	return nil
}

// SetDimEnabled turns the dim window on or off.
func (d *Device) SetDimEnabled(enabled bool) error {
	if err := d.st.SetDimEnabled(enabled); err != nil {
		return err
	}
	d.CheckDimming(d.now())
	return nil
}

// SetDimStart sets the start of the dim window (HH:MM).
func (d *Device) SetDimStart(v string) error {
	if err := d.st.SetDimStart(v); err != nil {
		return err
	}
	d.CheckDimming(d.now())
	return nil
}

// SetDimEnd sets the end of the dim window (HH:MM).
func (d *Device) SetDimEnd(v string) error {
	if err := d.st.SetDimEnd(v); err != nil {
		return err
	}
	d.CheckDimming(d.now())
	return nil
}

// SetUseDST toggles the daylight saving adjustment.
func (d *Device) SetUseDST(v bool) error {
	if err := d.st.SetUseDST(v); err != nil {
		return err
	}
	now := d.now()
	d.RefreshClock(now)
	d.CheckDimming(now)
	return nil
}

// SetBrokerEnabled enables or disables a broker and restarts its cycle.
func (d *Device) SetBrokerEnabled(kind state.BrokerKind, v bool) error {
	return d.brokerChanged(kind, d.st.SetBrokerEnabled(kind, v))
}

// SetBrokerServer sets a broker address; empty means discover it.
func (d *Device) SetBrokerServer(kind state.BrokerKind, v string) error {
	return d.brokerChanged(kind, d.st.SetBrokerServer(kind, v))
}

// SetBrokerUsername sets a broker username.
func (d *Device) SetBrokerUsername(kind state.BrokerKind, v string) error {
	return d.brokerChanged(kind, d.st.SetBrokerUsername(kind, v))
}

// SetBrokerPassword sets a broker password.
func (d *Device) SetBrokerPassword(kind state.BrokerKind, v string) error {
	return d.brokerChanged(kind, d.st.SetBrokerPassword(kind, v))
}

func (d *Device) brokerChanged(kind state.BrokerKind, err error) error {
	if err != nil {
		return err
	}
	d.brokers.Reset(kind)
	return nil
}

// DetectLocation locates the device by IP and adopts the result.
func (d *Device) DetectLocation(ctx context.Context) (*geo.Place, error) {
	if d.locator == nil {
		return nil, ErrGeoUnavailable
	}
	p, err := d.locator.Detect(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.st.SetLocation(p.Latitude, p.Longitude); err != nil {
		return nil, err
	}
	if err := d.st.SetPlace(p.City, p.Region); err != nil {
		return nil, err
	}
	d.renderPlace()

	if p.TimeZone != "" || p.UTCOffset != "" {
		offset := p.UTCOffset
		if offset == "" {
			offset = d.st.Location().UTCOffset
		}
		if err := d.st.SetTimeZone(p.TimeZone, offset); err != nil {
			log.Warn().Err(err).Str("timezone", p.TimeZone).Str("utc_offset", offset).Msg("Ignoring detected time zone")
		} else {
			now := d.now()
			d.RefreshClock(now)
			d.CheckDimming(now)
		}
	}

	d.pollSoon(ctx)
	return p, nil
}

// ReverseGeocode refreshes city and region for the given coordinates.
func (d *Device) ReverseGeocode(ctx context.Context, lat, lon float64) (*geo.Place, error) {
	if d.locator == nil {
		return nil, ErrGeoUnavailable
	}
	if !state.ValidCoordinates(lat, lon) {
		return nil, fmt.Errorf("%w: latitude %v, longitude %v", state.ErrInvalidCoordinates, lat, lon)
	}
	p, err := d.locator.Reverse(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	if err := d.st.SetPlace(p.City, p.Region); err != nil {
		return nil, err
	}
	d.renderPlace()
	log.Info().Str("city", p.City).Str("region", p.Region).Msg("Place name updated")
	return p, nil
}

// HandleBacklightCommand applies a broker light command.
func (d *Device) HandleBacklightCommand(cmd broker.BacklightCommand) error {
	if cmd.Brightness != nil {
		if _, err := d.st.SetBrightness(*cmd.Brightness); err != nil {
			return err
		}
	} else if cmd.On != nil && *cmd.On && d.st.Display().Brightness == 0 {
		if _, err := d.st.SetBrightness(defaultOnBrightness); err != nil {
			return err
		}
	}
	if cmd.On != nil {
		d.st.SetBacklightOn(*cmd.On)
	}

	d.applyBacklight()
	d.brokers.PublishBacklightState()

	log.Info().
		Bool("on", d.st.Runtime().BacklightOn).
		Int("brightness", d.st.Display().Brightness).
		Int("level", d.Level()).
		Msg("Backlight command applied")
	return nil
}
