package device

import (
	"context"
	"errors"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/eb2tech/aura/internal/backlight"
	"github.com/eb2tech/aura/internal/broker"
	"github.com/eb2tech/aura/internal/display"
	"github.com/eb2tech/aura/internal/geo"
	"github.com/eb2tech/aura/internal/state"
	"github.com/eb2tech/aura/internal/storage/kv"
)

type fakePoller struct{ polls int }

func (p *fakePoller) Poll(context.Context, *state.State) error {
	p.polls++
	return nil
}

type fakeLocator struct {
	detected *geo.Place
	reversed *geo.Place
	err      error
}

func (l *fakeLocator) Detect(context.Context) (*geo.Place, error) {
	return l.detected, l.err
}

func (l *fakeLocator) Reverse(_ context.Context, lat, lon float64) (*geo.Place, error) {
	if l.err != nil {
		return nil, l.err
	}
	p := *l.reversed
	p.Latitude, p.Longitude = lat, lon
	return &p, nil
}

type fakeTrigger struct{ names []string }

func (f *fakeTrigger) Trigger(name string) { f.names = append(f.names, name) }

type harness struct {
	dev    *Device
	st     *state.State
	screen *display.Screen
	light  *backlight.Null
	poller *fakePoller
	trig   *fakeTrigger
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		st:     state.New("Aura2-TEST", kv.NewMemoryBucket("prefs")),
		screen: display.NewScreen(),
		light:  backlight.NewNull(),
		poller: &fakePoller{},
		trig:   &fakeTrigger{},
	}
	h.dev = New(h.st, h.screen, h.light, h.poller, opts)
	h.dev.trigger = h.trig
	h.dev.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func TestSetBrightness_Clamps(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 0},
		{0, 0},
		{128, 128},
		{300, 255},
	}
	for _, tt := range tests {
		h := newHarness(t, Options{})
		got, err := h.dev.SetBrightness(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want || h.st.Display().Brightness != tt.want || h.light.Level() != tt.want {
			t.Errorf("SetBrightness(%d) = %d, stored %d, level %d; want %d",
				tt.in, got, h.st.Display().Brightness, h.light.Level(), tt.want)
		}
	}
}

func TestDimming_DrivesBacklightOnTransitions(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.st.SetDimEnabled(true); err != nil {
		t.Fatal(err)
	}

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h.dev.CheckDimming(day.Add(23*time.Hour + 30*time.Minute))
	h.dev.CheckDimming(day.Add(23*time.Hour + 31*time.Minute))
	if !h.dev.DimActive() {
		t.Fatal("dim should be active at 23:30")
	}

	// Brightness changes inside the window stay dark.
	if _, err := h.dev.SetBrightness(100); err != nil {
		t.Fatal(err)
	}
	h.dev.CheckDimming(day.Add(12 * time.Hour))

	want := []int{0, 0, 100}
	if got := h.light.Writes(); !reflect.DeepEqual(got, want) {
		t.Errorf("writes = %v, want %v", got, want)
	}
}

func TestDimSettings_Reevaluate(t *testing.T) {
	h := newHarness(t, Options{})
	h.dev.now = func() time.Time { return time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC) }

	if err := h.dev.SetDimEnabled(true); err != nil {
		t.Fatal(err)
	}
	if h.light.Level() != 0 {
		t.Fatalf("level = %d after enabling inside window", h.light.Level())
	}
	if err := h.dev.SetDimStart("23:30"); err != nil {
		t.Fatal(err)
	}
	if h.light.Level() != 255 {
		t.Errorf("level = %d after moving window away, want 255", h.light.Level())
	}
	if err := h.dev.SetDimEnd("925"); !errors.Is(err, state.ErrInvalidTime) {
		t.Errorf("SetDimEnd(925) = %v, want ErrInvalidTime", err)
	}
}

func TestHandleBacklightCommand(t *testing.T) {
	on, off := true, false
	zero, dimmer := 0, 40

	h := newHarness(t, Options{})
	steps := []struct {
		name           string
		cmd            broker.BacklightCommand
		wantOn         bool
		wantBrightness int
		wantLevel      int
	}{
		{"off keeps brightness", broker.BacklightCommand{On: &off}, false, 255, 0},
		{"brightness while off", broker.BacklightCommand{Brightness: &dimmer}, false, 40, 0},
		{"on restores", broker.BacklightCommand{On: &on}, true, 40, 40},
		{"zero brightness", broker.BacklightCommand{Brightness: &zero}, true, 0, 0},
		{"on from zero", broker.BacklightCommand{On: &on}, true, defaultOnBrightness, defaultOnBrightness},
	}
	for _, s := range steps {
		if err := h.dev.HandleBacklightCommand(s.cmd); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if h.st.Runtime().BacklightOn != s.wantOn || h.st.Display().Brightness != s.wantBrightness || h.light.Level() != s.wantLevel {
			t.Errorf("%s: on=%v brightness=%d level=%d, want %v %d %d", s.name,
				h.st.Runtime().BacklightOn, h.st.Display().Brightness, h.light.Level(),
				s.wantOn, s.wantBrightness, s.wantLevel)
		}
	}
}

func TestHandleBacklightCommand_HugeBrightnessSaturates(t *testing.T) {
	topics := broker.TopicsFor("Aura2-1")
	tests := []struct {
		payload string
		want    int
	}{
		{`{"brightness":1e20}`, 255},
		{`{"brightness":-1e20}`, 0},
		{`{"brightness":300.7}`, 255},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			h := newHarness(t, Options{})
			cmd, _, err := broker.ParseCommand(topics, broker.Message{Topic: topics.BrightnessSet, Payload: []byte(tt.payload)})
			if err != nil {
				t.Fatal(err)
			}
			if err := h.dev.HandleBacklightCommand(cmd); err != nil {
				t.Fatal(err)
			}
			if got := h.st.Display().Brightness; got != tt.want {
				t.Errorf("stored brightness = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSetLocation_ReverseAndPoll(t *testing.T) {
	loc := &fakeLocator{reversed: &geo.Place{City: "Austin", Region: "Texas"}}
	h := newHarness(t, Options{Locator: loc, ReverseOnLocation: true})

	if err := h.dev.SetLocation(context.Background(), 30.27, -97.74); err != nil {
		t.Fatal(err)
	}
	if got := h.st.Location(); got.City != "Austin" || got.Latitude != 30.27 {
		t.Errorf("location = %+v", got)
	}
	if got := h.screen.Label(display.Location); got != "Austin, Texas" {
		t.Errorf("location label = %q", got)
	}
	if !reflect.DeepEqual(h.trig.names, []string{JobWeather}) {
		t.Errorf("triggered %v", h.trig.names)
	}

	if err := h.dev.SetLocation(context.Background(), 91, 0); !errors.Is(err, state.ErrInvalidCoordinates) {
		t.Errorf("SetLocation(91,0) = %v", err)
	}
	if h.st.Location().Latitude != 30.27 {
		t.Error("invalid location mutated state")
	}
}

func TestSetLocation_ReverseFailureKeepsPlace(t *testing.T) {
	loc := &fakeLocator{err: geo.ErrNotFound}
	h := newHarness(t, Options{Locator: loc, ReverseOnLocation: true})

	if err := h.dev.SetLocation(context.Background(), 10, 10); err != nil {
		t.Fatal(err)
	}
	if h.st.Location().City != state.DefaultCity {
		t.Errorf("city = %q", h.st.Location().City)
	}
}

func TestDetectLocation(t *testing.T) {
	loc := &fakeLocator{detected: &geo.Place{
		Latitude: 40.71, Longitude: -74.0, City: "New York", Region: "New York",
		TimeZone: "America/New_York", UTCOffset: "-0500",
	}}
	h := newHarness(t, Options{Locator: loc})

	if _, err := h.dev.DetectLocation(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := h.st.Location()
	if got.Latitude != 40.71 || got.City != "New York" || got.TimeZone != "America/New_York" || got.UTCOffset != "-05:00" {
		t.Errorf("location = %+v", got)
	}
	if len(h.trig.names) != 1 {
		t.Errorf("triggered %v", h.trig.names)
	}

	none := newHarness(t, Options{})
	if _, err := none.dev.DetectLocation(context.Background()); !errors.Is(err, ErrGeoUnavailable) {
		t.Errorf("without locator = %v", err)
	}
}

func TestRefreshClock(t *testing.T) {
	h := newHarness(t, Options{})
	now := time.Date(2024, 1, 1, 15, 4, 0, 0, time.UTC)

	h.dev.RefreshClock(now)
	if got := h.screen.Label(display.Clock); got != "3:04pm" {
		t.Errorf("12h clock = %q", got)
	}
	if err := h.dev.SetClockFormat(true); err != nil {
		t.Fatal(err)
	}
	h.dev.RefreshClock(now)
	if got := h.screen.Label(display.Clock); got != "15:04" {
		t.Errorf("24h clock = %q", got)
	}
}

func TestUnitAndModeTriggerPoll(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	if err := h.dev.SetTempUnit(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := h.dev.SetForecastMode(ctx, false); err != nil {
		t.Fatal(err)
	}
	if len(h.trig.names) != 2 {
		t.Errorf("triggered %v, want two weather polls", h.trig.names)
	}

	// Without a loop the poll runs inline.
	h.dev.trigger = nil
	if err := h.dev.SetTempUnit(ctx, true); err != nil {
		t.Fatal(err)
	}
	if h.poller.polls != 1 {
		t.Errorf("polls = %d, want 1", h.poller.polls)
	}
}

func TestID(t *testing.T) {
	if got := ID(" kitchen "); got != "kitchen" {
		t.Errorf("override = %q", got)
	}
	mac, _ := net.ParseMAC("b8:27:eb:01:02:0a")
	if got := idFromMAC(mac); got != "Aura2-B827EB01020A" {
		t.Errorf("idFromMAC = %q", got)
	}
	if got := ID(""); !strings.HasPrefix(got, "Aura2-") {
		t.Errorf("ID = %q", got)
	}
}
