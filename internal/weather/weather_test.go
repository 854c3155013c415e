package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eb2tech/aura/internal/display"
	"github.com/eb2tech/aura/internal/state"
	"github.com/eb2tech/aura/internal/storage/kv"
)

const validPayload = `{
  "current": {"time": "2024-01-01T13:00", "temperature_2m": 20.0, "apparent_temperature": 18.0, "is_day": 1, "weather_code": 0},
  "daily": {
    "time": ["2024-01-01","2024-01-02","2024-01-03","2024-01-04","2024-01-05","2024-01-06","2024-01-07"],
    "temperature_2m_min": [10, 11, 12, 13, 14, 15, 16],
    "temperature_2m_max": [20, 21, 22, 23, 24, 25, 100],
    "weather_code": [0, 1, 2, 3, 61, 95, 42]
  },
  "hourly": {
    "time": ["2024-01-01T13:00","2024-01-01T14:00","2024-01-01T15:00","2024-01-01T16:00","2024-01-01T17:00","2024-01-01T18:00","2024-01-01T19:00"],
    "temperature_2m": [20, 19, 18, 17, 16, 15, 0],
    "precipitation_probability": [0, 5, 10, 20, 40, 80, 100],
    "is_day": [1, 1, 1, 1, 1, 0, 0],
    "weather_code": [0, 0, 1, 2, 3, 61, 80]
  }
}`

type countingPublisher struct{ calls int }

func (p *countingPublisher) PublishSensorState() { p.calls++ }

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/forecast" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func parse(t *testing.T, body string) *Sample {
	t.Helper()
	s, err := ParseSample(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ParseSample: %v", err)
	}
	return s
}

func TestDayOfWeek(t *testing.T) {
	tests := []struct {
		y, m, d int
		want    int
	}{
		{2024, 1, 1, 1},   // Monday
		{2024, 2, 29, 4},  // Thursday
		{2024, 3, 1, 5},   // Friday
		{2000, 1, 1, 6},   // Saturday
		{2023, 12, 31, 0}, // Sunday
	}
	for _, tt := range tests {
		if got := DayOfWeek(tt.y, tt.m, tt.d); got != tt.want {
			t.Errorf("DayOfWeek(%d,%d,%d) = %d (%s), want %d", tt.y, tt.m, tt.d, got, Weekdays[got], tt.want)
		}
	}
}

func TestDayOfWeek_OutOfRange(t *testing.T) {
	tests := []struct{ y, m, d int }{
		{2024, 0, 1},
		{2024, 13, 1},
		{2024, -3, 1},
		{2024, 5, 0},
		{2024, 5, 32},
	}
	for _, tt := range tests {
		if got := DayOfWeek(tt.y, tt.m, tt.d); got != -1 {
			t.Errorf("DayOfWeek(%d,%d,%d) = %d, want -1", tt.y, tt.m, tt.d, got)
		}
	}
}

func TestHourLabel(t *testing.T) {
	tests := []struct {
		hour  int
		use24 bool
		want  string
	}{
		{0, false, "12am"},
		{1, false, "1am"},
		{11, false, "11am"},
		{12, false, "Noon"},
		{13, false, "1pm"},
		{23, false, "11pm"},
		{0, true, "00:00"},
		{15, true, "15:00"},
	}
	for _, tt := range tests {
		if got := HourLabel(tt.hour, tt.use24); got != tt.want {
			t.Errorf("HourLabel(%d, %v) = %q, want %q", tt.hour, tt.use24, got, tt.want)
		}
	}
}

func TestIconAndImage(t *testing.T) {
	tests := []struct {
		code  int
		isDay bool
		icon  string
	}{
		{0, true, "icon_sunny"},
		{0, false, "icon_clear_night"},
		{3, false, "icon_cloudy"},
		{48, true, "icon_haze_fog"},
		{81, false, "icon_scat_shwrs_night"},
		{85, true, "icon_snow_showers_snow"},
		{95, false, "icon_iso_scat_ts_night"},
		{99, true, "icon_strong_tstorms"},
		{42, true, "icon_mostly_cloudy_day"},
		{42, false, "icon_mostly_cloudy_night"},
	}
	for _, tt := range tests {
		if got := Icon(tt.code, tt.isDay); got != tt.icon {
			t.Errorf("Icon(%d, %v) = %q, want %q", tt.code, tt.isDay, got, tt.icon)
		}
	}
	if got := Image(2, false); got != "image_partly_cloudy_night" {
		t.Errorf("Image(2, night) = %q", got)
	}
}

func TestBuildView_SevenDayFahrenheit(t *testing.T) {
	v, err := BuildView(parse(t, validPayload), Options{Fahrenheit: true, SevenDay: true})
	if err != nil {
		t.Fatal(err)
	}

	if v.Current != "68°F" || v.FeelsLike != "64°F" {
		t.Errorf("current = %q, feels = %q", v.Current, v.FeelsLike)
	}
	if v.Title != SevenDayTitle {
		t.Errorf("title = %q", v.Title)
	}
	wantLabels := []string{"Today", "Tues", "Wed", "Thurs", "Fri", "Sat", "Sun"}
	for i, want := range wantLabels {
		if v.Rows[i].Label != want {
			t.Errorf("row %d label = %q, want %q", i, v.Rows[i].Label, want)
		}
	}
	// Every temperature in the view goes through the same converter.
	if v.Rows[0].Temp != "68°F" || v.Rows[0].Detail != "50°F" {
		t.Errorf("row 0 = %+v", v.Rows[0])
	}
	if v.Rows[6].Temp != "212°F" || v.Rows[6].Detail != "61°F" {
		t.Errorf("row 6 = %+v", v.Rows[6])
	}
	if v.Rows[6].Icon != "icon_mostly_cloudy_day" {
		t.Errorf("row 6 icon = %q", v.Rows[6].Icon)
	}
}

func TestBuildView_HourlyCelsius(t *testing.T) {
	v, err := BuildView(parse(t, validPayload), Options{Fahrenheit: false, SevenDay: false})
	if err != nil {
		t.Fatal(err)
	}

	if v.Current != "20°C" || v.FeelsLike != "18°C" {
		t.Errorf("current = %q, feels = %q", v.Current, v.FeelsLike)
	}
	if v.Title != HourlyTitle {
		t.Errorf("title = %q", v.Title)
	}
	if v.Rows[0].Label != "Now" || v.Rows[1].Label != "2pm" {
		t.Errorf("labels = %q, %q", v.Rows[0].Label, v.Rows[1].Label)
	}
	if v.Rows[5].Detail != "80%" || v.Rows[5].Icon != "icon_scat_shwrs_night" {
		t.Errorf("row 5 = %+v", v.Rows[5])
	}
	if v.Rows[6].Temp != "0°C" {
		t.Errorf("row 6 temp = %q", v.Rows[6].Temp)
	}
}

func TestBuildView_ShortArraysRejected(t *testing.T) {
	short := strings.Replace(validPayload, `"temperature_2m_max": [20, 21, 22, 23, 24, 25, 100]`, `"temperature_2m_max": [20, 21]`, 1)
	_, err := BuildView(parse(t, short), Options{SevenDay: true})
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("error = %v, want ErrMalformedPayload", err)
	}

	// The hourly branch does not need daily data.
	if _, err := BuildView(parse(t, short), Options{SevenDay: false}); err != nil {
		t.Errorf("hourly view failed on short daily arrays: %v", err)
	}
}

func TestParseSample_Malformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      `{"current":`,
		"no current":    `{"daily":{}}`,
		"missing field": `{"current":{"temperature_2m":1,"is_day":1,"weather_code":0}}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSample(strings.NewReader(body)); !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestClient_QueryParameters(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.RawQuery
		_, _ = w.Write([]byte(validPayload))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second})
	if _, err := c.Fetch(context.Background(), 29.7604, -95.3698); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"latitude=29.7604",
		"longitude=-95.3698",
		"forecast_hours=7",
		"timezone=auto",
		"current=temperature_2m%2Capparent_temperature%2Cis_day%2Cweather_code",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("query %q missing %q", got, want)
		}
	}
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, FailureThreshold: 2, OpenTimeout: time.Hour})
	for i := 0; i < 2; i++ {
		if _, err := c.Fetch(context.Background(), 0, 0); !errors.Is(err, ErrUnexpectedStatus) {
			t.Fatalf("fetch %d error = %v, want ErrUnexpectedStatus", i, err)
		}
	}
	if _, err := c.Fetch(context.Background(), 0, 0); err == nil {
		t.Fatal("expected breaker error")
	}
	if hits != 2 {
		t.Errorf("server hit %d times, want 2 while breaker open", hits)
	}
}

func TestPoller_EndToEnd(t *testing.T) {
	srv := newServer(t, http.StatusOK, validPayload)
	st := state.Load("Aura2-test", kv.NewMemoryBucket("preferences"))
	screen := display.NewScreen()
	pub := &countingPublisher{}

	p := NewPoller(NewClient(ClientConfig{BaseURL: srv.URL}), screen, pub, nil)
	if err := p.Poll(context.Background(), st); err != nil {
		t.Fatal(err)
	}

	if got := screen.Label(display.CurrentTemperature); got != "68°F" {
		t.Errorf("current label = %q, want 68°F", got)
	}
	if got := screen.Label(display.FeelsTemperature); got != "64°F" {
		t.Errorf("feels-like label = %q, want 64°F", got)
	}
	rt := st.Runtime()
	if !rt.HasReading || rt.TemperatureNow != 20 || rt.FeelsLike != 18 {
		t.Errorf("runtime = %+v, want Celsius readings", rt)
	}
	if pub.calls != 1 {
		t.Errorf("publisher called %d times", pub.calls)
	}
}

func TestPoller_FailureKeepsScreen(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "oops"},
		{"bad json", http.StatusOK, "{"},
		{"short daily", http.StatusOK, `{"current":{"temperature_2m":30,"apparent_temperature":30,"is_day":1,"weather_code":0},"daily":{"time":["2024-01-01"]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, tt.body)
			st := state.Load("Aura2-test", kv.NewMemoryBucket("preferences"))
			screen := display.NewScreen()
			screen.SetLabel(display.CurrentTemperature, "stale")
			pub := &countingPublisher{}

			p := NewPoller(NewClient(ClientConfig{BaseURL: srv.URL}), screen, pub, nil)
			if err := p.Poll(context.Background(), st); err == nil {
				t.Fatal("expected poll error")
			}

			if screen.Writes() != 1 {
				t.Errorf("screen written %d times, want only the seed write", screen.Writes())
			}
			if st.Runtime().HasReading {
				t.Error("readings stored from failed poll")
			}
			if pub.calls != 1 {
				t.Errorf("publisher called %d times, want 1 even on failure", pub.calls)
			}
		})
	}
}
