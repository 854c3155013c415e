package api

import (
	"context"
	"errors"
	"html"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/eb2tech/aura/internal/state"
)

var placeholder = regexp.MustCompile(`%([A-Z0-9_]+)%`)

func checked(v bool) string {
	if v {
		return "checked"
	}
	return ""
}

// templateValues maps index.html placeholders to accessors over a snapshot.
// Unknown placeholders render empty.
var templateValues = map[string]func(s *state.Snapshot) string{
	"BRIGHTNESS_VALUE":    func(s *state.Snapshot) string { return strconv.Itoa(s.Settings.Display.Brightness) },
	"CURRENT_LAT":         func(s *state.Snapshot) string { return strconv.FormatFloat(s.Settings.Location.Latitude, 'f', 6, 64) },
	"CURRENT_LON":         func(s *state.Snapshot) string { return strconv.FormatFloat(s.Settings.Location.Longitude, 'f', 6, 64) },
	"WEATHER_CITY":        func(s *state.Snapshot) string { return s.Settings.Location.City },
	"WEATHER_REGION":      func(s *state.Snapshot) string { return s.Settings.Location.Region },
	"CLOCK_24H_CHECKED":   func(s *state.Snapshot) string { return checked(s.Settings.Display.Show24Hour) },
	"TEMP_F_CHECKED":      func(s *state.Snapshot) string { return checked(s.Settings.Display.UseFahrenheit) },
	"DIM_AT_TIME_CHECKED": func(s *state.Snapshot) string { return checked(s.Settings.Display.DimEnabled) },
	"DIM_START_TIME":      func(s *state.Snapshot) string { return s.Settings.Display.DimStart },
	"DIM_END_TIME":        func(s *state.Snapshot) string { return s.Settings.Display.DimEnd },
	"DEVICE_ID":           func(s *state.Snapshot) string { return s.DeviceID },
	"MQTT_CHECKED":        func(s *state.Snapshot) string { return checked(s.Settings.Brokers[state.MQTT].Enabled) },
	"NATS_CHECKED":        func(s *state.Snapshot) string { return checked(s.Settings.Brokers[state.NATS].Enabled) },
}

// renderTemplate substitutes %KEY% placeholders in page.
func renderTemplate(page []byte, snap *state.Snapshot) []byte {
	return placeholder.ReplaceAllFunc(page, func(m []byte) []byte {
		key := string(m[1 : len(m)-1])
		if fn, ok := templateValues[key]; ok {
			return []byte(html.EscapeString(fn(snap)))
		}
		return nil
	})
}

func (h *Handler) snapshot(ctx context.Context) (state.Snapshot, error) {
	var snap state.Snapshot
	err := h.loop.Do(ctx, func(context.Context) error {
		snap = h.dev.State().Snapshot()
		return nil
	})
	return snap, err
}

func readOnly(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	writeError(w, &Error{Status: http.StatusMethodNotAllowed, Message: "Method not allowed"})
	return false
}

func (h *Handler) serveIndex(w http.ResponseWriter, r *http.Request) {
	if !readOnly(w, r) {
		return
	}
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.FileServer(http.Dir(h.opts.WebRoot)).ServeHTTP(w, r)
		return
	}

	page, err := os.ReadFile(filepath.Join(h.opts.WebRoot, "index.html"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Error().Err(err).Msg("Failed to read index.html")
		}
		http.Error(w, "index.html not found", http.StatusNotFound)
		return
	}

	snap, err := h.snapshot(r.Context())
	if err != nil {
		writeError(w, toError(err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(renderTemplate(page, &snap))
}

type brokerView struct {
	Enabled            bool   `json:"enabled"`
	Server             string `json:"server"`
	Username           string `json:"username"`
	PasswordSet        bool   `json:"password_set"`
	ResolvedServer     string `json:"resolved_server,omitempty"`
	Connected          bool   `json:"connected"`
	DiscoveryPublished bool   `json:"discovery_published"`
}

type settingsView struct {
	DeviceID         string                `json:"device_id"`
	Latitude         float64               `json:"latitude"`
	Longitude        float64               `json:"longitude"`
	City             string                `json:"city"`
	Region           string                `json:"region"`
	TimeZone         string                `json:"time_zone"`
	UTCOffset        string                `json:"utc_offset"`
	UseDST           bool                  `json:"use_dst"`
	Brightness       int                   `json:"brightness"`
	UseFahrenheit    bool                  `json:"use_fahrenheit"`
	Show24Hour       bool                  `json:"show_24hour"`
	SevenDayForecast bool                  `json:"display_7day"`
	DimEnabled       bool                  `json:"dim_at_time"`
	DimStart         string                `json:"dim_start_time"`
	DimEnd           string                `json:"dim_end_time"`
	BacklightOn      bool                  `json:"backlight_on"`
	TemperatureC     *float64              `json:"temperature_c,omitempty"`
	FeelsLikeC       *float64              `json:"feels_like_c,omitempty"`
	Brokers          map[string]brokerView `json:"brokers"`
}

func newSettingsView(s state.Snapshot) settingsView {
	loc, disp := s.Settings.Location, s.Settings.Display
	v := settingsView{
		DeviceID:         s.DeviceID,
		Latitude:         loc.Latitude,
		Longitude:        loc.Longitude,
		City:             loc.City,
		Region:           loc.Region,
		TimeZone:         loc.TimeZone,
		UTCOffset:        loc.UTCOffset,
		UseDST:           disp.UseDST,
		Brightness:       disp.Brightness,
		UseFahrenheit:    disp.UseFahrenheit,
		Show24Hour:       disp.Show24Hour,
		SevenDayForecast: disp.SevenDayForecast,
		DimEnabled:       disp.DimEnabled,
		DimStart:         disp.DimStart,
		DimEnd:           disp.DimEnd,
		BacklightOn:      s.Runtime.BacklightOn,
		Brokers:          make(map[string]brokerView, len(s.Settings.Brokers)),
	}
	if s.Runtime.HasReading {
		temp, feels := s.Runtime.TemperatureNow, s.Runtime.FeelsLike
		v.TemperatureC, v.FeelsLikeC = &temp, &feels
	}
	for kind, b := range s.Settings.Brokers {
		st := s.Brokers[kind]
		v.Brokers[string(kind)] = brokerView{
			Enabled:            b.Enabled,
			Server:             b.Server,
			Username:           b.Username,
			PasswordSet:        b.Password != "",
			ResolvedServer:     st.ResolvedServer,
			Connected:          st.Connected,
			DiscoveryPublished: st.DiscoveryPublished,
		}
	}
	return v
}

func (h *Handler) serveSettings(w http.ResponseWriter, r *http.Request) {
	if !readOnly(w, r) {
		return
	}
	snap, err := h.snapshot(r.Context())
	if err != nil {
		writeError(w, toError(err))
		return
	}
	writeJSON(w, http.StatusOK, newSettingsView(snap))
}

func (h *Handler) serveScreen(w http.ResponseWriter, r *http.Request) {
	if !readOnly(w, r) {
		return
	}
	if h.opts.Framebuffer == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.opts.Framebuffer.WritePNG(w); err != nil {
		log.Error().Err(err).Msg("Failed to encode screen snapshot")
	}
}
