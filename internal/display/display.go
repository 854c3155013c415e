// Package display names the screen widgets the core writes to and provides
// an in-memory screen plus a framebuffer snapshot of it.
package display

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Widget identifies a label or image on the screen.
type Widget string

const (
	CurrentTemperature Widget = "current_temperature_label"
	FeelsTemperature   Widget = "feels_temperature_label"
	CurrentConditions  Widget = "current_conditions_image"
	ForecastType       Widget = "forecast_type_label"
	Clock              Widget = "clock_label"
	Location           Widget = "location_label"
)

// ForecastRows is the number of forecast rows on the screen.
const ForecastRows = 7

// ForecastLabel is the day/hour caption of row i.
func ForecastLabel(i int) Widget { return Widget(fmt.Sprintf("forecast_datetime_label_%d", i)) }

// ForecastTemp is the main temperature of row i.
func ForecastTemp(i int) Widget { return Widget(fmt.Sprintf("forecast_temp_label_%d", i)) }

// ForecastDetail is the low temperature or precipitation chance of row i.
func ForecastDetail(i int) Widget { return Widget(fmt.Sprintf("forecast_precip_low_label_%d", i)) }

// ForecastIcon is the condition icon of row i.
func ForecastIcon(i int) Widget { return Widget(fmt.Sprintf("forecast_visibility_image_%d", i)) }

// Renderer is the GUI toolkit as seen by the core.
type Renderer interface {
	SetLabel(w Widget, text string)
	SetImage(w Widget, src string)
}

// Screen is a Renderer that keeps the latest value of every widget.
type Screen struct {
	mu     sync.RWMutex
	labels map[Widget]string
	images map[Widget]string
	writes int
}

// NewScreen creates an empty screen.
func NewScreen() *Screen {
	return &Screen{
		labels: make(map[Widget]string),
		images: make(map[Widget]string),
	}
}

func (s *Screen) SetLabel(w Widget, text string) {
	s.mu.Lock()
	s.labels[w] = text
	s.writes++
	s.mu.Unlock()
}

func (s *Screen) SetImage(w Widget, src string) {
	s.mu.Lock()
	s.images[w] = src
	s.writes++
	s.mu.Unlock()
}

// Label returns the text of w.
func (s *Screen) Label(w Widget) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.labels[w]
}

// Image returns the image source of w.
func (s *Screen) Image(w Widget) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.images[w]
}

// Writes counts every SetLabel/SetImage call so far.
func (s *Screen) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Entry is one widget value in a snapshot.
type Entry struct {
	Widget Widget
	Value  string
	Image  bool
}

// Snapshot returns all widget values sorted by widget name.
func (s *Screen) Snapshot() []Entry {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.labels)+len(s.images))
	for w, v := range s.labels {
		entries = append(entries, Entry{Widget: w, Value: v})
	}
	for w, v := range s.images {
		entries = append(entries, Entry{Widget: w, Value: v, Image: true})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Widget < entries[j].Widget })
	return entries
}

// ClockText formats t for the clock label: "15:04" or "3:04pm".
func ClockText(t time.Time, use24 bool) string {
	if use24 {
		return t.Format("15:04")
	}
	return t.Format("3:04pm")
}
