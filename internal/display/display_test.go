package display

import (
	"bytes"
	"image/png"
	"testing"
	"time"
)

func TestClockText(t *testing.T) {
	tests := []struct {
		hour, min int
		use24     bool
		want      string
	}{
		{15, 4, true, "15:04"},
		{15, 4, false, "3:04pm"},
		{0, 30, false, "12:30am"},
		{0, 30, true, "00:30"},
		{12, 0, false, "12:00pm"},
	}

	for _, tt := range tests {
		ts := time.Date(2024, 1, 1, tt.hour, tt.min, 0, 0, time.UTC)
		if got := ClockText(ts, tt.use24); got != tt.want {
			t.Errorf("ClockText(%02d:%02d, %v) = %q, want %q", tt.hour, tt.min, tt.use24, got, tt.want)
		}
	}
}

func TestScreen_SnapshotSorted(t *testing.T) {
	s := NewScreen()
	s.SetLabel(ForecastType, "HOURLY FORECAST")
	s.SetImage(CurrentConditions, "image_sunny")
	s.SetLabel(CurrentTemperature, "68°F")

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d entries, want 3", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1].Widget > snap[i].Widget {
			t.Errorf("snapshot not sorted: %v before %v", snap[i-1].Widget, snap[i].Widget)
		}
	}
	if s.Writes() != 3 {
		t.Errorf("Writes() = %d, want 3", s.Writes())
	}
}

func TestFramebuffer_WritePNG(t *testing.T) {
	s := NewScreen()
	s.SetLabel(Clock, "10:42am")
	fb := NewFramebuffer(s, 200, 40)

	var buf bytes.Buffer
	if err := fb.WritePNG(&buf); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 40 {
		t.Errorf("bounds = %v", b)
	}

	dark := false
	gray := fb.Render()
	for _, p := range gray.Pix {
		if p < 0x80 {
			dark = true
			break
		}
	}
	if !dark {
		t.Error("expected text pixels in render")
	}
}
