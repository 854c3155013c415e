package dimming

import (
	"errors"
	"testing"
	"time"
)

type recordingOutput struct {
	levels []int
	err    error
}

func (o *recordingOutput) SetLevel(level int) error {
	if o.err != nil {
		return o.err
	}
	o.levels = append(o.levels, level)
	return nil
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 6, 1, hour, minute, 0, 0, time.UTC)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Minutes
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:25", 565, false},
		{"23:59", 1439, false},
		{"925", 0, true},
		{"9:25", 0, true},
		{"09-25", 0, true},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
		{"09:255", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidClock) {
					t.Errorf("ParseClock(%q) error = %v, want ErrInvalidClock", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestWindow_Contains(t *testing.T) {
	overnight, _ := ParseWindow("22:00", "06:00")
	daytime, _ := ParseWindow("08:00", "18:00")

	tests := []struct {
		name   string
		window Window
		at     time.Time
		want   bool
	}{
		{"wrap late evening", overnight, at(23, 30), true},
		{"wrap early morning", overnight, at(2, 0), true},
		{"wrap noon", overnight, at(12, 0), false},
		{"wrap start inclusive", overnight, at(22, 0), true},
		{"wrap end exclusive", overnight, at(6, 0), false},
		{"day morning", daytime, at(9, 0), true},
		{"day evening", daytime, at(19, 0), false},
		{"day end exclusive", daytime, at(18, 0), false},
		{"empty window", Window{Start: 600, End: 600}, at(10, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Contains(MinutesOf(tt.at)); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", MinutesOf(tt.at), got, tt.want)
			}
		})
	}
}

func TestPolicy_Hysteresis(t *testing.T) {
	out := &recordingOutput{}
	p := NewPolicy(out)
	w, _ := ParseWindow("22:00", "06:00")

	changed, err := p.Evaluate(at(23, 30), w, true, 200)
	if err != nil || !changed {
		t.Fatalf("first evaluate = %v, %v; want changed", changed, err)
	}
	changed, err = p.Evaluate(at(23, 30), w, true, 200)
	if err != nil || changed {
		t.Fatalf("second evaluate = %v, %v; want unchanged", changed, err)
	}
	if len(out.levels) != 1 || out.levels[0] != 0 {
		t.Fatalf("levels = %v, want [0]", out.levels)
	}
	if !p.Active() {
		t.Error("policy should be active")
	}

	if _, err := p.Evaluate(at(7, 0), w, true, 200); err != nil {
		t.Fatal(err)
	}
	if got := out.levels[len(out.levels)-1]; got != 200 {
		t.Errorf("leaving dim mode wrote %d, want 200", got)
	}
}

func TestPolicy_DisableRestoresOnce(t *testing.T) {
	out := &recordingOutput{}
	p := NewPolicy(out)
	w, _ := ParseWindow("22:00", "06:00")

	_, _ = p.Evaluate(at(23, 0), w, true, 180)
	_, _ = p.Evaluate(at(23, 1), w, false, 180)
	_, _ = p.Evaluate(at(23, 2), w, false, 180)

	want := []int{0, 180}
	if len(out.levels) != len(want) {
		t.Fatalf("levels = %v, want %v", out.levels, want)
	}
	for i := range want {
		if out.levels[i] != want[i] {
			t.Errorf("levels[%d] = %d, want %d", i, out.levels[i], want[i])
		}
	}
	if p.Active() {
		t.Error("disabled policy must be inactive")
	}
}

func TestPolicy_DisabledNeverWrites(t *testing.T) {
	out := &recordingOutput{}
	p := NewPolicy(out)
	w, _ := ParseWindow("22:00", "06:00")

	for _, tm := range []time.Time{at(23, 0), at(2, 0), at(12, 0)} {
		if _, err := p.Evaluate(tm, w, false, 255); err != nil {
			t.Fatal(err)
		}
	}
	if len(out.levels) != 0 {
		t.Errorf("disabled policy wrote %v", out.levels)
	}
}

func TestPolicy_FailedWriteRetries(t *testing.T) {
	out := &recordingOutput{err: errors.New("pwm busy")}
	p := NewPolicy(out)
	w, _ := ParseWindow("22:00", "06:00")

	if _, err := p.Evaluate(at(23, 0), w, true, 255); err == nil {
		t.Fatal("expected error from failing output")
	}
	if p.Active() {
		t.Fatal("failed transition must not flip the hysteresis bit")
	}

	out.err = nil
	changed, err := p.Evaluate(at(23, 0), w, true, 255)
	if err != nil || !changed {
		t.Fatalf("retry = %v, %v; want changed", changed, err)
	}
}
