// Package dimming turns the backlight off during a daily wall-clock window.
package dimming

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrInvalidClock is returned for anything that is not exactly "HH:MM".
var ErrInvalidClock = errors.New("time must be in HH:MM format")

// Minutes counts minutes since midnight.
type Minutes int

// ParseClock parses a strict five-character "HH:MM" string.
func ParseClock(s string) (Minutes, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, ErrInvalidClock
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrInvalidClock
		}
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[3]-'0')*10 + int(s[4]-'0')
	if hour > 23 || minute > 59 {
		return 0, ErrInvalidClock
	}
	return Minutes(hour*60 + minute), nil
}

// MinutesOf returns the minutes since midnight of t in its own location.
func MinutesOf(t time.Time) Minutes {
	return Minutes(t.Hour()*60 + t.Minute())
}

// String formats m as "HH:MM".
func (m Minutes) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// Window is a half-open daily interval [Start, End). A window whose start
// is after its end wraps midnight.
type Window struct {
	Start Minutes
	End   Minutes
}

// ParseWindow builds a window from two "HH:MM" strings.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("end: %w", err)
	}
	return Window{Start: s, End: e}, nil
}

// Contains reports whether m falls inside the window.
func (w Window) Contains(m Minutes) bool {
	if w.Start > w.End {
		return m >= w.Start || m < w.End
	}
	return w.Start <= m && m < w.End
}

// Output receives backlight levels in 0..255.
type Output interface {
	SetLevel(level int) error
}

// Policy drives Output once per dim-mode transition.
type Policy struct {
	out    Output
	active bool
}

// NewPolicy creates a policy writing to out.
func NewPolicy(out Output) *Policy {
	return &Policy{out: out}
}

// Active reports whether dim mode is currently engaged.
func (p *Policy) Active() bool {
	return p.active
}

// Evaluate decides whether now falls in the window and drives the output on
// a transition only: 0 when entering dim mode, brightness when leaving it.
// A disabled policy is always inactive. If the output write fails the
// hysteresis bit is left alone so the next evaluation retries.
func (p *Policy) Evaluate(now time.Time, w Window, enabled bool, brightness int) (bool, error) {
	want := enabled && w.Contains(MinutesOf(now))
	if want == p.active {
		return false, nil
	}

	level := brightness
	if want {
		level = 0
	}
	if err := p.out.SetLevel(level); err != nil {
		return false, fmt.Errorf("failed to set backlight level %d: %w", level, err)
	}
	p.active = want

	log.Info().
		Bool("dim_active", want).
		Str("start", w.Start.String()).
		Str("end", w.End.String()).
		Int("level", level).
		Msg("Dim mode changed")
	return true, nil
}
