// Package backlight drives the panel backlight.
package backlight

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Driver sets the backlight level, 0 (off) through 255 (full).
type Driver interface {
	SetLevel(level int) error
}

func clamp(level int) int {
	if level < 0 {
		return 0
	}
	if level > 255 {
		return 255
	}
	return level
}

// GPIO drives a PWM-capable pin through periph.
type GPIO struct {
	pin       gpio.PinIO
	frequency physic.Frequency
	mu        sync.Mutex
	level     int
}

// NewGPIO initializes the host drivers and opens pin by name (e.g. "GPIO18").
func NewGPIO(pinName string, frequency physic.Frequency) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return nil, fmt.Errorf("backlight pin %q not found", pinName)
	}
	if frequency == 0 {
		frequency = 1 * physic.KiloHertz
	}

	log.Info().
		Str("pin", pinName).
		Str("frequency", frequency.String()).
		Msg("Backlight GPIO initialized")
	return &GPIO{pin: pin, frequency: frequency, level: -1}, nil
}

// SetLevel writes a duty cycle of level/255. Level 0 drives the pin low.
func (g *GPIO) SetLevel(level int) error {
	level = clamp(level)

	g.mu.Lock()
	defer g.mu.Unlock()

	if level == 0 {
		if err := g.pin.Out(gpio.Low); err != nil {
			return fmt.Errorf("failed to drive backlight low: %w", err)
		}
	} else {
		duty := gpio.Duty(int64(level) * int64(gpio.DutyMax) / 255)
		if err := g.pin.PWM(duty, g.frequency); err != nil {
			return fmt.Errorf("failed to set backlight PWM: %w", err)
		}
	}
	g.level = level
	return nil
}

// Level returns the last level written, or -1 before the first write.
func (g *GPIO) Level() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

// Null records levels without touching hardware.
type Null struct {
	mu     sync.Mutex
	levels []int
}

// NewNull creates a driver for hosts without a panel.
func NewNull() *Null {
	return &Null{}
}

func (n *Null) SetLevel(level int) error {
	level = clamp(level)
	n.mu.Lock()
	n.levels = append(n.levels, level)
	n.mu.Unlock()
	log.Debug().Int("level", level).Msg("Backlight level set")
	return nil
}

// Level returns the last level written, or -1 before the first write.
func (n *Null) Level() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.levels) == 0 {
		return -1
	}
	return n.levels[len(n.levels)-1]
}

// Writes returns every level written so far.
func (n *Null) Writes() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.levels...)
}
