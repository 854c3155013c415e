package broker

import (
	"context"

	"github.com/eb2tech/aura/internal/state"
)

// Group fans ticks and publications out to every configured machine.
// A nil or empty Group is valid and does nothing.
type Group struct {
	machines []*Machine
}

// NewGroup creates a group ticking machines in the given order.
func NewGroup(machines ...*Machine) *Group {
	return &Group{machines: machines}
}

// Machine returns the machine for kind, or nil.
func (g *Group) Machine(kind state.BrokerKind) *Machine {
	if g == nil {
		return nil
	}
	for _, m := range g.machines {
		if m.Kind() == kind {
			return m
		}
	}
	return nil
}

// SetHandler installs the command handler on every machine.
func (g *Group) SetHandler(h CommandHandler) {
	if g == nil {
		return
	}
	for _, m := range g.machines {
		m.SetHandler(h)
	}
}

// Tick advances every machine.
func (g *Group) Tick(ctx context.Context) {
	if g == nil {
		return
	}
	for _, m := range g.machines {
		m.Tick(ctx)
	}
}

// Reset restarts discovery and connection for one broker.
func (g *Group) Reset(kind state.BrokerKind) {
	if m := g.Machine(kind); m != nil {
		m.Reset()
	}
}

// PublishSensorState publishes the readings on every connected broker.
func (g *Group) PublishSensorState() {
	if g == nil {
		return
	}
	for _, m := range g.machines {
		m.PublishSensorState()
	}
}

// PublishBacklightState publishes the backlight state on every connected broker.
func (g *Group) PublishBacklightState() {
	if g == nil {
		return
	}
	for _, m := range g.machines {
		m.PublishBacklightState()
	}
}

// Phases reports every machine's phase.
func (g *Group) Phases() map[state.BrokerKind]Phase {
	out := make(map[state.BrokerKind]Phase)
	if g == nil {
		return out
	}
	for _, m := range g.machines {
		out[m.Kind()] = m.Phase()
	}
	return out
}

// Close disconnects every machine.
func (g *Group) Close() {
	if g == nil {
		return
	}
	for _, m := range g.machines {
		m.Close()
	}
}
