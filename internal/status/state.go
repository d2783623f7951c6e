// Package status tracks the push channel's connection lifecycle.
package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/textsync/internal/bus"
)

// State represents a connection state.
type State string

const (
	Idle       State = "idle"
	Connecting State = "connecting"
	Open       State = "open"
	Closing    State = "closing"
	Closed     State = "closed"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:       {Connecting, Closed},
	Connecting: {Open, Closing, Closed},
	Open:       {Closing, Closed},
	Closing:    {Closed},
	Closed:     {Connecting},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.ChannelStateChanged, Change{From: from, To: to})
	}
	return nil
}

// Change is the payload for state change events.
type Change struct {
	From State
	To   State
}
