package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/fitlive/livechat/internal/bus"
)

// State represents a connection lifecycle state.
type State string

const (
	Idle       State = "IDLE"
	Connecting State = "CONNECTING"
	Open       State = "OPEN"
	Closed     State = "CLOSED"
	Failed     State = "FAILED"
	Stopped    State = "STOPPED"
)

// validTransitions defines allowed state transitions. CLOSED means the socket
// dropped and a retry is pending.
var validTransitions = map[State][]State{
	Idle:       {Connecting, Stopped},
	Connecting: {Open, Closed, Failed, Stopped},
	Open:       {Closed, Stopped},
	Closed:     {Connecting, Failed, Stopped},
	Failed:     {Connecting, Stopped},
	Stopped:    {Connecting},
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
// The change event is published after the lock is released so handlers may
// read the machine.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStateChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// Terminal reports whether s ends automatic reconnection.
func (s State) Terminal() bool {
	return s == Failed || s == Stopped
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
