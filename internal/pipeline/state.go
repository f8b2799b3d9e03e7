package pipeline

import (
	"fmt"
	"sync"
	"time"
)

// State is a stage of a pipeline run.
type State int

const (
	Idle State = iota
	Connecting
	Listing
	Transferring
	Extracting
	Decoding
	Staging
	Persisting
	Done
	Failed
)

var stateNames = [...]string{
	Idle:         "idle",
	Connecting:   "connecting",
	Listing:      "listing",
	Transferring: "transferring",
	Extracting:   "extracting",
	Decoding:     "decoding",
	Staging:      "staging",
	Persisting:   "persisting",
	Done:         "done",
	Failed:       "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// next is the single forward successor of each non-terminal state.
var next = map[State]State{
	Idle:         Connecting,
	Connecting:   Listing,
	Listing:      Transferring,
	Transferring: Extracting,
	Extracting:   Decoding,
	Decoding:     Staging,
	Staging:      Persisting,
	Persisting:   Done,
}

// CanTransition reports whether from -> to is allowed: one step forward,
// or to Failed from any non-terminal state.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	n, ok := next[from]
	return ok && n == to
}

// Transition records one state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Machine guards the state of one run.
type Machine struct {
	mu      sync.Mutex
	state   State
	history []Transition
	now     func() time.Time
}

// NewMachine returns a machine in Idle.
func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{state: Idle, now: now}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// To moves the machine to s, rejecting transitions the run may not take.
func (m *Machine) To(s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(m.state, s) {
		return fmt.Errorf("invalid transition %s -> %s", m.state, s)
	}
	m.history = append(m.history, Transition{From: m.state, To: s, At: m.now()})
	m.state = s
	return nil
}

// History returns the transitions taken so far.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition(nil), m.history...)
}
