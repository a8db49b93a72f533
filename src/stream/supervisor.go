package stream

import (
	"fmt"
	"sync"
	"time"

	"trading-console/src/logger"
	"trading-console/src/metrics"
)

// State is the connection state of the event stream
type State int32

const (
	StateDisconnected State = iota
	StateReconnecting
	StateConnected
)

var stateNames = []string{"disconnected", "reconnecting", "connected"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int32(s))
	}
	return stateNames[s]
}

// MarshalText lets State render as its name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ValidTransitions lists the allowed edges. There is no terminal state.
var ValidTransitions = map[State][]State{
	StateDisconnected: {StateReconnecting},
	StateReconnecting: {StateConnected, StateDisconnected},
	StateConnected:    {StateDisconnected},
}

// CanTransition checks whether from -> to is an allowed edge
func CanTransition(from, to State) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Supervisor
// -----------------------------------------------------------------------------

// Watcher is told about every state change
type Watcher func(from, to State)

// Supervisor owns the connection state. All changes go through Transition.
type Supervisor struct {
	Logger *logger.Logger

	mu        sync.Mutex
	state     State
	gen       uint64
	changedAt time.Time
	watchers  map[uint64]Watcher
	nextID    uint64

	// notifyMu keeps watcher notifications in transition order
	notifyMu sync.Mutex
}

// -----------------------------------------------------------------------------

func NewSupervisor(log *logger.Logger) *Supervisor {
	s := &Supervisor{
		Logger:    log,
		state:     StateDisconnected,
		changedAt: time.Now(),
		watchers:  make(map[uint64]Watcher),
	}
	metrics.SetConnectionState(s.state.String(), stateNames)
	return s
}

// -----------------------------------------------------------------------------

// State returns the current state
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// -----------------------------------------------------------------------------

// Since returns when the current state was entered
func (s *Supervisor) Since() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changedAt
}

// -----------------------------------------------------------------------------

// Transition moves to the given state. Moving to the current state is a no-op
// (false, nil); a disallowed edge returns an error and changes nothing.
// Watchers run synchronously before Transition returns and must not call
// Transition, Connect or Disconnect themselves.
func (s *Supervisor) Transition(to State) (bool, error) {
	return s.transition(to, 0, false)
}

// -----------------------------------------------------------------------------

// TransitionAt is Transition on behalf of connection generation gen. It is
// rejected once a newer generation has moved the state, so a late callback
// from a replaced source cannot overwrite its successor's state.
func (s *Supervisor) TransitionAt(gen uint64, to State) (bool, error) {
	return s.transition(to, gen, true)
}

// -----------------------------------------------------------------------------

func (s *Supervisor) transition(to State, gen uint64, keyed bool) (bool, error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if keyed {
		if gen < s.gen {
			s.mu.Unlock()
			return false, fmt.Errorf("stale generation %d (current %d) for transition to %s", gen, s.gen, to)
		}
		s.gen = gen
	}
	from := s.state
	if from == to {
		s.mu.Unlock()
		return false, nil
	}
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return false, fmt.Errorf("invalid connection transition %s -> %s", from, to)
	}
	s.state = to
	s.changedAt = time.Now()
	watchers := make([]Watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	metrics.SetConnectionState(to.String(), stateNames)
	if s.Logger != nil {
		s.Logger.Info("Connection %s -> %s", from, to)
	}

	for _, w := range watchers {
		w(from, to)
	}
	return true, nil
}

// -----------------------------------------------------------------------------

// Watch registers fn for state changes and returns a func that removes it
func (s *Supervisor) Watch(fn Watcher) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}
