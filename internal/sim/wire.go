package sim

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/srediag/mutexchan/api"
)

// State is the observable state of a simulated primitive.
type State int

const (
	Free State = iota
	Held
	Abandoned
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Held:
		return "held"
	case Abandoned:
		return "abandoned"
	}
	return "unknown"
}

// Transition is a state change of the wire at a point in time.
type Transition struct {
	At    time.Time
	State State
}

// Wire records the state a sending primitive puts on the channel over time
// so that a receiving primitive can sample it later, on its own clock.
// It starts out free.
type Wire struct {
	mu      sync.Mutex
	changes []Transition
}

// NewWire returns an empty, free Wire.
func NewWire() *Wire { return &Wire{} }

func (w *Wire) record(at time.Time, s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.changes = append(w.changes, Transition{At: at, State: s})
}

// StateAt returns the state in force at t. Changes take effect at their instant.
func (w *Wire) StateAt(t time.Time) State {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := sort.Search(len(w.changes), func(i int) bool { return w.changes[i].At.After(t) })
	if i == 0 {
		return Free
	}
	return w.changes[i-1].State
}

// Transitions returns a copy of the recorded changes.
func (w *Wire) Transitions() []Transition {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Transition(nil), w.changes...)
}

// Sender returns the writing end of w, timed by clock.
func (w *Wire) Sender(clock *Clock, name string) api.Primitive {
	return &wireSender{w: w, clock: clock, name: name}
}

// Receiver returns the sampling end of w, timed by clock.
func (w *Wire) Receiver(clock *Clock, name string) *WireReceiver {
	return &WireReceiver{w: w, clock: clock, name: name}
}

type wireSender struct {
	w      *Wire
	clock  *Clock
	name   string
	owned  bool
	closed bool
}

func (s *wireSender) Name() string { return s.name }

func (s *wireSender) Acquire(ctx context.Context, _ api.Timeout) (api.Outcome, error) {
	if s.closed {
		return 0, api.ErrClosed
	}
	if !s.owned {
		s.owned = true
		s.w.record(s.clock.Now(), Held)
	}
	return api.Acquired, nil
}

func (s *wireSender) Release() error {
	if s.closed {
		return api.ErrClosed
	}
	if !s.owned {
		return api.ErrNotOwner
	}
	s.owned = false
	s.w.record(s.clock.Now(), Free)
	return nil
}

func (s *wireSender) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.owned {
		s.w.record(s.clock.Now(), Abandoned)
	}
	return nil
}

// WireReceiver samples a Wire. Its own acquisitions are momentary and are
// not recorded.
type WireReceiver struct {
	w       *Wire
	clock   *Clock
	name    string
	owned   bool
	Samples []Transition
}

func (r *WireReceiver) Name() string { return r.name }

func (r *WireReceiver) Acquire(ctx context.Context, _ api.Timeout) (api.Outcome, error) {
	now := r.clock.Now()
	s := r.w.StateAt(now)
	r.Samples = append(r.Samples, Transition{At: now, State: s})
	switch s {
	case Held:
		return api.Held, nil
	case Abandoned:
		r.owned = true
		return api.Abandoned, nil
	}
	r.owned = true
	return api.Acquired, nil
}

func (r *WireReceiver) Release() error {
	if !r.owned {
		return api.ErrNotOwner
	}
	r.owned = false
	return nil
}

func (r *WireReceiver) Close() error { return nil }
