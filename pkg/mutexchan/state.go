package mutexchan

import (
	"fmt"
	"sync/atomic"
)

// State is the phase of a Session.
type State int32

const (
	StateIdle State = iota
	StateRendezvous
	StateStreaming
	StateDone
	StateAborted
)

var stateNames = [...]string{"idle", "rendezvous", "streaming", "done", "aborted"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateDone || s == StateAborted }

var transitions = map[State][]State{
	StateIdle:       {StateRendezvous},
	StateRendezvous: {StateStreaming, StateAborted},
	StateStreaming:  {StateDone, StateAborted},
}

type stateMachine struct {
	v        atomic.Int32
	onChange func(State)
}

func (m *stateMachine) load() State { return State(m.v.Load()) }

func (m *stateMachine) advance(to State) error {
	from := m.load()
	for _, next := range transitions[from] {
		if next == to && m.v.CompareAndSwap(int32(from), int32(to)) {
			if m.onChange != nil {
				m.onChange(to)
			}
			return nil
		}
	}
	if from == StateIdle {
		return fmt.Errorf("invalid transition %v -> %v", from, to)
	}
	return fmt.Errorf("%w: %v -> %v", ErrSessionUsed, from, to)
}
