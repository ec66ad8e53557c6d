package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/srediag/mutexchan/api"
)

// Call is one recorded primitive operation.
type Call struct {
	Op      string
	Timeout api.Timeout
	At      time.Time
}

// Script is a primitive whose acquire outcomes are given up front. Once the
// script runs out every acquire succeeds.
type Script struct {
	mu       sync.Mutex
	name     string
	clock    *Clock
	outcomes []api.Outcome
	owned    bool
	closed   bool
	calls    []Call
}

// NewScript returns a Script named name, timestamping calls with clock.
func NewScript(name string, clock *Clock, outcomes ...api.Outcome) *Script {
	return &Script{name: name, clock: clock, outcomes: outcomes}
}

// Own marks the script as owned, as a freshly created primitive is.
func (s *Script) Own() *Script {
	s.owned = true
	return s
}

func (s *Script) record(op string, t api.Timeout) {
	var at time.Time
	if s.clock != nil {
		at = s.clock.Now()
	}
	s.calls = append(s.calls, Call{Op: op, Timeout: t, At: at})
}

func (s *Script) Name() string { return s.name }

func (s *Script) Acquire(ctx context.Context, t api.Timeout) (api.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, api.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.record("acquire", t)
	out := api.Acquired
	if len(s.outcomes) > 0 {
		out, s.outcomes = s.outcomes[0], s.outcomes[1:]
	}
	if out != api.Held {
		s.owned = true
	}
	return out, nil
}

func (s *Script) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return api.ErrClosed
	}
	if !s.owned {
		return api.ErrNotOwner
	}
	s.record("release", api.Zero)
	s.owned = false
	return nil
}

func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.record("close", api.Zero)
		s.closed = true
	}
	return nil
}

// Calls returns the recorded operations.
func (s *Script) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Ops returns the recorded operation names.
func (s *Script) Ops() []string {
	calls := s.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Owned reports whether the script is currently owned.
func (s *Script) Owned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owned
}

// Opener hands out one primitive for Create and Open.
type Opener struct {
	mu sync.Mutex
	// Prim is returned by Create and Open.
	Prim api.Primitive
	// CreateErr, if set, fails Create.
	CreateErr error
	// Missing makes the first Missing calls to Open report api.ErrNotFound.
	Missing int

	opens   int
	removed []string
}

func (o *Opener) Create(ctx context.Context, name string) (api.Primitive, error) {
	if o.CreateErr != nil {
		return nil, o.CreateErr
	}
	return o.Prim, nil
}

func (o *Opener) Open(ctx context.Context, name string) (api.Primitive, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.opens <= o.Missing || o.Prim == nil {
		return nil, fmt.Errorf("%w: %s", api.ErrNotFound, name)
	}
	return o.Prim, nil
}

func (o *Opener) Remove(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removed = append(o.removed, name)
	return nil
}

// Opens returns the number of Open calls.
func (o *Opener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// Removed returns the names passed to Remove.
func (o *Opener) Removed() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.removed...)
}
