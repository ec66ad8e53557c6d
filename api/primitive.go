// Package api defines public API contracts for mutexchan.
package api

import (
	"context"
	"fmt"
	"time"
)

// Outcome is the result of an acquire attempt on a Primitive.
type Outcome int

const (
	// Acquired means the caller now owns the primitive, which was free.
	Acquired Outcome = iota + 1
	// Held means another owner kept the primitive for the whole wait.
	Held
	// Abandoned means the caller now owns the primitive, but its previous
	// owner went away without releasing it.
	Abandoned
)

func (o Outcome) String() string {
	switch o {
	case Acquired:
		return "acquired"
	case Held:
		return "held"
	case Abandoned:
		return "abandoned"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Timeout bounds how long Acquire waits for a held primitive.
type Timeout struct {
	d        time.Duration
	infinite bool
}

var (
	// Zero makes Acquire fail immediately if the primitive is held.
	Zero = Timeout{}
	// Infinite makes Acquire wait until ownership is obtained or ctx ends.
	Infinite = Timeout{infinite: true}
)

// Bounded makes Acquire wait at most d.
func Bounded(d time.Duration) Timeout {
	if d < 0 {
		d = 0
	}
	return Timeout{d: d}
}

// IsZero reports whether t never waits.
func (t Timeout) IsZero() bool { return !t.infinite && t.d == 0 }

// IsInfinite reports whether t waits forever.
func (t Timeout) IsInfinite() bool { return t.infinite }

// Duration returns the bounded wait. It is meaningless for Infinite.
func (t Timeout) Duration() time.Duration { return t.d }

func (t Timeout) String() string {
	if t.infinite {
		return "infinite"
	}
	return t.d.String()
}

// Primitive is a named, OS-visible mutual-exclusion object with single-owner
// semantics and abandonment notification.
type Primitive interface {
	// Name returns the channel name the primitive was opened under.
	Name() string
	// Acquire tries to take ownership within timeout.
	Acquire(ctx context.Context, timeout Timeout) (Outcome, error)
	// Release gives up ownership. It fails with ErrNotOwner if the caller
	// does not own the primitive.
	Release() error
	// Close drops the handle. Closing while owning the primitive abandons it,
	// the same way the death of the owning process does.
	Close() error
}

// Opener creates and opens named primitives.
type Opener interface {
	// Create makes a new primitive owned by the caller.
	Create(ctx context.Context, name string) (Primitive, error)
	// Open opens an existing primitive without taking ownership. It returns
	// ErrNotFound if no primitive exists under name.
	Open(ctx context.Context, name string) (Primitive, error)
	// Remove destroys the named object once both ends are done with it.
	Remove(name string) error
}
