package mutexchan

import (
	"context"
	"time"
)

// Clock is the time source of both roles.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NextSecondBoundary returns the first whole second strictly after t.
func NextSecondBoundary(t time.Time) time.Time {
	return t.Truncate(time.Second).Add(time.Second)
}

// SenderEpoch is when the Sender starts transmitting after a rendezvous at now.
func SenderEpoch(now time.Time) time.Time {
	return NextSecondBoundary(now).Add(time.Second)
}

// ReceiverEpoch is half a slot before SenderEpoch, so that every sample lands
// in the middle of a sender slot.
func ReceiverEpoch(now time.Time, slot time.Duration) time.Time {
	return SenderEpoch(now).Add(-slot / 2)
}

// waitUntil sleeps in steps of at most step until c reaches deadline.
func waitUntil(ctx context.Context, c Clock, deadline time.Time, step time.Duration) error {
	for {
		d := deadline.Sub(c.Now())
		if d <= 0 {
			return ctx.Err()
		}
		if d > step {
			d = step
		}
		if err := c.Sleep(ctx, d); err != nil {
			return err
		}
	}
}
