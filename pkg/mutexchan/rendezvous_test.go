package mutexchan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/srediag/mutexchan/api"
	"github.com/srediag/mutexchan/internal/sim"
)

var rendezvousStart = time.Unix(1000, 250e6)

func TestEstablishAsSender(t *testing.T) {
	cfg := DefaultConfig()
	clock := sim.NewClock(rendezvousStart)
	prim := sim.NewScript(cfg.Name, clock, api.Acquired, api.Acquired, api.Held).Own()
	opener := &sim.Opener{Prim: prim}

	ch, err := EstablishAsSender(context.Background(), opener, cfg,
		WithClock(clock), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	assert.Equal(t, RoleSender, ch.Role())
	assert.True(t, ch.Epoch().Equal(time.Unix(1002, 0)), "epoch %v", ch.Epoch())
	assert.True(t, clock.Now().Equal(ch.Epoch()))
	assert.False(t, ch.owned)
	assert.Equal(t, []string{"release", "acquire", "release", "acquire", "release", "acquire"}, prim.Ops())
	for _, c := range prim.Calls() {
		if c.Op == "acquire" {
			assert.Equal(t, api.Bounded(cfg.ProbeAcquireTimeout), c.Timeout)
		}
	}
	// Probes are spaced by the probe interval.
	calls := prim.Calls()
	assert.Equal(t, cfg.ProbeInterval, calls[2].At.Sub(calls[0].At))
	assert.Empty(t, opener.Removed())
}

func TestEstablishAsSenderSkipsAbandonedProbe(t *testing.T) {
	cfg := DefaultConfig()
	clock := sim.NewClock(rendezvousStart)
	prim := sim.NewScript(cfg.Name, clock, api.Abandoned, api.Held).Own()

	_, err := EstablishAsSender(context.Background(), &sim.Opener{Prim: prim}, cfg, WithClock(clock))
	require.NoError(t, err)
	assert.Len(t, prim.Ops(), 4)
}

func TestEstablishAsSenderCreateFails(t *testing.T) {
	opener := &sim.Opener{CreateErr: api.ErrExists}
	_, err := EstablishAsSender(context.Background(), opener, DefaultConfig())
	require.ErrorIs(t, err, ErrChannelCreation)
	require.ErrorIs(t, err, api.ErrExists)
}

func TestEstablishAsSenderPeerTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProbeTimeout = 50 * time.Millisecond
	clock := sim.NewClock(rendezvousStart)
	prim := sim.NewScript(cfg.Name, clock).Own()
	opener := &sim.Opener{Prim: prim}

	_, err := EstablishAsSender(context.Background(), opener, cfg, WithClock(clock))
	require.ErrorIs(t, err, ErrPeerTimeout)
	ops := prim.Ops()
	assert.Equal(t, []string{"release", "close"}, ops[len(ops)-2:])
	assert.Equal(t, []string{cfg.Name}, opener.Removed())
}

func TestEstablishAsReceiver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OpenInterval = time.Millisecond
	clock := sim.NewClock(rendezvousStart)
	prim := sim.NewScript(cfg.Name, clock, api.Acquired)
	opener := &sim.Opener{Prim: prim, Missing: 2}

	ch, err := EstablishAsReceiver(context.Background(), opener, cfg,
		WithClock(clock), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	assert.Equal(t, 3, opener.Opens())
	calls := prim.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "acquire", calls[0].Op)
	assert.Equal(t, api.Infinite, calls[0].Timeout)
	assert.Equal(t, "release", calls[1].Op)
	assert.Equal(t, cfg.SettleDelay, calls[1].At.Sub(calls[0].At))

	want := time.Unix(1002, 0).Add(-cfg.Slot / 2)
	assert.True(t, ch.Epoch().Equal(want), "epoch %v", ch.Epoch())
	assert.True(t, clock.Now().Equal(want))
	assert.False(t, prim.Owned())
}

func TestEstablishAsReceiverGivesUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OpenInterval = time.Millisecond
	cfg.OpenRetries = 2
	opener := &sim.Opener{}

	_, err := EstablishAsReceiver(context.Background(), opener, cfg)
	require.ErrorIs(t, err, ErrChannelNotFound)
	assert.Equal(t, 3, opener.Opens())
}

func TestEstablishAsReceiverSenderGone(t *testing.T) {
	cfg := DefaultConfig()
	clock := sim.NewClock(rendezvousStart)
	prim := sim.NewScript(cfg.Name, clock, api.Abandoned)

	_, err := EstablishAsReceiver(context.Background(), &sim.Opener{Prim: prim}, cfg, WithClock(clock))
	require.ErrorIs(t, err, ErrChannelNotFound)
	assert.Equal(t, []string{"acquire", "release", "close"}, prim.Ops())
}
