package mutexchan

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/mutexchan/api"
	"github.com/srediag/mutexchan/internal/sim"
)

// receiverScript returns the acquire outcomes a Receiver sees for payload:
// the acknowledge, the leading sample, the frame and the abandonment.
func receiverScript(payload []byte) []api.Outcome {
	out := []api.Outcome{api.Acquired, api.Acquired}
	for _, b := range Frame(payload) {
		for _, free := range BitStates(b) {
			if free {
				out = append(out, api.Acquired)
			} else {
				out = append(out, api.Held)
			}
		}
	}
	return append(out, api.Abandoned)
}

type SessionTestSuite struct {
	suite.Suite
	ctx   context.Context
	cfg   *Config
	clock *sim.Clock
	reg   *prometheus.Registry
	opts  []Option
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func (s *SessionTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.cfg = DefaultConfig()
	s.cfg.OpenInterval = time.Millisecond
	s.clock = sim.NewClock(rendezvousStart)
	s.reg = prometheus.NewRegistry()
	s.opts = []Option{WithClock(s.clock), WithMetrics(NewMetrics(s.reg))}
}

func (s *SessionTestSuite) gather(name string, labels map[string]string) *dto.Metric {
	families, err := s.reg.Gather()
	s.Require().NoError(err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if v, ok := labels[lp.GetName()]; ok && v != lp.GetValue() {
					continue next
				}
			}
			return m
		}
	}
	s.Require().FailNow("metric not found", name)
	return nil
}

func (s *SessionTestSuite) TestSend() {
	prim := sim.NewScript(s.cfg.Name, s.clock, api.Held).Own()
	sess, err := NewSession(RoleSender, &sim.Opener{Prim: prim}, s.cfg, s.opts...)
	s.Require().NoError(err)
	s.Equal(StateIdle, sess.State())

	s.Require().NoError(sess.Send(s.ctx, []byte("A")))
	s.Equal(StateDone, sess.State())

	calls := prim.Calls()
	last := calls[len(calls)-2:]
	s.Equal("acquire", last[0].Op)
	s.Equal(api.Infinite, last[0].Timeout)
	s.Equal("close", last[1].Op)
	s.True(prim.Owned(), "sender must abandon the primitive")

	s.Equal(float64(StateDone), s.gather("mutexchan_session_state", map[string]string{"role": "sender"}).GetGauge().GetValue())
	s.Equal(1.0, s.gather("mutexchan_bytes_total", map[string]string{"role": "sender"}).GetCounter().GetValue())
	s.Equal(4.0, s.gather("mutexchan_bits_total", map[string]string{"role": "sender", "bit": "1"}).GetCounter().GetValue())
	s.Equal(12.0, s.gather("mutexchan_bits_total", map[string]string{"role": "sender", "bit": "0"}).GetCounter().GetValue())
}

func (s *SessionTestSuite) TestReceive() {
	payload := []byte("Hi")
	prim := sim.NewScript(s.cfg.Name, s.clock, receiverScript(payload)...)
	opener := &sim.Opener{Prim: prim}
	sess, err := NewSession(RoleReceiver, opener, s.cfg, s.opts...)
	s.Require().NoError(err)

	got, err := sess.Receive(s.ctx)
	s.Require().NoError(err)
	s.Equal(payload, got)
	s.Equal(StateDone, sess.State())
	s.Equal([]string{s.cfg.Name}, opener.Removed())

	s.Equal(2.0, s.gather("mutexchan_bytes_total", map[string]string{"role": "receiver"}).GetCounter().GetValue())
	s.Equal(uint64(1), s.gather("mutexchan_rendezvous_seconds", map[string]string{"role": "receiver"}).GetHistogram().GetSampleCount())
}

func (s *SessionTestSuite) TestAbortedSessionIsSingleUse() {
	sess, err := NewSession(RoleSender, &sim.Opener{CreateErr: api.ErrExists}, s.cfg, s.opts...)
	s.Require().NoError(err)

	s.Require().ErrorIs(sess.Send(s.ctx, []byte("x")), ErrChannelCreation)
	s.Equal(StateAborted, sess.State())
	s.Equal(float64(StateAborted), s.gather("mutexchan_session_state", map[string]string{"role": "sender"}).GetGauge().GetValue())

	s.Require().ErrorIs(sess.Send(s.ctx, []byte("x")), ErrSessionUsed)
}

func (s *SessionTestSuite) TestWrongRole() {
	tx, err := NewSession(RoleSender, &sim.Opener{}, s.cfg)
	s.Require().NoError(err)
	_, err = tx.Receive(s.ctx)
	s.ErrorIs(err, ErrWrongRole)
	s.Equal(StateIdle, tx.State())

	rx, err := NewSession(RoleReceiver, &sim.Opener{}, s.cfg)
	s.Require().NoError(err)
	s.ErrorIs(rx.Send(s.ctx, nil), ErrWrongRole)

	_, err = NewSession("observer", &sim.Opener{}, s.cfg)
	s.ErrorIs(err, ErrWrongRole)
}

func TestNewSessionVerifiesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Slot = 0
	_, err := NewSession(RoleSender, &sim.Opener{}, cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReceiveAbortsOnAllocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialBufferSize = 2
	cfg.MaxPayloadSize = 2
	clock := sim.NewClock(rendezvousStart)
	prim := sim.NewScript(cfg.Name, clock, receiverScript([]byte("abc"))...)
	sess, err := NewSession(RoleReceiver, &sim.Opener{Prim: prim}, cfg, WithClock(clock))
	require.NoError(t, err)

	_, err = sess.Receive(context.Background())
	require.ErrorIs(t, err, ErrAllocation)
	assert.Equal(t, StateAborted, sess.State())
	ops := prim.Ops()
	assert.Equal(t, "close", ops[len(ops)-1])
}
