package mutexchan

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/srediag/mutexchan/api"
)

// Session runs one role through Idle -> Rendezvous -> Streaming -> Done,
// or Aborted on the first fatal error. A Session is single use.
type Session struct {
	role   Role
	opener api.Opener
	cfg    *Config
	opts   []Option
	o      options
	state  stateMachine
	log    *zap.Logger
}

// NewSession validates cfg and returns an idle session for role.
func NewSession(role Role, opener api.Opener, cfg *Config, opts ...Option) (*Session, error) {
	if role != RoleSender && role != RoleReceiver {
		return nil, fmt.Errorf("%w: unknown role %q", ErrWrongRole, role)
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	s := &Session{
		role:   role,
		opener: opener,
		cfg:    cfg,
		opts:   opts,
		o:      o,
		log:    o.logger.With(zap.String("role", string(role)), zap.String("channel", cfg.Name)),
	}
	s.state.onChange = func(st State) {
		o.metrics.setState(role, st)
		s.log.Debug("session state", zap.Stringer("state", st))
	}
	o.metrics.setState(role, StateIdle)
	return s, nil
}

// Role returns the session role.
func (s *Session) Role() Role { return s.role }

// State returns the current phase.
func (s *Session) State() State { return s.state.load() }

// Send performs the sender rendezvous and transmits payload.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	if s.role != RoleSender {
		return fmt.Errorf("%w: Send on %s session", ErrWrongRole, s.role)
	}
	if err := s.state.advance(StateRendezvous); err != nil {
		return err
	}
	ch, err := EstablishAsSender(ctx, s.opener, s.cfg, s.opts...)
	if err != nil {
		s.fail(nil, err)
		return err
	}
	_ = s.state.advance(StateStreaming)
	if err := NewTransmitter(s.cfg, s.opts...).Send(ctx, ch, payload); err != nil {
		s.fail(ch, err)
		return err
	}
	_ = s.state.advance(StateDone)
	return nil
}

// Receive performs the receiver rendezvous and returns the decoded payload.
// The named primitive is removed once the stream ends.
func (s *Session) Receive(ctx context.Context) ([]byte, error) {
	if s.role != RoleReceiver {
		return nil, fmt.Errorf("%w: Receive on %s session", ErrWrongRole, s.role)
	}
	if err := s.state.advance(StateRendezvous); err != nil {
		return nil, err
	}
	ch, err := EstablishAsReceiver(ctx, s.opener, s.cfg, s.opts...)
	if err != nil {
		s.fail(nil, err)
		return nil, err
	}
	_ = s.state.advance(StateStreaming)
	data, err := NewReceiver(s.cfg, s.opts...).Receive(ctx, ch)
	if err != nil {
		s.fail(ch, err)
		return nil, err
	}
	if err := ch.prim.Close(); err != nil {
		s.log.Warn("close channel", zap.Error(err))
	}
	if err := s.opener.Remove(s.cfg.Name); err != nil {
		s.log.Warn("remove channel", zap.Error(err))
	}
	_ = s.state.advance(StateDone)
	return data, nil
}

func (s *Session) fail(ch *Channel, err error) {
	if ch != nil {
		ch.abort()
	}
	s.log.Error("session aborted", zap.Stringer("state", s.State()), zap.Error(err))
	_ = s.state.advance(StateAborted)
}
