package mutexchan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/srediag/mutexchan/api"
)

// EstablishAsSender creates the primitive, waits until a Receiver takes it
// and then until the sender epoch.
func EstablishAsSender(ctx context.Context, opener api.Opener, cfg *Config, opts ...Option) (*Channel, error) {
	o := buildOptions(opts)
	log := o.logger.With(zap.String("role", string(RoleSender)), zap.String("channel", cfg.Name))
	ctx, span := o.otel.StartSpan(ctx, "mutexchan.rendezvous", string(RoleSender))
	defer span.End()

	start := o.clock.Now()
	prim, err := opener.Create(ctx, cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelCreation, err)
	}
	ch := newChannel(RoleSender, cfg, prim, start)
	ch.owned = true

	if err := probe(ctx, ch, cfg, o, log); err != nil {
		ch.abort()
		_ = opener.Remove(cfg.Name)
		span.RecordError(err)
		return nil, err
	}
	now := o.clock.Now()
	o.metrics.observeRendezvous(RoleSender, now.Sub(start))
	ch.epoch = SenderEpoch(now)
	log.Info("receiver detected", zap.Time("epoch", ch.epoch))

	if err := waitUntil(ctx, o.clock, ch.epoch, cfg.EpochPoll); err != nil {
		ch.abort()
		return nil, err
	}
	return ch, nil
}

// probe releases and re-takes the primitive until a re-take fails, which
// means a Receiver got hold of it.
func probe(ctx context.Context, ch *Channel, cfg *Config, o options, log *zap.Logger) error {
	deadline := o.clock.Now().Add(cfg.ProbeTimeout)
	for attempt := 1; ; attempt++ {
		if err := o.clock.Sleep(ctx, cfg.ProbeInterval); err != nil {
			return err
		}
		if err := ch.prim.Release(); err != nil {
			return fmt.Errorf("probe release: %w", err)
		}
		ch.owned = false
		out, err := ch.prim.Acquire(ctx, api.Bounded(cfg.ProbeAcquireTimeout))
		if err != nil {
			return fmt.Errorf("probe acquire: %w", err)
		}
		switch out {
		case api.Held:
			log.Debug("probe contended", zap.Int("attempts", attempt))
			return nil
		case api.Abandoned:
			log.Warn("primitive abandoned during probe")
		}
		ch.owned = true
		if cfg.ProbeTimeout > 0 && !o.clock.Now().Before(deadline) {
			return fmt.Errorf("%w after %v", ErrPeerTimeout, cfg.ProbeTimeout)
		}
	}
}

// EstablishAsReceiver waits for the primitive to appear, acknowledges the
// Sender by holding it for the settle delay, then waits until the receiver epoch.
func EstablishAsReceiver(ctx context.Context, opener api.Opener, cfg *Config, opts ...Option) (*Channel, error) {
	o := buildOptions(opts)
	log := o.logger.With(zap.String("role", string(RoleReceiver)), zap.String("channel", cfg.Name))
	ctx, span := o.otel.StartSpan(ctx, "mutexchan.rendezvous", string(RoleReceiver))
	defer span.End()

	start := o.clock.Now()
	prim, err := openWhenPresent(ctx, opener, cfg, log)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	ch := newChannel(RoleReceiver, cfg, prim, start)

	out, err := prim.Acquire(ctx, api.Infinite)
	if err != nil {
		ch.abort()
		return nil, fmt.Errorf("acknowledge: %w", err)
	}
	ch.owned = true
	if out == api.Abandoned {
		ch.abort()
		return nil, fmt.Errorf("%w: sender abandoned the channel during rendezvous", ErrChannelNotFound)
	}
	if err := o.clock.Sleep(ctx, cfg.SettleDelay); err != nil {
		ch.abort()
		return nil, err
	}
	if err := prim.Release(); err != nil {
		ch.abort()
		return nil, fmt.Errorf("acknowledge release: %w", err)
	}
	ch.owned = false

	now := o.clock.Now()
	o.metrics.observeRendezvous(RoleReceiver, now.Sub(start))
	ch.epoch = ReceiverEpoch(now, cfg.Slot)
	log.Info("sender acknowledged", zap.Time("epoch", ch.epoch))

	if err := waitUntil(ctx, o.clock, ch.epoch, cfg.EpochPoll); err != nil {
		ch.abort()
		return nil, err
	}
	return ch, nil
}

func openWhenPresent(ctx context.Context, opener api.Opener, cfg *Config, log *zap.Logger) (api.Primitive, error) {
	var b backoff.BackOff = backoff.NewConstantBackOff(cfg.OpenInterval)
	if cfg.OpenRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(cfg.OpenRetries))
	}
	var prim api.Primitive
	err := backoff.RetryNotify(func() error {
		p, err := opener.Open(ctx, cfg.Name)
		if errors.Is(err, api.ErrNotFound) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		prim = p
		return nil
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.Debug("channel not present yet", zap.Duration("retry_in", next))
	})
	switch {
	case errors.Is(err, api.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, cfg.Name)
	case err != nil:
		return nil, err
	}
	return prim, nil
}
