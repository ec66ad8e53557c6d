package mutexchan

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/srediag/mutexchan/api"
	"github.com/srediag/mutexchan/internal/bitdump"
)

// Receiver samples the primitive to decode a payload.
type Receiver struct {
	cfg *Config
	o   options
	log *zap.Logger
}

// NewReceiver returns a Receiver for cfg.
func NewReceiver(cfg *Config, opts ...Option) *Receiver {
	o := buildOptions(opts)
	return &Receiver{
		cfg: cfg,
		o:   o,
		log: o.logger.With(zap.String("role", string(RoleReceiver)), zap.String("channel", cfg.Name)),
	}
}

// Receive samples ch once per slot starting at the channel epoch until the
// primitive is abandoned, and returns the decoded payload.
func (r *Receiver) Receive(ctx context.Context, ch *Channel) ([]byte, error) {
	ctx, span := r.o.otel.StartSpan(ctx, "mutexchan.receive", string(RoleReceiver))
	defer span.End()

	dec := NewDecoder(r.cfg.InitialBufferSize, r.cfg.MaxPayloadSize)
	if r.cfg.Verbose {
		dump := bitdump.New(r.o.dumpOut)
		defer dump.Close()
		dec.OnByte = dump.Byte
	}

	for k := 0; ; k++ {
		if err := waitUntil(ctx, r.o.clock, ch.slotStart(k), ch.slot); err != nil {
			return nil, err
		}
		bit, eos, err := r.sample(ctx, ch)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if eos {
			if n := dec.Pending(); n != 0 {
				r.log.Warn("stream ended inside a byte", zap.Int("pending_bits", n))
			}
			r.log.Debug("end of stream", zap.Int("bytes", dec.Len()), zap.Int("samples", k+1))
			return dec.Bytes(), nil
		}
		r.o.metrics.addBit(RoleReceiver, bit)
		r.o.otel.RecordBit(ctx, string(RoleReceiver), bit)

		before := dec.Len()
		if err := dec.PushBit(bit); err != nil {
			span.RecordError(err)
			return nil, err
		}
		if dec.Len() > before {
			r.o.metrics.addByte(RoleReceiver)
			r.o.otel.RecordByte(ctx, string(RoleReceiver))
		}
	}
}

// sample reads one bit. A successful acquire is undone at once so the
// Receiver never changes what the next sample sees.
func (r *Receiver) sample(ctx context.Context, ch *Channel) (bit, eos bool, err error) {
	out, err := ch.prim.Acquire(ctx, api.Zero)
	if err != nil {
		return false, false, fmt.Errorf("sample: %w", err)
	}
	switch out {
	case api.Abandoned:
		ch.owned = true
		if err := ch.prim.Release(); err != nil {
			return false, true, fmt.Errorf("release abandoned primitive: %w", err)
		}
		ch.owned = false
		return false, true, nil
	case api.Acquired:
		ch.owned = true
		if err := ch.prim.Release(); err != nil {
			return false, false, fmt.Errorf("sample release: %w", err)
		}
		ch.owned = false
		return true, false, nil
	}
	return false, false, nil
}
