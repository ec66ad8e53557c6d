package mutexchan

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/srediag/mutexchan/api"
	"github.com/srediag/mutexchan/internal/bitdump"
)

// Transmitter drives the primitive to encode a payload.
type Transmitter struct {
	cfg *Config
	o   options
	log *zap.Logger
}

// NewTransmitter returns a Transmitter for cfg.
func NewTransmitter(cfg *Config, opts ...Option) *Transmitter {
	o := buildOptions(opts)
	return &Transmitter{
		cfg: cfg,
		o:   o,
		log: o.logger.With(zap.String("role", string(RoleSender)), zap.String("channel", cfg.Name)),
	}
}

// Send puts Frame(payload) on ch one bit per slot starting at the channel
// epoch, then acquires the primitive and abandons it to mark the end of the
// stream. ch is closed when Send returns without error.
func (t *Transmitter) Send(ctx context.Context, ch *Channel, payload []byte) error {
	ctx, span := t.o.otel.StartSpan(ctx, "mutexchan.send", string(RoleSender))
	defer span.End()

	var dump *bitdump.Dumper
	if t.cfg.Verbose {
		dump = bitdump.New(t.o.dumpOut)
		defer dump.Close()
	}

	// 0 bits are set with a short bounded wait so that a Receiver sampling
	// at the slot edge does not make the Sender skip a bit.
	hold := api.Bounded(ch.slot / 4)
	k := 0
	for i, b := range Frame(payload) {
		for _, free := range BitStates(b) {
			if err := t.set(ctx, ch, free, hold); err != nil {
				span.RecordError(err)
				return err
			}
			t.o.metrics.addBit(RoleSender, free)
			t.o.otel.RecordBit(ctx, string(RoleSender), free)
			k++
			if err := waitUntil(ctx, t.o.clock, ch.slotStart(k), ch.slot); err != nil {
				return err
			}
		}
		if dump != nil {
			dump.Byte(b)
		}
		if i >= LeadingByteDiscard {
			t.o.metrics.addByte(RoleSender)
			t.o.otel.RecordByte(ctx, string(RoleSender))
		}
	}

	if !ch.owned {
		if _, err := ch.prim.Acquire(ctx, api.Infinite); err != nil {
			return fmt.Errorf("final acquire: %w", err)
		}
		ch.owned = true
	}
	t.log.Debug("payload sent, abandoning channel", zap.Int("bytes", len(payload)), zap.Int("slots", k))
	return ch.prim.Close()
}

func (t *Transmitter) set(ctx context.Context, ch *Channel, free bool, hold api.Timeout) error {
	if free {
		if !ch.owned {
			return nil
		}
		if err := ch.prim.Release(); err != nil {
			return fmt.Errorf("release: %w", err)
		}
		ch.owned = false
		return nil
	}
	if ch.owned {
		return nil
	}
	out, err := ch.prim.Acquire(ctx, hold)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	if out == api.Held {
		t.o.metrics.miss()
		t.log.Warn("primitive busy while setting a 0 bit")
		return nil
	}
	ch.owned = true
	return nil
}
