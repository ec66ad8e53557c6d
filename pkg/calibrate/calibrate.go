// Package calibrate finds slot durations that survive a loopback transfer
// on this host.
package calibrate

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/srediag/mutexchan/api"
	"github.com/srediag/mutexchan/pkg/mutexchan"
)

// DefaultPayload is sent at every candidate slot.
var DefaultPayload = []byte("mutexchan calibration \x00\xff\x55\xaa")

// DefaultSlots are the candidates tried when none are given.
var DefaultSlots = []time.Duration{
	10 * time.Millisecond,
	20 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
}

// Result is the outcome of one loopback transfer.
type Result struct {
	Slot    time.Duration
	OK      bool
	Got     []byte
	Err     error
	Elapsed time.Duration
}

// Options tune a calibration run.
type Options struct {
	Slots   []time.Duration
	Payload []byte
	// Workers bounds the number of loopbacks running at once.
	Workers int
	Logger  *zap.Logger
}

// Run performs one loopback per candidate slot on a channel derived from
// cfg.Name and returns the results sorted by slot.
func Run(ctx context.Context, opener api.Opener, cfg *mutexchan.Config, opts Options) ([]Result, error) {
	if len(opts.Slots) == 0 {
		opts.Slots = DefaultSlots
	}
	if opts.Payload == nil {
		opts.Payload = DefaultPayload
	}
	if opts.Workers <= 0 {
		opts.Workers = len(opts.Slots)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	pool, err := ants.NewPool(opts.Workers, ants.WithPanicHandler(func(p any) {
		opts.Logger.Error("calibration worker panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, fmt.Errorf("calibration pool: %w", err)
	}
	defer pool.Release()

	results := make([]Result, len(opts.Slots))
	var wg sync.WaitGroup
	for i, slot := range opts.Slots {
		i, slot := i, slot
		results[i] = Result{Slot: slot}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = try(ctx, opener, cfg, slot, opts)
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			results[i].Err = err
		}
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Slot < results[b].Slot })
	return results, nil
}

func try(ctx context.Context, opener api.Opener, base *mutexchan.Config, slot time.Duration, opts Options) Result {
	cfg := *base
	cfg.Name = ChannelName(base.Name, slot)
	cfg.Slot = slot
	cfg.Verbose = false
	log := opts.Logger.With(zap.String("channel", cfg.Name), zap.Duration("slot", slot))

	start := time.Now()
	got, err := mutexchan.Loopback(ctx, opener, &cfg, opts.Payload, mutexchan.WithLogger(log))
	res := Result{Slot: slot, Got: got, Err: err, Elapsed: time.Since(start)}
	res.OK = err == nil && bytes.Equal(got, opts.Payload)
	log.Info("calibration transfer", zap.Bool("ok", res.OK), zap.Duration("elapsed", res.Elapsed), zap.Error(err))
	return res
}

// ChannelName is the channel used to calibrate slot on top of name.
func ChannelName(name string, slot time.Duration) string {
	return fmt.Sprintf("%s-cal-%d", name, slot.Milliseconds())
}

// Fastest returns the shortest slot that transferred correctly.
func Fastest(results []Result) (time.Duration, bool) {
	for _, r := range results {
		if r.OK {
			return r.Slot, true
		}
	}
	return 0, false
}
