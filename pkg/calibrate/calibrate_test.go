package calibrate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/srediag/mutexchan/pkg/mutexchan"
	"github.com/srediag/mutexchan/pkg/primitive"
)

func TestChannelName(t *testing.T) {
	assert.Equal(t, "chan-cal-50", ChannelName("chan", 50*time.Millisecond))
}

func TestFastest(t *testing.T) {
	results := []Result{
		{Slot: 10 * time.Millisecond},
		{Slot: 20 * time.Millisecond, OK: true},
		{Slot: 50 * time.Millisecond, OK: true},
	}
	slot, ok := Fastest(results)
	require.True(t, ok)
	assert.Equal(t, 20*time.Millisecond, slot)

	_, ok = Fastest(results[:1])
	assert.False(t, ok)
}

func TestRunReportsInvalidSlots(t *testing.T) {
	cfg := mutexchan.DefaultConfig()
	results, err := Run(context.Background(), primitive.NewOpener(primitive.Options{Dir: t.TempDir()}), cfg, Options{
		Slots: []time.Duration{2 * time.Second, time.Millisecond},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, time.Millisecond, results[0].Slot)
	for _, r := range results {
		assert.False(t, r.OK)
		assert.ErrorIs(t, r.Err, mutexchan.ErrInvalidConfig)
	}
}

func TestRunLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time transfer")
	}
	cfg := mutexchan.DefaultConfig()
	cfg.Name = "calibrate-test"
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := Run(ctx, primitive.NewOpener(primitive.Options{Dir: t.TempDir()}), cfg, Options{
		Slots:   []time.Duration{50 * time.Millisecond},
		Payload: []byte("ok"),
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].OK, "err: %v", results[0].Err)
	assert.Equal(t, []byte("ok"), results[0].Got)
}
