package mutexchan

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/srediag/mutexchan/adapter"
	"github.com/srediag/mutexchan/api"
)

// Role is the side of the channel a process plays.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// Channel is a primitive after a completed rendezvous.
type Channel struct {
	role  Role
	name  string
	slot  time.Duration
	prim  api.Primitive
	epoch time.Time
	// owned tracks whether this end currently owns prim.
	owned bool
}

func newChannel(role Role, cfg *Config, prim api.Primitive, epoch time.Time) *Channel {
	return &Channel{
		role:  role,
		name:  cfg.Name,
		slot:  cfg.Slot,
		prim:  prim,
		epoch: epoch,
	}
}

func (c *Channel) Role() Role               { return c.role }
func (c *Channel) Name() string             { return c.name }
func (c *Channel) Slot() time.Duration      { return c.slot }
func (c *Channel) Epoch() time.Time         { return c.epoch }
func (c *Channel) Primitive() api.Primitive { return c.prim }

// slotStart returns the start of slot k.
func (c *Channel) slotStart(k int) time.Time {
	return c.epoch.Add(time.Duration(k) * c.slot)
}

// abort releases ownership where possible and closes the handle.
func (c *Channel) abort() {
	if c.owned {
		if err := c.prim.Release(); err == nil {
			c.owned = false
		}
	}
	_ = c.prim.Close()
}

type options struct {
	clock   Clock
	logger  *zap.Logger
	metrics *Metrics
	otel    *adapter.OTel
	dumpOut io.Writer
}

// Option customises sessions, rendezvous, Transmitter and Receiver.
type Option func(*options)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records Prometheus metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithOTel records OpenTelemetry spans and counters through a.
func WithOTel(a *adapter.OTel) Option {
	return func(o *options) { o.otel = a }
}

// WithDumpOutput sets where verbose bit dumps go. The default is stdout.
func WithDumpOutput(w io.Writer) Option {
	return func(o *options) { o.dumpOut = w }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = SystemClock()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}
	if o.otel == nil {
		o.otel = adapter.NopOTel()
	}
	if o.dumpOut == nil {
		o.dumpOut = os.Stdout
	}
	return o
}
