package mutexchan

import (
	"fmt"
	"time"
)

const (
	// DefaultChannelName is the primitive name used when none is configured.
	DefaultChannelName = "mutexchan"
	// DefaultSlot is the time one bit occupies on the primitive.
	DefaultSlot = 50 * time.Millisecond

	defaultProbeInterval       = 10 * time.Millisecond
	defaultProbeAcquireTimeout = time.Millisecond
	defaultOpenInterval        = 100 * time.Millisecond
	defaultSettleDelay         = 30 * time.Millisecond
	defaultEpochPoll           = time.Millisecond
	defaultMaxPayloadSize      = 16 << 20

	minSlot = 4 * time.Millisecond
	maxSlot = time.Second
)

// Config holds the parameters both ends must agree on, plus local tuning.
// Name and Slot must match between Sender and Receiver.
type Config struct {
	Name string
	Slot time.Duration
	// Verbose dumps every transferred byte as a bit string.
	Verbose bool

	// ProbeInterval is how long the Sender holds the primitive between
	// contention probes.
	ProbeInterval time.Duration
	// ProbeAcquireTimeout bounds each probe re-acquire.
	ProbeAcquireTimeout time.Duration
	// ProbeTimeout aborts the Sender when no Receiver appears. Zero waits forever.
	ProbeTimeout time.Duration

	// OpenInterval is the Receiver's polling period for the primitive to appear.
	OpenInterval time.Duration
	// OpenRetries bounds the number of re-tries. Zero waits forever.
	OpenRetries int
	// SettleDelay is how long the Receiver holds the primitive to acknowledge.
	SettleDelay time.Duration

	// EpochPoll is the polling granularity while waiting for the epoch.
	EpochPoll time.Duration

	InitialBufferSize int
	MaxPayloadSize    int
}

// DefaultConfig returns the configuration shared by both roles out of the box.
func DefaultConfig() *Config {
	return &Config{
		Name:                DefaultChannelName,
		Slot:                DefaultSlot,
		ProbeInterval:       defaultProbeInterval,
		ProbeAcquireTimeout: defaultProbeAcquireTimeout,
		OpenInterval:        defaultOpenInterval,
		SettleDelay:         defaultSettleDelay,
		EpochPoll:           defaultEpochPoll,
		InitialBufferSize:   DefaultInitialBufferSize,
		MaxPayloadSize:      defaultMaxPayloadSize,
	}
}

// VerifyConfig checks that config describes a usable channel.
func VerifyConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if config.Name == "" {
		return fmt.Errorf("%w: empty channel name", ErrInvalidConfig)
	}
	if config.Slot < minSlot || config.Slot > maxSlot {
		return fmt.Errorf("%w: slot %v outside [%v, %v]", ErrInvalidConfig, config.Slot, minSlot, maxSlot)
	}
	if config.ProbeInterval <= 0 || config.ProbeAcquireTimeout <= 0 {
		return fmt.Errorf("%w: probe interval and acquire timeout must be positive", ErrInvalidConfig)
	}
	// The Receiver must still hold the primitive when the Sender probes next.
	if config.SettleDelay <= config.ProbeInterval+config.ProbeAcquireTimeout {
		return fmt.Errorf("%w: settle delay %v must exceed probe period %v",
			ErrInvalidConfig, config.SettleDelay, config.ProbeInterval+config.ProbeAcquireTimeout)
	}
	if config.OpenInterval <= 0 || config.EpochPoll <= 0 {
		return fmt.Errorf("%w: polling intervals must be positive", ErrInvalidConfig)
	}
	if config.OpenRetries < 0 || config.ProbeTimeout < 0 {
		return fmt.Errorf("%w: negative retry bound", ErrInvalidConfig)
	}
	if config.InitialBufferSize <= 0 {
		return fmt.Errorf("%w: initial buffer size must be positive", ErrInvalidConfig)
	}
	if config.MaxPayloadSize < config.InitialBufferSize {
		return fmt.Errorf("%w: max payload %d below initial buffer %d",
			ErrInvalidConfig, config.MaxPayloadSize, config.InitialBufferSize)
	}
	return nil
}
