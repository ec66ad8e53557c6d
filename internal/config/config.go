// Package config loads mutexchan settings from a TOML file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/srediag/mutexchan/internal/logging"
	"github.com/srediag/mutexchan/pkg/mutexchan"
)

// EnvPrefix prefixes every environment override, e.g. MUTEXCHAN_CHANNEL_SLOT_MS.
const EnvPrefix = "MUTEXCHAN"

// Config is the file and environment configuration of the binary.
type Config struct {
	Channel ChannelConfig `toml:"channel"`
	Log     LogConfig     `toml:"log"`
	Debug   DebugConfig   `toml:"debug"`
}

// ChannelConfig mirrors mutexchan.Config with durations in milliseconds.
type ChannelConfig struct {
	Name           string `toml:"name" envconfig:"NAME"`
	SlotMS         int    `toml:"slot_ms" envconfig:"SLOT_MS"`
	Verbose        bool   `toml:"verbose" envconfig:"VERBOSE"`
	ProbeTimeoutMS int    `toml:"probe_timeout_ms" envconfig:"PROBE_TIMEOUT_MS"`
	OpenIntervalMS int    `toml:"open_interval_ms" envconfig:"OPEN_INTERVAL_MS"`
	OpenRetries    int    `toml:"open_retries" envconfig:"OPEN_RETRIES"`
	SettleMS       int    `toml:"settle_ms" envconfig:"SETTLE_MS"`
	MaxPayloadSize int    `toml:"max_payload_size" envconfig:"MAX_PAYLOAD_SIZE"`
	// Dir is where unix primitives live. Empty means the platform default.
	Dir string `toml:"dir" envconfig:"DIR"`
}

type LogConfig struct {
	Level       string   `toml:"level" envconfig:"LEVEL"`
	Development bool     `toml:"development" envconfig:"DEVELOPMENT"`
	Outputs     []string `toml:"outputs" envconfig:"OUTPUTS"`
}

type DebugConfig struct {
	// Addr serves metrics, health and pprof when set.
	Addr string `toml:"addr" envconfig:"ADDR"`
}

func ms(d time.Duration) int { return int(d / time.Millisecond) }

// Default returns the built-in configuration.
func Default() *Config {
	ch := mutexchan.DefaultConfig()
	lg := logging.DefaultConfig()
	return &Config{
		Channel: ChannelConfig{
			Name:           ch.Name,
			SlotMS:         ms(ch.Slot),
			OpenIntervalMS: ms(ch.OpenInterval),
			SettleMS:       ms(ch.SettleDelay),
			MaxPayloadSize: ch.MaxPayloadSize,
		},
		Log: LogConfig{
			Level:       lg.Level,
			Development: lg.Development,
			Outputs:     lg.OutputPaths,
		},
	}
}

// Load returns the defaults overlaid with the TOML file at path, if any, and
// then with MUTEXCHAN_* environment variables. A missing file is not an error
// unless the path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	} else if _, err := os.Stat(DefaultPath); err == nil {
		if _, err := toml.DecodeFile(DefaultPath, cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", DefaultPath, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("config environment: %w", err)
	}
	cfg.Channel.Name = strings.TrimSpace(cfg.Channel.Name)
	return cfg, nil
}

// DefaultPath is read by Load when no path is given and the file exists.
var DefaultPath = "mutexchan.toml"

// ChannelConfig converts the channel section into a verified mutexchan.Config.
func (c *Config) ChannelConfig() (*mutexchan.Config, error) {
	out := mutexchan.DefaultConfig()
	ch := c.Channel
	if ch.Name != "" {
		out.Name = ch.Name
	}
	if ch.SlotMS > 0 {
		out.Slot = time.Duration(ch.SlotMS) * time.Millisecond
	}
	out.Verbose = ch.Verbose
	out.ProbeTimeout = time.Duration(ch.ProbeTimeoutMS) * time.Millisecond
	if ch.OpenIntervalMS > 0 {
		out.OpenInterval = time.Duration(ch.OpenIntervalMS) * time.Millisecond
	}
	out.OpenRetries = ch.OpenRetries
	if ch.SettleMS > 0 {
		out.SettleDelay = time.Duration(ch.SettleMS) * time.Millisecond
	}
	if ch.MaxPayloadSize > 0 {
		out.MaxPayloadSize = ch.MaxPayloadSize
	}
	if err := mutexchan.VerifyConfig(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:       c.Log.Level,
		Development: c.Log.Development,
		OutputPaths: c.Log.Outputs,
	}
}
