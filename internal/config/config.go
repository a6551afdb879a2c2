// Package config loads node settings from an optional TOML file. Every field
// has a default, so running a binary with no config file at all is the normal
// case under the test harness.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

type GossipConfig struct {
	// Gossip round period in milliseconds. Tuning knob, not a correctness
	// parameter: any positive interval converges.
	IntervalMs int `toml:"interval_ms"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type TelemetryConfig struct {
	// Listen address for /metrics. Empty disables the listener.
	Addr string `toml:"addr"`
}

type Config struct {
	Gossip    GossipConfig    `toml:"gossip"`
	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

func Default() Config {
	return Config{
		Gossip: GossipConfig{IntervalMs: 150},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads the config file at path, or returns defaults when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if cfg.Gossip.IntervalMs <= 0 {
		return Config{}, fmt.Errorf("config %s: gossip.interval_ms must be positive", path)
	}
	return cfg, nil
}

func (c Config) GossipInterval() time.Duration {
	return time.Duration(c.Gossip.IntervalMs) * time.Millisecond
}
