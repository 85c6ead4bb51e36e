package timer

import (
	"time"

	"github.com/shellbound/focuscircle/internal/config"
)

// Config controls sweep cadence and batch sizes.
type Config struct {
	Tick             time.Duration
	SyncEvery        time.Duration
	HeartbeatTimeout time.Duration
	// Retention is how long a terminal circle's event stream stays
	// subscribable before the hub frees it.
	Retention time.Duration
	BatchSize int
}

func DefaultConfig() Config {
	return Config{
		Tick:             time.Second,
		SyncEvery:        15 * time.Second,
		HeartbeatTimeout: 90 * time.Second,
		Retention:        5 * time.Minute,
		BatchSize:        100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Tick <= 0 {
		c.Tick = defaults.Tick
	}
	if c.SyncEvery <= 0 {
		c.SyncEvery = defaults.SyncEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = defaults.HeartbeatTimeout
	}
	if c.Retention <= 0 {
		c.Retention = defaults.Retention
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Tick:             cfg.TimerTick,
		SyncEvery:        cfg.TimerSyncEvery,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		Retention:        cfg.CodeGrace,
	}.withDefaults()
}
