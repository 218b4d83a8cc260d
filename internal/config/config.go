// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is json or text.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds how many accepted batches may wait for a worker.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets how many batches run concurrently.
	WorkerCount int `koanf:"worker_count"`
	// MaxBatchSize caps the records in one batch.
	MaxBatchSize int `koanf:"max_batch_size"`

	StoreDriver string `koanf:"store_driver"`
	SQLitePath  string `koanf:"sqlite_path"`

	EphemerisBaseURL   string `koanf:"ephemeris_base_url"`
	EphemerisTimeoutMS int    `koanf:"ephemeris_timeout_ms"`
	NameCacheTTLSec    int    `koanf:"name_cache_ttl_sec"`

	// ProgressTTLSec is how long finished batches stay pollable.
	ProgressTTLSec int `koanf:"progress_ttl_sec"`

	// NotifyURL is a shoutrrr service URL; "{address}" is replaced by the
	// recipient. Empty disables confirmations.
	NotifyURL string `koanf:"notify_url"`

	// MQTT progress mirroring; disabled when MQTTBroker is empty.
	MQTTBroker   string `koanf:"mqtt_broker"`
	MQTTTopic    string `koanf:"mqtt_topic"`
	MQTTClientID string `koanf:"mqtt_client_id"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "json",
		Addr:               ":9080",
		QueueSize:          256,
		WorkerCount:        runtime.NumCPU(),
		MaxBatchSize:       10_000,
		StoreDriver:        StoreSQLite,
		SQLitePath:         "satobs.db",
		EphemerisBaseURL:   "https://satchecker.cps.iau.org",
		EphemerisTimeoutMS: 10_000,
		NameCacheTTLSec:    3600,
		ProgressTTLSec:     3600,
		MQTTTopic:          "satobs/batches",
		MQTTClientID:       "satobs",
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.MaxBatchSize <= 0:
		return fmt.Errorf("%w: max_batch_size must be positive", ErrInvalidConfig)
	case c.StoreDriver != StoreMemory && c.StoreDriver != StoreSQLite:
		return fmt.Errorf("%w: store_driver must be %q or %q", ErrInvalidConfig, StoreMemory, StoreSQLite)
	case c.StoreDriver == StoreSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	case c.EphemerisBaseURL == "":
		return fmt.Errorf("%w: ephemeris_base_url must not be empty", ErrInvalidConfig)
	case c.EphemerisTimeoutMS <= 0:
		return fmt.Errorf("%w: ephemeris_timeout_ms must be positive", ErrInvalidConfig)
	case c.MQTTBroker != "" && c.MQTTTopic == "":
		return fmt.Errorf("%w: mqtt_topic must not be empty when mqtt_broker is set", ErrInvalidConfig)
	}
	return nil
}

// EphemerisTimeout returns the per-request ephemeris timeout.
func (c *Config) EphemerisTimeout() time.Duration {
	return time.Duration(c.EphemerisTimeoutMS) * time.Millisecond
}

// NameCacheTTL returns how long name lookups are cached.
func (c *Config) NameCacheTTL() time.Duration {
	return time.Duration(c.NameCacheTTLSec) * time.Second
}

// ProgressTTL returns how long finished batches stay pollable.
func (c *Config) ProgressTTL() time.Duration {
	return time.Duration(c.ProgressTTLSec) * time.Second
}
