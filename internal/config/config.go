// Package config loads rangingd's layered configuration using koanf/v2:
// built-in defaults, then a YAML file, then environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the complete rangingd configuration.
type Config struct {
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Ranging RangingConfig `koanf:"ranging"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9500").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
}

// RangingConfig holds the timeouts and limits from §5, all tunable so
// integration tests can shrink them (e.g. the 30s disconnect timeout) rather
// than wait on production-sized deadlines.
type RangingConfig struct {
	// CapabilityTimeout bounds the OOB capability exchange.
	CapabilityTimeout time.Duration `koanf:"capability_timeout"`
	// ConfigTimeout bounds the OOB configuration exchange.
	ConfigTimeout time.Duration `koanf:"config_timeout"`
	// StartTimeout bounds the OOB start exchange.
	StartTimeout time.Duration `koanf:"start_timeout"`
	// StopTimeout bounds the OOB stop exchange.
	StopTimeout time.Duration `koanf:"stop_timeout"`
	// DisconnectTimeout bounds how long a connection manager connection
	// stays DISCONNECTED before it is forced CLOSED.
	DisconnectTimeout time.Duration `koanf:"disconnect_timeout"`
	// FusionDriftTimeout bounds how long the fusion collaborator may stay
	// silent before measurements fall back to raw adapter output.
	FusionDriftTimeout time.Duration `koanf:"fusion_drift_timeout"`
	// SessionStopDeadline bounds how long Session.Stop waits for adapters to
	// drain before abandoning any still-open one.
	SessionStopDeadline time.Duration `koanf:"session_stop_deadline"`
	// MaxSessions is the per-process session cap (§4.1).
	MaxSessions int `koanf:"max_sessions"`
	// MaxConcurrentNegotiations bounds how many peers may run OOB
	// negotiation at once, across every session; 0 leaves it unbounded.
	MaxConcurrentNegotiations int64 `koanf:"max_concurrent_negotiations"`
}

// DefaultConfig returns a Config populated with the §5 timeout defaults.
func DefaultConfig() *Config {
	return &Config{
		Metrics: MetricsConfig{
			Addr: ":9500",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
		Ranging: RangingConfig{
			CapabilityTimeout:   5 * time.Second,
			ConfigTimeout:       5 * time.Second,
			StartTimeout:        10 * time.Second,
			StopTimeout:         10 * time.Second,
			DisconnectTimeout:   30 * time.Second,
			FusionDriftTimeout:  5 * time.Second,
			SessionStopDeadline:       3 * time.Second,
			MaxSessions:               256,
			MaxConcurrentNegotiations: 32,
		},
	}
}

// envPrefix is the environment variable prefix for rangingd configuration.
// Variables are named RANGINGD_<section>_<key>, e.g. RANGINGD_METRICS_ADDR.
const envPrefix = "RANGINGD_"

// Load reads configuration from a YAML file at path (if path is non-empty;
// a path that cannot be read is an error), overlays environment variable
// overrides, and merges on top of DefaultConfig(). Missing fields inherit
// defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	// Only the first underscore separates section from key, so keys that
	// contain underscores (max_sessions) survive the mapping.
	return strings.Replace(s, "_", ".", 1)
}

func loadDefaults(k *koanf.Koanf, d *Config) error {
	defaultMap := map[string]any{
		"metrics.addr":                 d.Metrics.Addr,
		"metrics.path":                 d.Metrics.Path,
		"log.level":                    d.Log.Level,
		"ranging.capability_timeout":    d.Ranging.CapabilityTimeout.String(),
		"ranging.config_timeout":        d.Ranging.ConfigTimeout.String(),
		"ranging.start_timeout":         d.Ranging.StartTimeout.String(),
		"ranging.stop_timeout":          d.Ranging.StopTimeout.String(),
		"ranging.disconnect_timeout":    d.Ranging.DisconnectTimeout.String(),
		"ranging.fusion_drift_timeout":  d.Ranging.FusionDriftTimeout.String(),
		"ranging.session_stop_deadline":         d.Ranging.SessionStopDeadline.String(),
		"ranging.max_sessions":                  d.Ranging.MaxSessions,
		"ranging.max_concurrent_negotiations":    d.Ranging.MaxConcurrentNegotiations,
	}
	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

// Validation errors.
var (
	ErrEmptyMetricsAddr  = errors.New("metrics.addr must not be empty")
	ErrInvalidMaxSessions = errors.New("ranging.max_sessions must be >= 1")
	ErrInvalidTimeout     = errors.New("ranging timeout fields must be > 0")
)

// Validate checks the configuration for logical errors, returning the first
// one encountered.
func Validate(cfg *Config) error {
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}
	if cfg.Ranging.MaxSessions < 1 {
		return ErrInvalidMaxSessions
	}
	for _, d := range []time.Duration{
		cfg.Ranging.CapabilityTimeout,
		cfg.Ranging.ConfigTimeout,
		cfg.Ranging.StartTimeout,
		cfg.Ranging.StopTimeout,
		cfg.Ranging.DisconnectTimeout,
		cfg.Ranging.FusionDriftTimeout,
		cfg.Ranging.SessionStopDeadline,
	} {
		if d <= 0 {
			return ErrInvalidTimeout
		}
	}
	return nil
}
