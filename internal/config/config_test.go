package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebas/rangingcore/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Metrics.Addr != ":9500" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9500")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Ranging.CapabilityTimeout != 5*time.Second {
		t.Errorf("Ranging.CapabilityTimeout = %v, want %v", cfg.Ranging.CapabilityTimeout, 5*time.Second)
	}
	if cfg.Ranging.ConfigTimeout != 5*time.Second {
		t.Errorf("Ranging.ConfigTimeout = %v, want %v", cfg.Ranging.ConfigTimeout, 5*time.Second)
	}
	if cfg.Ranging.StartTimeout != 10*time.Second {
		t.Errorf("Ranging.StartTimeout = %v, want %v", cfg.Ranging.StartTimeout, 10*time.Second)
	}
	if cfg.Ranging.StopTimeout != 10*time.Second {
		t.Errorf("Ranging.StopTimeout = %v, want %v", cfg.Ranging.StopTimeout, 10*time.Second)
	}
	if cfg.Ranging.DisconnectTimeout != 30*time.Second {
		t.Errorf("Ranging.DisconnectTimeout = %v, want %v", cfg.Ranging.DisconnectTimeout, 30*time.Second)
	}
	if cfg.Ranging.MaxSessions != 256 {
		t.Errorf("Ranging.MaxSessions = %d, want 256", cfg.Ranging.MaxSessions)
	}
	if cfg.Ranging.MaxConcurrentNegotiations != 32 {
		t.Errorf("Ranging.MaxConcurrentNegotiations = %d, want 32", cfg.Ranging.MaxConcurrentNegotiations)
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
metrics:
  addr: ":9600"
  path: "/custom-metrics"
log:
  level: "debug"
ranging:
  capability_timeout: "1s"
  start_timeout: "2s"
  max_sessions: 16
  max_concurrent_negotiations: 4
`
	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9600" {
		t.Errorf("Metrics.Addr = %q, want %q", cfg.Metrics.Addr, ":9600")
	}
	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/custom-metrics")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Ranging.CapabilityTimeout != time.Second {
		t.Errorf("Ranging.CapabilityTimeout = %v, want %v", cfg.Ranging.CapabilityTimeout, time.Second)
	}
	if cfg.Ranging.StartTimeout != 2*time.Second {
		t.Errorf("Ranging.StartTimeout = %v, want %v", cfg.Ranging.StartTimeout, 2*time.Second)
	}
	if cfg.Ranging.MaxSessions != 16 {
		t.Errorf("Ranging.MaxSessions = %d, want 16", cfg.Ranging.MaxSessions)
	}
	if cfg.Ranging.MaxConcurrentNegotiations != 4 {
		t.Errorf("Ranging.MaxConcurrentNegotiations = %d, want 4", cfg.Ranging.MaxConcurrentNegotiations)
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: only override log.level and ranging.max_sessions.
	// Everything else should inherit from defaults.
	yamlContent := `
log:
  level: "warn"
ranging:
  max_sessions: 8
`
	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
	if cfg.Ranging.MaxSessions != 8 {
		t.Errorf("Ranging.MaxSessions = %d, want 8", cfg.Ranging.MaxSessions)
	}

	// Default values should be preserved.
	if cfg.Metrics.Addr != ":9500" {
		t.Errorf("Metrics.Addr = %q, want default %q", cfg.Metrics.Addr, ":9500")
	}
	if cfg.Ranging.StopTimeout != 10*time.Second {
		t.Errorf("Ranging.StopTimeout = %v, want default %v", cfg.Ranging.StopTimeout, 10*time.Second)
	}
	if cfg.Ranging.MaxConcurrentNegotiations != 32 {
		t.Errorf("Ranging.MaxConcurrentNegotiations = %d, want default 32", cfg.Ranging.MaxConcurrentNegotiations)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name: "empty metrics addr",
			modify: func(cfg *config.Config) {
				cfg.Metrics.Addr = ""
			},
			wantErr: config.ErrEmptyMetricsAddr,
		},
		{
			name: "zero max sessions",
			modify: func(cfg *config.Config) {
				cfg.Ranging.MaxSessions = 0
			},
			wantErr: config.ErrInvalidMaxSessions,
		},
		{
			name: "negative max sessions",
			modify: func(cfg *config.Config) {
				cfg.Ranging.MaxSessions = -1
			},
			wantErr: config.ErrInvalidMaxSessions,
		},
		{
			name: "zero capability timeout",
			modify: func(cfg *config.Config) {
				cfg.Ranging.CapabilityTimeout = 0
			},
			wantErr: config.ErrInvalidTimeout,
		},
		{
			name: "negative stop timeout",
			modify: func(cfg *config.Config) {
				cfg.Ranging.StopTimeout = -time.Second
			},
			wantErr: config.ErrInvalidTimeout,
		},
		{
			name: "zero session stop deadline",
			modify: func(cfg *config.Config) {
				cfg.Ranging.SessionStopDeadline = 0
			},
			wantErr: config.ErrInvalidTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/path/rangingd.yml")
	if err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	// Environment variable tests cannot be parallel because they modify
	// process-wide state (os.Setenv).

	yamlContent := `
log:
  level: "info"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("RANGINGD_LOG_LEVEL", "debug")
	t.Setenv("RANGINGD_RANGING_MAX_SESSIONS", "4")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (from env)", cfg.Log.Level, "debug")
	}
	if cfg.Ranging.MaxSessions != 4 {
		t.Errorf("Ranging.MaxSessions = %d, want 4 (from env)", cfg.Ranging.MaxSessions)
	}
}

func TestLoadEnvOverridesMetrics(t *testing.T) {
	yamlContent := `
metrics:
  addr: ":9500"
  path: "/metrics"
`
	path := writeTemp(t, yamlContent)

	t.Setenv("RANGINGD_METRICS_ADDR", ":9700")
	t.Setenv("RANGINGD_METRICS_PATH", "/custom")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Metrics.Addr != ":9700" {
		t.Errorf("Metrics.Addr = %q, want %q (from env)", cfg.Metrics.Addr, ":9700")
	}
	if cfg.Metrics.Path != "/custom" {
		t.Errorf("Metrics.Path = %q, want %q (from env)", cfg.Metrics.Path, "/custom")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "rangingd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
