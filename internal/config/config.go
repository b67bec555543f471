// Package config provides the configuration schema and loader for the
// toolrelay daemon.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ToolConfig configures one remote tool endpoint.
type ToolConfig struct {
	Name           string `yaml:"name"`
	Container      string `yaml:"container"`
	Endpoint       string `yaml:"endpoint"`
	HealthEndpoint string `yaml:"health_endpoint"`
	MaxRetries     int    `yaml:"max_retries"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-attempt timeout as a duration.
func (t ToolConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// StorageConfig configures metric persistence and retention.
type StorageConfig struct {
	// Path is the directory metric documents are written to.
	// Default: logs/metrics.
	Path string `yaml:"path"`

	// RetentionDays is how long persisted points are kept. Default: 7.
	RetentionDays int `yaml:"retention_days"`

	// CleanupIntervalSeconds is the interval between retention sweeps.
	// Default: 3600 (hourly).
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`
}

// CleanupInterval returns the sweep interval as a duration.
func (s StorageConfig) CleanupInterval() time.Duration {
	return time.Duration(s.CleanupIntervalSeconds) * time.Second
}

// DispatchConfig configures the dispatcher's retry and health-sweep
// behavior.
type DispatchConfig struct {
	// RetryBackoffSeconds is the constant wait between retry attempts.
	// Default: 1.
	RetryBackoffSeconds int `yaml:"retry_backoff_seconds"`

	// BackoffStrategy selects the retry wait policy: constant, linear,
	// or exponential. Default: constant.
	BackoffStrategy string `yaml:"backoff_strategy"`

	// HealthSweepSeconds is the interval of the daemon's periodic
	// health sweep over all registered tools. 0 disables the sweep.
	HealthSweepSeconds int `yaml:"health_sweep_seconds"`
}

// RetryBackoff returns the constant backoff wait as a duration.
func (d DispatchConfig) RetryBackoff() time.Duration {
	return time.Duration(d.RetryBackoffSeconds) * time.Second
}

// HealthSweepInterval returns the health sweep interval as a duration.
func (d DispatchConfig) HealthSweepInterval() time.Duration {
	return time.Duration(d.HealthSweepSeconds) * time.Second
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	// MetricsExporter is one of: none, stdout, otlp-grpc, otlp-http.
	MetricsExporter string `yaml:"metrics_exporter"`

	// TracesExporter is one of: none, stdout, otlp-grpc, otlp-http.
	TracesExporter string `yaml:"traces_exporter"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// Config is the root configuration structure for toolrelay.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Tools     []ToolConfig    `yaml:"tools"`
}

// DefaultConfig returns a Config with default values and no tools.
func DefaultConfig() *Config {
	return (&Config{}).WithDefaults()
}

// WithDefaults returns a copy of the config with zero values replaced
// by defaults.
func (c *Config) WithDefaults() *Config {
	result := *c
	if result.Storage.Path == "" {
		result.Storage.Path = "logs/metrics"
	}
	if result.Storage.RetentionDays <= 0 {
		result.Storage.RetentionDays = 7
	}
	if result.Storage.CleanupIntervalSeconds <= 0 {
		result.Storage.CleanupIntervalSeconds = 3600
	}
	if result.Dispatch.RetryBackoffSeconds <= 0 {
		result.Dispatch.RetryBackoffSeconds = 1
	}
	if result.Dispatch.BackoffStrategy == "" {
		result.Dispatch.BackoffStrategy = "constant"
	}
	if result.Telemetry.MetricsExporter == "" {
		result.Telemetry.MetricsExporter = "none"
	}
	if result.Telemetry.TracesExporter == "" {
		result.Telemetry.TracesExporter = "none"
	}
	return &result
}

// Load reads the YAML configuration file at path and returns a
// validated Config with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg = cfg.WithDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validExporters = map[string]bool{
	"none":      true,
	"stdout":    true,
	"otlp-grpc": true,
	"otlp-http": true,
}

var validBackoffStrategies = map[string]bool{
	"constant":    true,
	"linear":      true,
	"exponential": true,
}

// Validate checks that cfg contains a coherent set of values. It
// returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !validBackoffStrategies[cfg.Dispatch.BackoffStrategy] {
		errs = append(errs, fmt.Errorf("dispatch.backoff_strategy %q is invalid; valid values: constant, linear, exponential", cfg.Dispatch.BackoffStrategy))
	}
	if !validExporters[cfg.Telemetry.MetricsExporter] {
		errs = append(errs, fmt.Errorf("telemetry.metrics_exporter %q is invalid; valid values: none, stdout, otlp-grpc, otlp-http", cfg.Telemetry.MetricsExporter))
	}
	if !validExporters[cfg.Telemetry.TracesExporter] {
		errs = append(errs, fmt.Errorf("telemetry.traces_exporter %q is invalid; valid values: none, stdout, otlp-grpc, otlp-http", cfg.Telemetry.TracesExporter))
	}

	seen := make(map[string]bool, len(cfg.Tools))
	for i, tool := range cfg.Tools {
		if tool.Name == "" {
			errs = append(errs, fmt.Errorf("tools[%d]: name is required", i))
		}
		if tool.Endpoint == "" {
			errs = append(errs, fmt.Errorf("tools[%d] (%s): endpoint is required", i, tool.Name))
		}
		if seen[tool.Name] {
			errs = append(errs, fmt.Errorf("tools[%d]: duplicate tool name %q", i, tool.Name))
		}
		seen[tool.Name] = true
		if tool.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("tools[%d] (%s): max_retries cannot be negative", i, tool.Name))
		}
		if tool.TimeoutSeconds < 0 {
			errs = append(errs, fmt.Errorf("tools[%d] (%s): timeout_seconds cannot be negative", i, tool.Name))
		}
	}

	return errors.Join(errs...)
}
