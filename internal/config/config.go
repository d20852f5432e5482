// Package config loads the runtime's start-time configuration from
// built-in defaults, a YAML file, and environment variables, in that
// order of increasing priority — the same layering the teacher's own
// config loader applies.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/khryptorgraphics/mxtasking/pkg/tasking"
)

// Config is the complete start-time configuration for an mxtasking
// process. Nothing here changes once the runtime has started: worker
// count, NUMA layout, and prefetch strategy are all fixed for a
// query's lifetime.
type Config struct {
	Runtime RuntimeConfig `yaml:"runtime"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Admin   AdminConfig   `yaml:"admin"`
}

// RuntimeConfig controls the worker pool itself.
type RuntimeConfig struct {
	WorkerCount           int           `yaml:"worker_count" mapstructure:"worker_count"`
	BlockSizeBytes         int           `yaml:"block_size_bytes" mapstructure:"block_size_bytes"`
	PrefetchMode           string        `yaml:"prefetch_mode" mapstructure:"prefetch_mode"` // off, fixed, automatic
	PrefetchFixedDistance  int           `yaml:"prefetch_fixed_distance" mapstructure:"prefetch_fixed_distance"`
	MaintenanceInterval    int           `yaml:"maintenance_interval" mapstructure:"maintenance_interval"`
	RecoverTaskPanics      bool          `yaml:"recover_task_panics" mapstructure:"recover_task_panics"`
	ShutdownGracePeriod    time.Duration `yaml:"shutdown_grace_period" mapstructure:"shutdown_grace_period"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// AdminConfig controls the read-only introspection HTTP surface.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// DefaultConfig returns the configuration used when no file, flag, or
// environment variable overrides a field.
func DefaultConfig() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			WorkerCount:           0, // 0 means "one per discovered CPU"
			BlockSizeBytes:        128 << 20,
			PrefetchMode:          "off",
			PrefetchFixedDistance: 2,
			MaintenanceInterval:   256,
			RecoverTaskPanics:     true,
			ShutdownGracePeriod:   5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9090",
			Path:    "/metrics",
		},
		Admin: AdminConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9091",
		},
	}
}

// WriteExample marshals DefaultConfig to YAML and writes it to path,
// giving an operator a starting point to edit rather than having to
// reconstruct mxtasking.yaml's shape from documentation.
func WriteExample(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("config: marshaling example: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing example to %s: %w", path, err)
	}
	return nil
}

// Load reads configFile (if non-empty) or searches the standard
// locations for a mxtasking.yaml, overlays OMX_-prefixed environment
// variables, and unmarshals on top of DefaultConfig.
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("mxtasking")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/mxtasking")
	}

	viper.SetEnvPrefix("OMX")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks field-level invariants Load can't catch via
// unmarshaling alone.
func (c *Config) Validate() error {
	if c.Runtime.WorkerCount < 0 {
		return fmt.Errorf("runtime.worker_count must not be negative")
	}
	switch c.Runtime.PrefetchMode {
	case "off", "fixed", "automatic":
	default:
		return fmt.Errorf("runtime.prefetch_mode must be one of off, fixed, automatic (got %q)", c.Runtime.PrefetchMode)
	}
	if c.Runtime.MaintenanceInterval <= 0 {
		return fmt.Errorf("runtime.maintenance_interval must be positive")
	}
	return nil
}

// PrefetchModeValue translates the config's string form into the enum
// tasking.Config expects.
func (r RuntimeConfig) PrefetchModeValue() tasking.PrefetchMode {
	switch r.PrefetchMode {
	case "fixed":
		return tasking.PrefetchFixed
	case "automatic":
		return tasking.PrefetchAutomatic
	default:
		return tasking.PrefetchOff
	}
}

// TaskingConfig builds a tasking.Config from this RuntimeConfig. The
// logger is supplied separately since internal/logging constructs it
// from LoggingConfig.
func (r RuntimeConfig) TaskingConfig(logger zerolog.Logger) tasking.Config {
	return tasking.Config{
		WorkerCount:           r.WorkerCount,
		BlockSize:             r.BlockSizeBytes,
		PrefetchMode:          r.PrefetchModeValue(),
		PrefetchFixedDistance: r.PrefetchFixedDistance,
		MaintenanceInterval:   r.MaintenanceInterval,
		RecoverTaskPanics:     r.RecoverTaskPanics,
		Logger:                logger,
	}
}
