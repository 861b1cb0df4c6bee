// Package config loads the carecart YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"carecart/pkg/cart"
	"carecart/pkg/catalog"
	"carecart/pkg/order"
	"carecart/pkg/pricing"
	"carecart/pkg/processing"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSnapshot = "snapshot"
	BackendSQLite   = "sqlite"
)

// Config holds all carecart configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Processing ProcessingConfig `yaml:"processing"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Tariffs    []pricing.Tariff `yaml:"tariffs"`
	Catalog    []cart.Product   `yaml:"catalog"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port"`
	// Domain switches to HTTPS on :443 with an HTTP redirect on :80.
	Domain          string `yaml:"domain"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StorageConfig selects the durable key-value backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StageConfig is one settlement stage.
type StageConfig struct {
	Name     string `yaml:"name"`
	Duration string `yaml:"duration"`
}

// ProcessingConfig tunes the settlement simulation.
type ProcessingConfig struct {
	Stages       []StageConfig `yaml:"stages"`
	SettleDelay  string        `yaml:"settle_delay"`
	TickInterval string        `yaml:"tick_interval"`
}

// TrackingConfig tunes when order steps complete, relative to order creation.
type TrackingConfig struct {
	StepOffsets []string `yaml:"step_offsets"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	stages := processing.DefaultStages()
	stageConfigs := make([]StageConfig, len(stages))
	for i, st := range stages {
		stageConfigs[i] = StageConfig{Name: st.Name, Duration: st.Duration.String()}
	}
	offsets := order.DefaultStepOffsets()
	offsetStrings := make([]string, len(offsets))
	for i, off := range offsets {
		offsetStrings[i] = off.String()
	}
	return &Config{
		Server: ServerConfig{
			Port:            8765,
			ReadTimeout:     "5s",
			WriteTimeout:    "10s",
			ShutdownTimeout: "5s",
		},
		Storage: StorageConfig{
			Backend: BackendSnapshot,
			Path:    "carecart.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Processing: ProcessingConfig{
			Stages:       stageConfigs,
			SettleDelay:  processing.DefaultSettleDelay.String(),
			TickInterval: processing.DefaultTickInterval.String(),
		},
		Tracking: TrackingConfig{StepOffsets: offsetStrings},
		Tariffs:  pricing.DefaultTariffs(),
		Catalog:  catalog.DefaultProducts(),
	}
}

// Load loads configuration from a YAML file. A missing file, or an empty path, yields the
// defaults. Environment overrides apply in every case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if backend := os.Getenv("CARECART_STORAGE"); backend != "" {
		c.Storage.Backend = backend
	}
	if path := os.Getenv("CARECART_STORAGE_PATH"); path != "" {
		c.Storage.Path = path
	}
	if level := os.Getenv("CARECART_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSnapshot, BackendSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage backend %s needs a path", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (valid: memory, snapshot, sqlite)", c.Storage.Backend)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}
	if _, err := c.ProcessingOptions(); err != nil {
		return err
	}
	if _, err := c.StepOffsets(); err != nil {
		return err
	}
	if _, err := pricing.NewTariffs(c.Tariffs); err != nil {
		return fmt.Errorf("invalid tariffs: %w", err)
	}
	if _, err := catalog.New(c.Catalog); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	return nil
}

// ProcessingOptions converts the processing section into simulator options.
func (c *Config) ProcessingOptions() ([]processing.Option, error) {
	stages := make([]processing.Stage, 0, len(c.Processing.Stages))
	for _, st := range c.Processing.Stages {
		d, err := time.ParseDuration(st.Duration)
		if err != nil {
			return nil, fmt.Errorf("stage %q: invalid duration: %w", st.Name, err)
		}
		stages = append(stages, processing.Stage{Name: st.Name, Duration: d})
	}
	if len(stages) == 0 {
		return nil, processing.ErrNoStages
	}
	settle, err := time.ParseDuration(c.Processing.SettleDelay)
	if err != nil {
		return nil, fmt.Errorf("invalid settle delay: %w", err)
	}
	tick, err := time.ParseDuration(c.Processing.TickInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid tick interval: %w", err)
	}
	return []processing.Option{
		processing.WithStages(stages),
		processing.WithSettleDelay(settle),
		processing.WithTickInterval(tick),
	}, nil
}

// StepOffsets parses the tracking offsets.
func (c *Config) StepOffsets() ([]time.Duration, error) {
	if len(c.Tracking.StepOffsets) != order.StepCount {
		return nil, fmt.Errorf("tracking needs %d step offsets, got %d", order.StepCount, len(c.Tracking.StepOffsets))
	}
	offsets := make([]time.Duration, len(c.Tracking.StepOffsets))
	for i, raw := range c.Tracking.StepOffsets {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("step offset %d: %w", i, err)
		}
		offsets[i] = d
	}
	return offsets, nil
}

// GetReadTimeout returns the server read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return parseOr(c.Server.ReadTimeout, 5*time.Second)
}

// GetWriteTimeout returns the server write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseOr(c.Server.WriteTimeout, 10*time.Second)
}

// GetShutdownTimeout returns how long in-flight requests may take on shutdown.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseOr(c.Server.ShutdownTimeout, 5*time.Second)
}

func parseOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
