package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carecart/pkg/order"
	"carecart/pkg/pricing"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	opts, err := cfg.ProcessingOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	offsets, err := cfg.StepOffsets()
	require.NoError(t, err)
	assert.Equal(t, order.DefaultStepOffsets(), offsets)
	assert.Equal(t, 5*time.Second, cfg.GetReadTimeout())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Storage, cfg.Storage)
}

func TestLoad_OverridesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carecart.yaml")
	content := `
server:
  port: 9090
storage:
  backend: sqlite
  path: /var/lib/carecart/state.db
processing:
  stages:
    - name: verify-payment
      duration: 1s
    - name: done
      duration: 500ms
  settle_delay: 200ms
  tick_interval: 50ms
tracking:
  step_offsets: [0s, 10s, 1m, 5m, 12m]
tariffs:
  - service: ambulance
    label: Ambulance
    kind: transport
    prices:
      bank-card: 4500
      loyalty-card: 4000
catalog:
  - id: 10
    name: Saline spray
    unitPrice: 390
    unit: bottle
    category: respiratory
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	require.Len(t, cfg.Processing.Stages, 2)
	offsets, err := cfg.StepOffsets()
	require.NoError(t, err)
	assert.Equal(t, 12*time.Minute, offsets[4])
	require.Len(t, cfg.Tariffs, 1)
	assert.Equal(t, int64(4000), cfg.Tariffs[0].Prices[pricing.LoyaltyCard])
	require.Len(t, cfg.Catalog, 1)
	assert.Equal(t, int64(390), cfg.Catalog[0].UnitPrice)
	// untouched sections keep their defaults
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "carecart.yaml")
	cfg := DefaultConfig()
	cfg.Server.Port = 8181
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, loaded.Server.Port)
	assert.Equal(t, cfg.Tariffs, loaded.Tariffs)
	assert.Equal(t, cfg.Catalog, loaded.Catalog)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("CARECART_STORAGE", "memory")
	t.Setenv("CARECART_STORAGE_PATH", "/tmp/cc.json")
	t.Setenv("CARECART_LOG_LEVEL", "debug")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/cc.json", cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Config){
		"port":          func(c *Config) { c.Server.Port = 0 },
		"backend":       func(c *Config) { c.Storage.Backend = "redis" },
		"sqlite path":   func(c *Config) { c.Storage.Backend, c.Storage.Path = BackendSQLite, "" },
		"log format":    func(c *Config) { c.Logging.Format = "xml" },
		"stage":         func(c *Config) { c.Processing.Stages[0].Duration = "soon" },
		"no stages":     func(c *Config) { c.Processing.Stages = nil },
		"offset count":  func(c *Config) { c.Tracking.StepOffsets = []string{"0s"} },
		"tariff method": func(c *Config) { c.Tariffs[0].Prices = map[pricing.PaymentMethod]int64{"cash": 1} },
		"catalog":       func(c *Config) { c.Catalog = append(c.Catalog, c.Catalog[0]) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
