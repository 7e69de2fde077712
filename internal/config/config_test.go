package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.Pool.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.Pool.MinConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Queue.Concurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.PollInterval)
	assert.InDelta(t, 50, cfg.Queue.ClaimRate, 0.001)
	assert.InDelta(t, 4.0, cfg.Workflow.AcceptThreshold, 0.001)
	assert.InDelta(t, 2.0, cfg.Workflow.ReviewThreshold, 0.001)
	assert.InDelta(t, 0.95, cfg.Workflow.CancelConfidence, 0.001)
	assert.InDelta(t, 0.6, cfg.Workflow.ConfirmConfidence, 0.001)
	assert.Equal(t, 5, cfg.Workflow.MaxCompanies)
	assert.Equal(t, 3, cfg.Workflow.MaxPersonVerifications)
	assert.Equal(t, "ccod", cfg.Workflow.DatasetLabel)
	assert.Equal(t, "ccod", cfg.Dataset.Label)
	assert.Equal(t, "https://api.company-information.service.gov.uk", cfg.CompaniesHouse.BaseURL)
	assert.InDelta(t, 2, cfg.CompaniesHouse.RateLimit, 0.001)
	assert.InDelta(t, 1, cfg.OpenRegister.RateLimit, 0.001)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, ".", cfg.Export.XLSXDir)
	assert.Equal(t, "https://login.salesforce.com", cfg.Export.Salesforce.LoginURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  database_url: resolutions.db
log:
  level: debug
  format: console
server:
  port: 9090
workflow:
  accept_threshold: 4.5
  max_companies: 3
queue:
  concurrency: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "resolutions.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 4.5, cfg.Workflow.AcceptThreshold, 0.001)
	assert.Equal(t, 3, cfg.Workflow.MaxCompanies)
	assert.Equal(t, 8, cfg.Queue.Concurrency)
	// Defaults still apply for unset values
	assert.InDelta(t, 2.0, cfg.Workflow.ReviewThreshold, 0.001)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.PollInterval)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("MARKETOFFER_STORE_DRIVER", "postgres")
	t.Setenv("MARKETOFFER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("MARKETOFFER_SERVER_PORT", "3000")
	t.Setenv("MARKETOFFER_COMPANIES_HOUSE_KEY", "ch-key")
	t.Setenv("MARKETOFFER_STORE_DATABASE_URL", "postgres://worker@db/marketoffer")
	t.Setenv("MARKETOFFER_ANTHROPIC_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "ch-key", cfg.CompaniesHouse.Key)
	assert.Equal(t, "postgres://worker@db/marketoffer", cfg.Store.DatabaseURL)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Queue.Concurrency = 4
	cfg.Workflow.AcceptThreshold = 4.0
	cfg.Workflow.ReviewThreshold = 2.0
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateWorker_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/resolutions"
	cfg.CompaniesHouse.Key = "ch-key"
	cfg.OpenRegister.Key = "or-key"
	cfg.OpenRegister.BaseURL = "https://api.t2a.io/rest"
	cfg.LandRegistry.BaseURL = "https://landregistry.data.gov.uk"

	assert.NoError(t, cfg.Validate("worker"))
}

func TestValidateWorker_MissingFields(t *testing.T) {
	cfg := validDefaults()
	// All worker-required fields are empty

	err := cfg.Validate("worker")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "companies_house.key is required")
	assert.Contains(t, err.Error(), "open_register.key")
	assert.Contains(t, err.Error(), "land_registry.base_url is required")
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/resolutions"
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/resolutions"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateDataset(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/resolutions"

	err := cfg.Validate("dataset")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "dataset.source_url is required")

	cfg.Dataset.SourceURL = "ftp://data.example.com/ccod.csv"
	assert.NoError(t, cfg.Validate("dataset"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/resolutions"

	cfg.Queue.Concurrency = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue.concurrency must be between 1 and 64")

	cfg.Queue.Concurrency = 65
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "queue.concurrency must be between 1 and 64")

	cfg.Queue.Concurrency = 64
	err = cfg.Validate("serve")
	assert.NoError(t, err)
}

func TestValidateThresholdOrder(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = "postgres://localhost/resolutions"

	cfg.Workflow.AcceptThreshold = 1.5
	cfg.Workflow.ReviewThreshold = 2.0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "accept_threshold must exceed review_threshold")

	cfg.Workflow.ReviewThreshold = -1
	cfg.Workflow.AcceptThreshold = 4.0
	err = cfg.Validate("serve")
	assert.Error(t, err)

	cfg.Workflow.ReviewThreshold = 2.0
	err = cfg.Validate("serve")
	assert.NoError(t, err)
}
