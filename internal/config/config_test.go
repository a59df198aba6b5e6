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

	assert.Equal(t, "anthropic", cfg.Oracle.Provider)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Oracle.Model)
	assert.Equal(t, 60*time.Second, cfg.Oracle.Timeout())
	assert.Equal(t, 3, cfg.Oracle.Retry.MaxAttempts)
	assert.Equal(t, "postgres", cfg.Warehouse.Driver)
	assert.Equal(t, 30*time.Second, cfg.Warehouse.Timeout())
	assert.Equal(t, 10000, cfg.Warehouse.MaxRows)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "datagenie.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 3, cfg.Pipeline.SynthesisAttempts)
	assert.Equal(t, 2, cfg.Pipeline.SampleRows)
	assert.Equal(t, 5, cfg.Pipeline.PreviewRows)
	assert.True(t, cfg.Pipeline.Visualize)
	assert.Equal(t, 5, cfg.Dashboard.MinQuestions)
	assert.Equal(t, 7, cfg.Dashboard.MaxQuestions)
	assert.Equal(t, 3, cfg.Dashboard.MaxConcurrency)
	assert.Equal(t, "visualizations", cfg.Render.OutputDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
oracle:
  provider: ollama
  model: llama3.1
warehouse:
  driver: sqlite
  database_url: warehouse.db
log:
  level: debug
  format: console
pricing:
  models:
    llama3.1:
      input: 0
      output: 0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Oracle.Provider)
	assert.Equal(t, "llama3.1", cfg.Oracle.Model)
	assert.Equal(t, "sqlite", cfg.Warehouse.Driver)
	assert.Equal(t, "warehouse.db", cfg.Warehouse.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Contains(t, cfg.Pricing.Models, "llama3.1")
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Pipeline.SynthesisAttempts)
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

	t.Setenv("DATAGENIE_STORE_DRIVER", "postgres")
	t.Setenv("DATAGENIE_LOG_LEVEL", "warn")

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

	t.Setenv("DATAGENIE_PIPELINE_SYNTHESIS_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Pipeline.SynthesisAttempts)
}

func TestLoadEnvSecrets(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("DATAGENIE_ORACLE_KEY", "sk-test")
	t.Setenv("DATAGENIE_ORACLE_BASE_URL", "http://localhost:11434")
	t.Setenv("DATAGENIE_WAREHOUSE_DATABASE_URL", "postgres://x")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Oracle.Key)
	assert.Equal(t, "http://localhost:11434", cfg.Oracle.BaseURL)
	assert.Equal(t, "postgres://x", cfg.Warehouse.DatabaseURL)
	assert.NoError(t, cfg.Validate("ask"))
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
	cfg.Oracle.Provider = "anthropic"
	cfg.Oracle.Model = "claude-sonnet-4-5-20250929"
	cfg.Oracle.Key = "sk-ant-key"
	cfg.Warehouse.DatabaseURL = "postgres://localhost/adventureworks"
	cfg.Catalog.Path = "schema/catalog.yaml"
	cfg.Pipeline.SynthesisAttempts = 3
	cfg.Dashboard.MinQuestions = 5
	cfg.Dashboard.MaxQuestions = 7
	cfg.Dashboard.MaxConcurrency = 3
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateAsk_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("ask"))
}

func TestValidateAsk_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Oracle.Key = ""
	cfg.Warehouse.DatabaseURL = ""

	err := cfg.Validate("ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle.key is required")
	assert.Contains(t, err.Error(), "warehouse.database_url is required")
}

func TestValidateAsk_OllamaNeedsNoKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Oracle.Provider = "ollama"
	cfg.Oracle.Key = ""

	assert.NoError(t, cfg.Validate("ask"))
}

func TestValidateAsk_UnknownProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Oracle.Provider = "gemini"

	err := cfg.Validate("ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle.provider must be one of")
}

func TestValidateBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Pipeline.SynthesisAttempts = 0
	err := cfg.Validate("ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesis_attempts")

	cfg.Pipeline.SynthesisAttempts = 3
	cfg.Dashboard.MaxConcurrency = 17
	err = cfg.Validate("ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrency must be between 1 and 16")

	cfg.Dashboard.MaxConcurrency = 3
	cfg.Dashboard.MaxQuestions = 4
	err = cfg.Validate("ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_questions")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	assert.NoError(t, cfg.Validate("ask"))
}

func TestValidateResults(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.Validate("results"))

	cfg.Store.DatabaseURL = "datagenie.db"
	assert.NoError(t, cfg.Validate("results"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
