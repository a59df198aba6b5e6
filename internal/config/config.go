package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Oracle    OracleConfig    `yaml:"oracle" mapstructure:"oracle"`
	Warehouse WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`
	Render    RenderConfig    `yaml:"render" mapstructure:"render"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
}

// OracleConfig configures the language-model backend.
type OracleConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"`
	Model       string        `yaml:"model" mapstructure:"model"`
	Key         string        `yaml:"key" mapstructure:"key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens   int64         `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int           `yaml:"burst" mapstructure:"burst"`
	Retry       RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit     CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// Timeout returns the per-call oracle timeout.
func (c OracleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RetryConfig configures transport-level retries for transient oracle errors.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the oracle circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// WarehouseConfig configures the analytical SQL engine.
type WarehouseConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRows     int    `yaml:"max_rows" mapstructure:"max_rows"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// Timeout returns the per-statement execution timeout.
func (c WarehouseConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// StoreConfig configures the run/results database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CatalogConfig points at the schema catalog used as grounding context.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig configures stage behavior.
type PipelineConfig struct {
	SynthesisAttempts int  `yaml:"synthesis_attempts" mapstructure:"synthesis_attempts"`
	SampleRows        int  `yaml:"sample_rows" mapstructure:"sample_rows"`
	PreviewRows       int  `yaml:"preview_rows" mapstructure:"preview_rows"`
	Visualize         bool `yaml:"visualize" mapstructure:"visualize"`
}

// DashboardConfig configures dashboard fan-out.
type DashboardConfig struct {
	MinQuestions   int    `yaml:"min_questions" mapstructure:"min_questions"`
	MaxQuestions   int    `yaml:"max_questions" mapstructure:"max_questions"`
	MaxConcurrency int    `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	Title          string `yaml:"title" mapstructure:"title"`
}

// RenderConfig configures chart and dashboard output.
type RenderConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PricingConfig holds per-model token pricing.
type PricingConfig struct {
	Models map[string]ModelPricing `yaml:"models" mapstructure:"models"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DATAGENIE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("oracle.provider", "anthropic")
	v.SetDefault("oracle.key", "")
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("oracle.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("oracle.max_tokens", 2048)
	v.SetDefault("oracle.temperature", 0.2)
	v.SetDefault("oracle.timeout_secs", 60)
	v.SetDefault("oracle.rate_per_sec", 5.0)
	v.SetDefault("oracle.burst", 5)
	v.SetDefault("oracle.retry.max_attempts", 3)
	v.SetDefault("oracle.retry.initial_backoff_ms", 500)
	v.SetDefault("oracle.retry.max_backoff_ms", 10000)
	v.SetDefault("oracle.retry.multiplier", 2.0)
	v.SetDefault("oracle.retry.jitter_fraction", 0.25)
	v.SetDefault("oracle.circuit.failure_threshold", 5)
	v.SetDefault("oracle.circuit.reset_timeout_secs", 30)
	v.SetDefault("warehouse.driver", "postgres")
	v.SetDefault("warehouse.database_url", "")
	v.SetDefault("warehouse.timeout_secs", 30)
	v.SetDefault("warehouse.max_rows", 10000)
	v.SetDefault("warehouse.max_conns", 10)
	v.SetDefault("warehouse.min_conns", 1)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "datagenie.db")
	v.SetDefault("catalog.path", "schema/catalog.yaml")
	v.SetDefault("pipeline.synthesis_attempts", 3)
	v.SetDefault("pipeline.sample_rows", 2)
	v.SetDefault("pipeline.preview_rows", 5)
	v.SetDefault("pipeline.visualize", true)
	v.SetDefault("dashboard.min_questions", 5)
	v.SetDefault("dashboard.max_questions", 7)
	v.SetDefault("dashboard.max_concurrency", 3)
	v.SetDefault("dashboard.title", "Executive Dashboard")
	v.SetDefault("render.output_dir", "visualizations")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command mode depends on. Modes: "ask", "serve",
// "results".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "ask", "serve":
		switch c.Oracle.Provider {
		case "anthropic", "openai":
			if c.Oracle.Key == "" {
				errs = append(errs, "oracle.key is required for provider "+c.Oracle.Provider)
			}
		case "ollama":
		default:
			errs = append(errs, "oracle.provider must be one of anthropic, openai, ollama")
		}
		if c.Oracle.Model == "" {
			errs = append(errs, "oracle.model is required")
		}
		if c.Warehouse.DatabaseURL == "" {
			errs = append(errs, "warehouse.database_url is required")
		}
		if c.Catalog.Path == "" {
			errs = append(errs, "catalog.path is required")
		}
		if c.Pipeline.SynthesisAttempts < 1 {
			errs = append(errs, "pipeline.synthesis_attempts must be >= 1")
		}
		if c.Dashboard.MaxConcurrency < 1 || c.Dashboard.MaxConcurrency > 16 {
			errs = append(errs, "dashboard.max_concurrency must be between 1 and 16")
		}
		if c.Dashboard.MinQuestions < 1 || c.Dashboard.MaxQuestions < c.Dashboard.MinQuestions {
			errs = append(errs, "dashboard.min_questions must be >= 1 and <= dashboard.max_questions")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "results":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
