package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logger         LoggerConfig         `mapstructure:"logger"`
	AI             AIConfig             `mapstructure:"ai"`
	OpenAI         OpenAIConfig         `mapstructure:"openai"`
	PDF            PDFConfig            `mapstructure:"pdf"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Usage          UsageConfig          `mapstructure:"usage"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Lark           LarkConfig           `mapstructure:"lark"`
	CORS           CORSConfig           `mapstructure:"cors"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	Environment     string        `mapstructure:"environment"`
	Version         string        `mapstructure:"version"`
}

// IsDevelopment reports whether internal error messages may be exposed
func (s ServerConfig) IsDevelopment() bool {
	return strings.EqualFold(s.Environment, "development")
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// AIConfig gates and bounds the extraction step
type AIConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MockMode          bool          `mapstructure:"mock_mode"`
	ExtractionTimeout time.Duration `mapstructure:"extraction_timeout"`
	MaxDocumentBytes  int64         `mapstructure:"max_document_bytes"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	ImageDetail string  `mapstructure:"image_detail"`
	PromptsPath string  `mapstructure:"prompts_path"`
}

// PDFConfig controls first-page rasterization
type PDFConfig struct {
	Format  string `mapstructure:"format"`
	Quality int    `mapstructure:"quality"`
}

// RateLimitConfig holds the fixed-window limiter settings
type RateLimitConfig struct {
	Backend       string `mapstructure:"backend"`
	Requests      int    `mapstructure:"requests"`
	WindowMS      int64  `mapstructure:"window_ms"`
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// Window returns the window length as a duration
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMS) * time.Millisecond
}

// ModelPriceConfig is the per-1K-token price of one model
type ModelPriceConfig struct {
	InputPer1K  float64 `mapstructure:"input_per_1k"`
	OutputPer1K float64 `mapstructure:"output_per_1k"`
}

// UsageConfig holds ledger storage and budget ceilings
type UsageConfig struct {
	Store               string                      `mapstructure:"store"`
	DailyCostLimit      float64                     `mapstructure:"daily_cost_limit"`
	DailyRequestLimit   int                         `mapstructure:"daily_request_limit"`
	InputTokenShare     float64                     `mapstructure:"input_token_share"`
	BudgetCheckSchedule string                      `mapstructure:"budget_check_schedule"`
	Pricing             map[string]ModelPriceConfig `mapstructure:"pricing"`
}

// ReconciliationConfig holds comparison thresholds and confidence weights
type ReconciliationConfig struct {
	Matcher              string  `mapstructure:"matcher"`
	PriceTolerancePct    float64 `mapstructure:"price_tolerance_pct"`
	LowSeverityMaxPct    float64 `mapstructure:"low_severity_max_pct"`
	MediumSeverityMaxPct float64 `mapstructure:"medium_severity_max_pct"`
	ArithmeticTolerance  float64 `mapstructure:"arithmetic_tolerance"`
	TaxTolerance         float64 `mapstructure:"tax_tolerance"`
	HighRiskAmount       float64 `mapstructure:"high_risk_amount"`
	ActionableConfidence float64 `mapstructure:"actionable_confidence"`
	LowPenalty           float64 `mapstructure:"low_penalty"`
	MediumPenalty        float64 `mapstructure:"medium_penalty"`
	HighPenalty          float64 `mapstructure:"high_penalty"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds the shared limiter backend connection
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// LarkConfig holds Lark API configuration used for budget alerts
type LarkConfig struct {
	AppID       string        `mapstructure:"app_id"`
	AppSecret   string        `mapstructure:"app_secret"`
	AlertChatID string        `mapstructure:"alert_chat_id"`
	APITimeout  time.Duration `mapstructure:"api_timeout"`
}

// Enabled reports whether budget alerts should go to a Lark chat
func (l LarkConfig) Enabled() bool {
	return l.AppID != "" && l.AppSecret != "" && l.AlertChatID != ""
}

// CORSConfig holds allowed cross-origin settings
type CORSConfig struct {
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MaxAge         time.Duration `mapstructure:"max_age"`
}

// Load loads configuration from an optional file and environment variables.
// A missing file is not an error; every key has a default.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", 15<<20)
	v.SetDefault("server.environment", "production")
	v.SetDefault("server.version", "1.0.0")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// AI defaults
	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.mock_mode", false)
	v.SetDefault("ai.extraction_timeout", 60*time.Second)
	v.SetDefault("ai.max_document_bytes", 10<<20)

	// OpenAI defaults
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.max_tokens", 2000)
	v.SetDefault("openai.image_detail", "high")

	// PDF defaults
	v.SetDefault("pdf.format", "png")
	v.SetDefault("pdf.quality", 90)

	// Rate limit defaults
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window_ms", 15*60*1000)
	v.SetDefault("rate_limit.sweep_schedule", "@every 1m")

	// Usage defaults
	v.SetDefault("usage.store", "memory")
	v.SetDefault("usage.daily_cost_limit", 50.0)
	v.SetDefault("usage.daily_request_limit", 1000)
	v.SetDefault("usage.input_token_share", 0.8)
	v.SetDefault("usage.budget_check_schedule", "@every 15m")
	v.SetDefault("usage.pricing", map[string]interface{}{
		"gpt-4o":      map[string]interface{}{"input_per_1k": 0.0025, "output_per_1k": 0.01},
		"gpt-4o-mini": map[string]interface{}{"input_per_1k": 0.00015, "output_per_1k": 0.0006},
		"gpt-4-turbo": map[string]interface{}{"input_per_1k": 0.01, "output_per_1k": 0.03},
	})

	// Reconciliation defaults
	v.SetDefault("reconciliation.matcher", "default")
	v.SetDefault("reconciliation.price_tolerance_pct", 1.0)
	v.SetDefault("reconciliation.low_severity_max_pct", 10.0)
	v.SetDefault("reconciliation.medium_severity_max_pct", 15.0)
	v.SetDefault("reconciliation.arithmetic_tolerance", 0.01)
	v.SetDefault("reconciliation.tax_tolerance", 1.0)
	v.SetDefault("reconciliation.high_risk_amount", 1000.0)
	v.SetDefault("reconciliation.actionable_confidence", 0.5)
	v.SetDefault("reconciliation.low_penalty", 0.02)
	v.SetDefault("reconciliation.medium_penalty", 0.08)
	v.SetDefault("reconciliation.high_penalty", 0.2)

	// Database defaults
	v.SetDefault("database.path", "data/usage.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "ratelimit:")

	// Lark defaults
	v.SetDefault("lark.api_timeout", 30*time.Second)

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.max_age", 12*time.Hour)
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("server.environment", "APP_ENV")
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("logger.level", "LOG_LEVEL")

	_ = v.BindEnv("ai.enabled", "ENABLE_AI_FEATURES")
	_ = v.BindEnv("ai.mock_mode", "AI_MOCK_MODE")

	// Sensitive credentials from environment
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.model", "OPENAI_MODEL")
	_ = v.BindEnv("openai.base_url", "OPENAI_BASE_URL")

	_ = v.BindEnv("rate_limit.requests", "API_RATE_LIMIT_REQUESTS")
	_ = v.BindEnv("rate_limit.window_ms", "API_RATE_LIMIT_WINDOW_MS")
	_ = v.BindEnv("rate_limit.backend", "API_RATE_LIMIT_BACKEND")

	_ = v.BindEnv("usage.daily_cost_limit", "USAGE_DAILY_COST_LIMIT")
	_ = v.BindEnv("usage.daily_request_limit", "USAGE_DAILY_REQUEST_LIMIT")
	_ = v.BindEnv("usage.store", "USAGE_STORE")

	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")

	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.alert_chat_id", "LARK_ALERT_CHAT_ID")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// A real extractor needs credentials; mock mode does not
	if c.AI.Enabled && !c.AI.MockMode && c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required unless ai.mock_mode is set")
	}
	if c.AI.ExtractionTimeout <= 0 {
		return fmt.Errorf("ai.extraction_timeout must be positive")
	}
	if c.AI.MaxDocumentBytes <= 0 {
		return fmt.Errorf("ai.max_document_bytes must be positive")
	}

	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("rate_limit.requests must be positive")
	}
	if c.RateLimit.WindowMS <= 0 {
		return fmt.Errorf("rate_limit.window_ms must be positive")
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("rate_limit.backend must be memory or redis, got %q", c.RateLimit.Backend)
	}

	switch c.Usage.Store {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite usage store")
		}
	default:
		return fmt.Errorf("usage.store must be memory or sqlite, got %q", c.Usage.Store)
	}
	if c.Usage.DailyCostLimit < 0 || c.Usage.DailyRequestLimit < 0 {
		return fmt.Errorf("usage limits must not be negative")
	}
	if c.Usage.InputTokenShare < 0 || c.Usage.InputTokenShare > 1 {
		return fmt.Errorf("usage.input_token_share must be between 0 and 1")
	}

	r := c.Reconciliation
	if r.LowSeverityMaxPct > r.MediumSeverityMaxPct {
		return fmt.Errorf("reconciliation.low_severity_max_pct must not exceed medium_severity_max_pct")
	}
	if r.ActionableConfidence < 0 || r.ActionableConfidence > 1 {
		return fmt.Errorf("reconciliation.actionable_confidence must be between 0 and 1")
	}

	switch c.PDF.Format {
	case "png", "jpeg":
	default:
		return fmt.Errorf("pdf.format must be png or jpeg, got %q", c.PDF.Format)
	}

	return nil
}
