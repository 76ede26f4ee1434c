// Package config provides Viper-based hierarchical configuration for the
// ingestion pipeline: defaults, an optional config.yaml, .env files and
// STMT_-prefixed environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fjacquet/statement-ingest/internal/models"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the tool reads.
const EnvPrefix = "STMT"

// OCR engines.
const (
	OCREngineNone      = "none"
	OCREngineTesseract = "tesseract"
	OCREngineGemini    = "gemini"
)

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type CSVConfig struct {
	Delimiter      string `mapstructure:"delimiter" yaml:"delimiter"`
	IncludeHeaders bool   `mapstructure:"include_headers" yaml:"include_headers"`
}

type PipelineConfig struct {
	// TempDir receives materialized copies of opaque uploads. Empty means os.TempDir().
	TempDir         string `mapstructure:"temp_dir" yaml:"temp_dir"`
	DefaultCurrency string `mapstructure:"default_currency" yaml:"default_currency"`
	// ContentRoot backs content:// URIs for the local filesystem collaborator.
	ContentRoot string `mapstructure:"content_root" yaml:"content_root"`
}

type OCRConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	Engine         string `mapstructure:"engine" yaml:"engine"`
	Language       string `mapstructure:"language" yaml:"language"`
	DPI            int    `mapstructure:"dpi" yaml:"dpi"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

type AIConfig struct {
	Model             string `mapstructure:"model" yaml:"model"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	APIKey            string `mapstructure:"api_key" yaml:"-"` // never serialized
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	BodyLimitMB int    `mapstructure:"body_limit_mb" yaml:"body_limit_mb"`
}

type AccountsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// Config is the complete application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	CSV      CSVConfig      `mapstructure:"csv" yaml:"csv"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	OCR      OCRConfig      `mapstructure:"ocr" yaml:"ocr"`
	AI       AIConfig       `mapstructure:"ai" yaml:"ai"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Accounts AccountsConfig `mapstructure:"accounts" yaml:"accounts"`
}

// InitializeConfig loads configuration from the standard locations.
func InitializeConfig() (*Config, error) {
	return load("")
}

// InitializeConfigFromFile loads configuration with an explicit config file.
func InitializeConfigFromFile(path string) (*Config, error) {
	return load(path)
}

func load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.statement-ingest")
		v.AddConfigPath(".statement-ingest")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The Gemini key keeps its conventional, unprefixed name.
	if err := v.BindEnv("ai.api_key", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind GEMINI_API_KEY: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("csv.delimiter", ",")
	v.SetDefault("csv.include_headers", true)

	v.SetDefault("pipeline.temp_dir", "")
	v.SetDefault("pipeline.default_currency", string(models.INR))
	v.SetDefault("pipeline.content_root", "")

	v.SetDefault("ocr.enabled", false)
	v.SetDefault("ocr.engine", OCREngineTesseract)
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.timeout_seconds", 120)

	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.requests_per_minute", 10)
	v.SetDefault("ai.timeout_seconds", 30)
	v.SetDefault("ai.api_key", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.body_limit_mb", 20)

	v.SetDefault("accounts.file", "accounts.yaml")
}

func validateConfig(cfg *Config) error {
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", cfg.Log.Level)
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", cfg.Log.Format)
	}

	if len([]rune(cfg.CSV.Delimiter)) != 1 {
		return fmt.Errorf("CSV delimiter must be a single character, got: %s", cfg.CSV.Delimiter)
	}

	if _, err := models.ParseCurrency(cfg.Pipeline.DefaultCurrency); err != nil {
		return fmt.Errorf("pipeline.default_currency: %w", err)
	}

	switch cfg.OCR.Engine {
	case OCREngineNone, OCREngineTesseract:
	case OCREngineGemini:
		if cfg.OCR.Enabled && cfg.AI.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY required when the gemini OCR engine is enabled")
		}
	default:
		return fmt.Errorf("invalid ocr.engine: %s (must be none, tesseract or gemini)", cfg.OCR.Engine)
	}

	if cfg.OCR.DPI < 72 || cfg.OCR.DPI > 1200 {
		return fmt.Errorf("ocr.dpi must be between 72 and 1200, got: %d", cfg.OCR.DPI)
	}

	if cfg.AI.RequestsPerMinute < 1 || cfg.AI.RequestsPerMinute > 1000 {
		return fmt.Errorf("ai.requests_per_minute must be between 1 and 1000, got: %d", cfg.AI.RequestsPerMinute)
	}

	if cfg.AI.TimeoutSeconds < 1 || cfg.AI.TimeoutSeconds > 300 {
		return fmt.Errorf("ai.timeout_seconds must be between 1 and 300, got: %d", cfg.AI.TimeoutSeconds)
	}

	if cfg.Server.BodyLimitMB < 1 {
		return fmt.Errorf("server.body_limit_mb must be positive, got: %d", cfg.Server.BodyLimitMB)
	}

	return nil
}

// Delimiter returns the export delimiter as a rune.
func (c *Config) Delimiter() rune {
	if c.CSV.Delimiter == "" {
		return ','
	}
	return []rune(c.CSV.Delimiter)[0]
}

// DefaultCurrency returns the validated fallback currency.
func (c *Config) DefaultCurrency() models.Currency {
	cur, err := models.ParseCurrency(c.Pipeline.DefaultCurrency)
	if err != nil {
		return models.INR
	}
	return cur
}

// TempDir returns the directory for temporary copies.
func (c *Config) TempDir() string {
	if c.Pipeline.TempDir != "" {
		return c.Pipeline.TempDir
	}
	return os.TempDir()
}

// LoadEnv loads a .env file from the working directory or its parent,
// without overriding variables already set. It reports whether one was found.
func LoadEnv() bool {
	for _, candidate := range []string{".env", filepath.Join("..", ".env")} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		return godotenv.Load(candidate) == nil
	}
	return false
}
