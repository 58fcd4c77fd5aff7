// Package config loads application configuration from a YAML file with
// environment variable overrides. A .env file is honored in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	SES       SESConfig       `yaml:"ses"`
	Bedrock   BedrockConfig   `yaml:"bedrock"`
	Pipelines PipelinesConfig `yaml:"pipelines"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the optional contact-guard cache settings.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
}

// SESConfig holds AWS SES credentials for the outbound sender.
type SESConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
}

// BedrockConfig holds AWS Bedrock settings for AI content generation.
type BedrockConfig struct {
	Enabled bool   `yaml:"enabled"`
	ModelID string `yaml:"model_id"`
	Region  string `yaml:"region"`
}

// PipelinesConfig holds the orchestration and scheduler tunables.
type PipelinesConfig struct {
	GenerationScanIntervalSeconds int  `yaml:"generation_scan_interval_seconds"`
	GenerationBatchSize           int  `yaml:"generation_batch_size"`
	MaxGenerationRetries          int  `yaml:"max_generation_retries"`
	DispatchScanIntervalSeconds   int  `yaml:"dispatch_scan_interval_seconds"`
	DispatchBatchSize             int  `yaml:"dispatch_batch_size"`
	MaxSendRetries                int  `yaml:"max_send_retries"`
	AutoRetrySends                bool `yaml:"auto_retry_sends"`
	SendRetryBackoffMinutes       int  `yaml:"send_retry_backoff_minutes"`
	ItemDelayMs                   int  `yaml:"item_delay_ms"`
	SendDelayMs                   int  `yaml:"send_delay_ms"`
	MaxRecipientsPerRun           int  `yaml:"max_recipients_per_run"`
	ExecutionLogRetentionDays     int  `yaml:"execution_log_retention_days"`
	ContactExclusionDays          int  `yaml:"contact_exclusion_days"`
}

// GenerationScanInterval returns the generation scan period.
func (p PipelinesConfig) GenerationScanInterval() time.Duration {
	return time.Duration(p.GenerationScanIntervalSeconds) * time.Second
}

// DispatchScanInterval returns the dispatch scan period.
func (p PipelinesConfig) DispatchScanInterval() time.Duration {
	return time.Duration(p.DispatchScanIntervalSeconds) * time.Second
}

// ItemDelay returns the throttle delay between generation calls.
func (p PipelinesConfig) ItemDelay() time.Duration {
	return time.Duration(p.ItemDelayMs) * time.Millisecond
}

// SendDelay returns the throttle delay between outbound sends.
func (p PipelinesConfig) SendDelay() time.Duration {
	return time.Duration(p.SendDelayMs) * time.Millisecond
}

// Load reads configuration from the given YAML path. A missing file is not
// an error; defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	// Development convenience; ignore if no .env exists
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, Host: "127.0.0.1"},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5,
		},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		SES:     SESConfig{Region: "us-east-1"},
		Bedrock: BedrockConfig{ModelID: "anthropic.claude-3-sonnet-20240229-v1:0", Region: "us-east-1"},
		Pipelines: PipelinesConfig{
			GenerationScanIntervalSeconds: 60,
			GenerationBatchSize:           20,
			MaxGenerationRetries:          3,
			DispatchScanIntervalSeconds:   30,
			DispatchBatchSize:             50,
			MaxSendRetries:                3,
			AutoRetrySends:                true,
			SendRetryBackoffMinutes:       15,
			ItemDelayMs:                   500,
			SendDelayMs:                   100,
			MaxRecipientsPerRun:           5000,
			ExecutionLogRetentionDays:     90,
			ContactExclusionDays:          7,
		},
		LogLevel: "info",
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" && cfg.SES.AccessKey == "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" && cfg.SES.SecretKey == "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.SES.Region = v
		cfg.Bedrock.Region = v
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
		cfg.Bedrock.ModelID = v
		cfg.Bedrock.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate checks configuration consistency. Misconfiguration is a
// startup-time fatal error, never a runtime surprise.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required (database.url or DATABASE_URL)")
	}
	p := c.Pipelines
	if p.GenerationScanIntervalSeconds <= 0 || p.DispatchScanIntervalSeconds <= 0 {
		return fmt.Errorf("scan intervals must be positive")
	}
	if p.GenerationBatchSize <= 0 || p.DispatchBatchSize <= 0 {
		return fmt.Errorf("batch sizes must be positive")
	}
	if p.MaxGenerationRetries <= 0 || p.MaxSendRetries <= 0 {
		return fmt.Errorf("retry limits must be positive")
	}
	if p.MaxRecipientsPerRun <= 0 {
		return fmt.Errorf("max_recipients_per_run must be positive")
	}
	if c.SES.FromEmail == "" {
		return fmt.Errorf("ses.from_email is required")
	}
	return nil
}
