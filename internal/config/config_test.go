package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalYAML = `
database:
  url: postgres://localhost/mailflow_test
ses:
  from_email: hello@example.com
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Bedrock.Enabled)

	p := cfg.Pipelines
	assert.Equal(t, 60*time.Second, p.GenerationScanInterval())
	assert.Equal(t, 30*time.Second, p.DispatchScanInterval())
	assert.Equal(t, 500*time.Millisecond, p.ItemDelay())
	assert.Equal(t, 100*time.Millisecond, p.SendDelay())
	assert.Equal(t, 3, p.MaxGenerationRetries)
	assert.Equal(t, 3, p.MaxSendRetries)
	assert.True(t, p.AutoRetrySends)
	assert.Equal(t, 5000, p.MaxRecipientsPerRun)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9090
  host: 0.0.0.0
database:
  url: postgres://localhost/mailflow_test
ses:
  from_email: hello@example.com
pipelines:
  generation_scan_interval_seconds: 10
  generation_batch_size: 5
  dispatch_scan_interval_seconds: 10
  dispatch_batch_size: 5
  max_generation_retries: 1
  max_send_retries: 1
  max_recipients_per_run: 100
log_level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.Pipelines.GenerationScanInterval())
	assert.Equal(t, 5, cfg.Pipelines.GenerationBatchSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://env/mailflow")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "postgres://env/mailflow", cfg.Database.URL)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.Redis.Enabled, "REDIS_ADDR should enable the contact guard")
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
}

func TestLoad_BedrockEnvEnables(t *testing.T) {
	t.Setenv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.True(t, cfg.Bedrock.Enabled)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", cfg.Bedrock.ModelID)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/mailflow")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "ses.from_email has no default, validation must fail")
	assert.Nil(t, cfg)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [not a mapping"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := defaults()
		cfg.Database.URL = "postgres://localhost/mailflow_test"
		cfg.SES.FromEmail = "hello@example.com"
		return cfg
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.Database.URL = ""
	assert.Error(t, cfg.Validate(), "database url required")

	cfg = base()
	cfg.SES.FromEmail = ""
	assert.Error(t, cfg.Validate(), "from email required")

	cfg = base()
	cfg.Pipelines.GenerationScanIntervalSeconds = 0
	assert.Error(t, cfg.Validate(), "scan interval must be positive")

	cfg = base()
	cfg.Pipelines.DispatchBatchSize = -1
	assert.Error(t, cfg.Validate(), "batch size must be positive")

	cfg = base()
	cfg.Pipelines.MaxSendRetries = 0
	assert.Error(t, cfg.Validate(), "retry limit must be positive")

	cfg = base()
	cfg.Pipelines.MaxRecipientsPerRun = 0
	assert.Error(t, cfg.Validate(), "recipient cap must be positive")
}
