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
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins: ["https://shop.example.com"]

database:
  url: "postgres://localhost/newsletter"

logging:
  level: debug
  redact_pii: false

notifications:
  transport: sqs
  sqs_queue_url: "https://sqs.us-west-2.amazonaws.com/123/newsletter"
  from_email: "news@example.com"
  confirm_url: "https://shop.example.com/newsletter/confirm"
  templates:
    source: local
    dir: ./templates

newsletter:
  confirmation_required: true
  default_store_id: 1
  stores:
    3:
      confirmation_required: false
  websites:
    2:
      default_store_id: 5
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"https://shop.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "postgres://localhost/newsletter", cfg.Database.URL)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Redact())

	assert.Equal(t, TransportSQS, cfg.Notifications.Transport)
	assert.Equal(t, "news@example.com", cfg.Notifications.FromEmail)
	assert.Equal(t, TemplateSourceLocal, cfg.Notifications.Templates.Source)

	nl := cfg.Newsletter
	assert.True(t, nl.ConfirmationRequired(1))
	assert.False(t, nl.ConfirmationRequired(3), "store override wins")
	assert.Equal(t, int64(5), nl.DefaultStoreID(2))
	assert.Equal(t, int64(1), nl.DefaultStoreID(9), "unknown website falls back")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  url: "postgres://localhost/newsletter"
`))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redact())
	assert.Equal(t, "us-west-2", cfg.SES.Region)
	assert.Equal(t, 30, cfg.SES.TimeoutSeconds)
	assert.Equal(t, TransportSES, cfg.Notifications.Transport)
	assert.Equal(t, "newsletter", cfg.Notifications.AMQPExchange)
	assert.Equal(t, "Newsletter", cfg.Notifications.FromName)
	assert.Equal(t, 10*time.Second, cfg.Newsletter.LockTTL())
	assert.Equal(t, 2*time.Second, cfg.Newsletter.LockWait())
	assert.False(t, cfg.Newsletter.ConfirmationRequired(1))
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
database:
  url: "postgres://file/newsletter"
`)

	t.Setenv("DATABASE_URL", "postgres://env/newsletter")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("NEWSLETTER_CONFIRMATION_REQUIRED", "true")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/newsletter", cfg.Database.URL)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Newsletter.ConfirmationRequired(1))
}

func TestLoadFromEnv_InvalidBool(t *testing.T) {
	configPath := writeConfig(t, "server:\n  port: 8081\n")
	t.Setenv("NEWSLETTER_CONFIRMATION_REQUIRED", "maybe")

	_, err := LoadFromEnv(configPath)
	assert.Error(t, err)
}

func TestLoad_RejectsIncompleteTransport(t *testing.T) {
	_, err := Load(writeConfig(t, "notifications:\n  transport: amqp\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "notifications:\n  transport: carrier-pigeon\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "notifications:\n  templates:\n    source: s3\n"))
	assert.Error(t, err)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	cfg := SESConfig{TimeoutSeconds: 45}
	assert.Equal(t, 45*time.Second, cfg.Timeout())
}
