package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Notification transports.
const (
	TransportSES  = "ses"
	TransportSQS  = "sqs"
	TransportAMQP = "amqp"
)

// Template sources. An empty source uses the built-in templates.
const (
	TemplateSourceLocal = "local"
	TemplateSourceS3    = "s3"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Logging       LoggingConfig       `yaml:"logging"`
	SES           SESConfig           `yaml:"ses"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Newsletter    NewsletterConfig    `yaml:"newsletter"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds the PostgreSQL connection settings
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds"`
}

// ConnMaxLifetime returns the connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeSeconds) * time.Second
}

// RedisConfig holds the Redis connection used for per-address locking.
// An empty URL disables Redis and locks fall back to PostgreSQL.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig holds the shared secret for storefront identity tokens
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on (default true).
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NotificationsConfig controls how newsletter e-mails are rendered and
// delivered.
type NotificationsConfig struct {
	// Transport is "ses" (send inline), "sqs" or "amqp" (enqueue for cmd/worker).
	Transport      string         `yaml:"transport"`
	SQSQueueURL    string         `yaml:"sqs_queue_url"`
	AMQPURL        string         `yaml:"amqp_url"`
	AMQPExchange   string         `yaml:"amqp_exchange"`
	AMQPQueue      string         `yaml:"amqp_queue"`
	AMQPRoutingKey string         `yaml:"amqp_routing_key"`
	LedgerTable    string         `yaml:"ledger_table"`
	FromName       string         `yaml:"from_name"`
	FromEmail      string         `yaml:"from_email"`
	ReplyTo        string         `yaml:"reply_to"`
	ConfirmURL     string         `yaml:"confirm_url"`
	UnsubscribeURL string         `yaml:"unsubscribe_url"`
	Templates      TemplateConfig `yaml:"templates"`
}

// TemplateConfig locates the Liquid notification templates
type TemplateConfig struct {
	Source string `yaml:"source"`
	Dir    string `yaml:"dir"`
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeSeconds == 0 {
		cfg.Database.ConnMaxLifetimeSeconds = 300
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	n := &cfg.Notifications
	if n.Transport == "" {
		n.Transport = TransportSES
	}
	if n.AMQPExchange == "" {
		n.AMQPExchange = "newsletter"
	}
	if n.AMQPQueue == "" {
		n.AMQPQueue = "newsletter-notifications"
	}
	if n.AMQPRoutingKey == "" {
		n.AMQPRoutingKey = "newsletter.notification"
	}
	if n.FromName == "" {
		n.FromName = "Newsletter"
	}
	if n.Templates.Region == "" {
		n.Templates.Region = cfg.SES.Region
	}
	if cfg.Newsletter.LockTTLSeconds == 0 {
		cfg.Newsletter.LockTTLSeconds = 10
	}
	if cfg.Newsletter.LockWaitMillis == 0 {
		cfg.Newsletter.LockWaitMillis = 2000
	}
}

// Validate rejects combinations the service cannot run with.
func (cfg *Config) Validate() error {
	n := cfg.Notifications
	switch n.Transport {
	case TransportSES:
	case TransportSQS:
		if n.SQSQueueURL == "" {
			return fmt.Errorf("notifications.sqs_queue_url is required for transport %q", n.Transport)
		}
	case TransportAMQP:
		if n.AMQPURL == "" {
			return fmt.Errorf("notifications.amqp_url is required for transport %q", n.Transport)
		}
	default:
		return fmt.Errorf("unknown notifications.transport %q", n.Transport)
	}

	switch n.Templates.Source {
	case "":
	case TemplateSourceLocal:
		if n.Templates.Dir == "" {
			return fmt.Errorf("notifications.templates.dir is required for source %q", n.Templates.Source)
		}
	case TemplateSourceS3:
		if n.Templates.Bucket == "" {
			return fmt.Errorf("notifications.templates.bucket is required for source %q", n.Templates.Source)
		}
	default:
		return fmt.Errorf("unknown notifications.templates.source %q", n.Templates.Source)
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("SQS_NOTIFICATION_QUEUE_URL"); v != "" {
		cfg.Notifications.SQSQueueURL = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Notifications.AMQPURL = v
	}
	if v := os.Getenv("NEWSLETTER_CONFIRMATION_REQUIRED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("NEWSLETTER_CONFIRMATION_REQUIRED: %w", err)
		}
		cfg.Newsletter.RequireConfirmation = b
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
