package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; DATABASE_URL and AMQP_URL are required.
type Config struct {
	// Server
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"5s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0"`
	StartupTimeout  time.Duration `envconfig:"STARTUP_TIMEOUT" default:"2m" validate:"gt=0"`

	// Database
	DatabaseURL    string `envconfig:"DATABASE_URL" validate:"required"`
	DBMaxConns     int32  `envconfig:"DB_MAX_CONNS" default:"10" validate:"gte=1"`
	DBMinConns     int32  `envconfig:"DB_MIN_CONNS" default:"2" validate:"gte=0,ltefield=DBMaxConns"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"file://migrations"`

	// Broker topology
	AMQPURL            string `envconfig:"AMQP_URL" validate:"required"`
	UpstreamExchange   string `envconfig:"UPSTREAM_EXCHANGE" default:"appointments" validate:"required"`
	BindingKey         string `envconfig:"BINDING_KEY" default:"appointment.*" validate:"required"`
	WorkQueue          string `envconfig:"WORK_QUEUE" default:"notifications.work" validate:"required"`
	RetryQueue         string `envconfig:"RETRY_QUEUE" default:"notifications.retry" validate:"required,nefield=WorkQueue"`
	DeadLetterExchange string `envconfig:"DEAD_LETTER_EXCHANGE" default:"notifications.dlx" validate:"required"`
	DeadLetterQueue    string `envconfig:"DEAD_LETTER_QUEUE" default:"notifications.dead" validate:"required,nefield=WorkQueue"`

	// Consumer
	MaxAttempts       int             `envconfig:"MAX_ATTEMPTS" default:"3" validate:"gte=1"`
	RetryBackoff      []time.Duration `envconfig:"RETRY_BACKOFF" default:"5s,30s,2m" validate:"min=1,dive,gt=0"`
	Prefetch          int             `envconfig:"PREFETCH" default:"1" validate:"gte=1"`
	ConsumerInstances int             `envconfig:"CONSUMER_INSTANCES" default:"1" validate:"gte=1"`
	HandlerTimeout    time.Duration   `envconfig:"HANDLER_TIMEOUT" default:"60s" validate:"gt=0"`

	// Directories
	TenantDirectoryURL      string        `envconfig:"TENANT_DIRECTORY_URL" default:"http://localhost:8081" validate:"required,url"`
	AppointmentDirectoryURL string        `envconfig:"APPOINTMENT_DIRECTORY_URL" default:"http://localhost:8082" validate:"required,url"`
	DirectoryTimeout        time.Duration `envconfig:"DIRECTORY_TIMEOUT" default:"3s" validate:"gt=0"`

	// Tenant cache; an empty address disables it.
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	TenantCacheTTL time.Duration `envconfig:"TENANT_CACHE_TTL" default:"5m" validate:"gt=0"`

	// Transports
	EmailTransport      string `envconfig:"EMAIL_TRANSPORT" default:"null" validate:"oneof=http ses null"`
	EmailGatewayURL     string `envconfig:"EMAIL_GATEWAY_URL" validate:"required_if=EmailTransport http"`
	EmailFromName       string `envconfig:"EMAIL_FROM_NAME" default:"Salon Notifications"`
	EmailFromAddress    string `envconfig:"EMAIL_FROM_ADDRESS" validate:"required_if=EmailTransport ses"`
	SESConfigurationSet string `envconfig:"SES_CONFIGURATION_SET"`
	SMSTransport        string `envconfig:"SMS_TRANSPORT" default:"null" validate:"oneof=http null"`
	SMSGatewayURL       string `envconfig:"SMS_GATEWAY_URL" validate:"required_if=SMSTransport http"`
	PushTransport       string `envconfig:"PUSH_TRANSPORT" default:"null" validate:"oneof=http null"`
	PushGatewayURL      string `envconfig:"PUSH_GATEWAY_URL" validate:"required_if=PushTransport http"`

	// Dispatch
	ChannelTimeout        time.Duration `envconfig:"CHANNEL_TIMEOUT" default:"10s" validate:"gt=0"`
	RateLimit             int           `envconfig:"RATE_LIMIT_PER_CHANNEL" default:"100" validate:"gte=0"`
	RetryOnChannelFailure bool          `envconfig:"RETRY_ON_CHANNEL_FAILURE" default:"true"`

	// Background
	QueueMonitorInterval time.Duration `envconfig:"QUEUE_MONITOR_INTERVAL" default:"15s" validate:"gt=0"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json console"`
}

// Load reads a .env file if one exists, then the environment.
func Load() (*Config, error) {
	// Missing .env is fine; real environment variables win over it.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv populates and validates a Config from the process environment.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
