package config

import (
	"errors"
	"fmt"
	"log"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Booking  BookingConfig
	Payment  PaymentConfig
	Rabbit   RabbitConfig
	Tracing  TracingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string `envconfig:"PORT" default:"8080" validate:"required"`
	Environment string `envconfig:"ENVIRONMENT" default:"development" validate:"oneof=development staging production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string        `envconfig:"DATABASE_URL" validate:"required"`
	Driver             string        `envconfig:"DATABASE_DRIVER" default:"postgres" validate:"oneof=postgres pgx"`
	MaxConnections     int           `envconfig:"DATABASE_MAX_CONNECTIONS" default:"10" validate:"min=1"`
	MaxIdleConnections int           `envconfig:"DATABASE_MAX_IDLE_CONNECTIONS" default:"5" validate:"min=0"`
	ConnMaxLifetime    time.Duration `envconfig:"DATABASE_CONN_MAX_LIFETIME" default:"5m"`
	LockTimeout        time.Duration `envconfig:"DATABASE_LOCK_TIMEOUT" default:"2s" validate:"min=0"`
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string        `envconfig:"JWT_SECRET" validate:"required,min=32"`
	RefreshSecret      string        `envconfig:"JWT_REFRESH_SECRET" validate:"required,min=32"`
	AccessTokenExpiry  time.Duration `envconfig:"JWT_ACCESS_TOKEN_EXPIRY" default:"1h"`
	RefreshTokenExpiry time.Duration `envconfig:"JWT_REFRESH_TOKEN_EXPIRY" default:"168h"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	AllowedMethods []string `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `envconfig:"CORS_ALLOWED_HEADERS" default:"Content-Type,Authorization"`
}

// BookingConfig controls the booking saga and the pending-booking sweeps
type BookingConfig struct {
	PendingTimeout      time.Duration `envconfig:"BOOKING_PENDING_TIMEOUT" default:"15m" validate:"min=1m"`
	ExpirySweepInterval time.Duration `envconfig:"BOOKING_EXPIRY_SWEEP_INTERVAL" default:"1m" validate:"min=1s"`
	OrphanSweepCron     string        `envconfig:"BOOKING_ORPHAN_SWEEP_CRON" default:"0 */5 * * * *" validate:"required"`
	OrphanTimeout       time.Duration `envconfig:"BOOKING_ORPHAN_TIMEOUT" default:"5m" validate:"min=1m"`
	RetryAttempts       int           `envconfig:"BOOKING_RETRY_ATTEMPTS" default:"3" validate:"min=1,max=10"`
	RetryBackoff        time.Duration `envconfig:"BOOKING_RETRY_BACKOFF" default:"50ms"`
}

// PaymentConfig holds M-Pesa gateway configuration
type PaymentConfig struct {
	Mode        string        `envconfig:"PAYMENT_MODE" default:"dev" validate:"oneof=dev production"` // dev simulates charges
	APIURL      string        `envconfig:"PAYMENT_API_URL"`
	APIKey      string        `envconfig:"PAYMENT_API_KEY"`
	APISecret   string        `envconfig:"PAYMENT_API_SECRET"`
	Shortcode   string        `envconfig:"PAYMENT_SHORTCODE"`
	Passkey     string        `envconfig:"PAYMENT_PASSKEY"`
	CallbackURL string        `envconfig:"PAYMENT_CALLBACK_URL"`
	FailNumbers []string      `envconfig:"PAYMENT_FAIL_NUMBERS"`
	Timeout     time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"30s"`
}

// RabbitConfig holds event bus configuration; an empty URL logs events instead
type RabbitConfig struct {
	URL      string `envconfig:"RABBIT_URL"`
	Exchange string `envconfig:"RABBIT_EXCHANGE" default:"skulbus.events" validate:"required"`
}

// TracingConfig holds OpenTelemetry configuration; an empty endpoint disables export
type TracingConfig struct {
	Endpoint    string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `envconfig:"OTEL_SERVICE_NAME" default:"skulbus-backend"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return field.Tag.Get("envconfig")
	})

	if err := v.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return describeFieldError(fieldErrs[0])
		}
		return err
	}

	if c.Payment.Mode == "production" {
		if c.Payment.APIURL == "" {
			return fmt.Errorf("PAYMENT_API_URL is required in production payment mode")
		}
		if c.Payment.APIKey == "" {
			return fmt.Errorf("PAYMENT_API_KEY is required in production payment mode")
		}
		if c.Payment.APISecret == "" {
			return fmt.Errorf("PAYMENT_API_SECRET is required in production payment mode")
		}
		if c.Payment.Shortcode == "" || c.Payment.Passkey == "" {
			return fmt.Errorf("PAYMENT_SHORTCODE and PAYMENT_PASSKEY are required in production payment mode")
		}
	}

	return nil
}

func describeFieldError(fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s]", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Errorf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Errorf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
