package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Auth        AuthConfig      `yaml:"auth"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Email       EmailConfig     `yaml:"email"`
	Jobs        JobsConfig      `yaml:"jobs"`
	Logging     LoggingConfig   `yaml:"logging"`
	Tracing     TracingConfig   `yaml:"tracing"`
	Environment string          `yaml:"environment"`
}

type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	BaseURL      string `yaml:"base_url"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
	MaxIdle        int    `yaml:"max_idle"`
	MigrationsPath string `yaml:"migrations_path"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	JWTExpiry  time.Duration `yaml:"jwt_expiry"`
	JWTIssuer  string        `yaml:"jwt_issuer"`
	CSRFKey    string        `yaml:"csrf_key"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

type RateLimitConfig struct {
	PublicPerMinute        int `yaml:"public_per_minute"`
	AuthenticatedPerMinute int `yaml:"authenticated_per_minute"`
	LoginPerMinute         int `yaml:"login_per_minute"`
}

type EmailConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Provider     string `yaml:"provider"` // "resend" or "smtp"
	From         string `yaml:"from"`
	ResendAPIKey string `yaml:"resend_api_key"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
}

type JobsConfig struct {
	Enabled                 bool          `yaml:"enabled"`
	NotificationMaxAttempts int           `yaml:"notification_max_attempts"`
	NotificationWorkers     int           `yaml:"notification_workers"`
	CapacityAuditInterval   time.Duration `yaml:"capacity_audit_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"` // "stdout", "otlp" or "none"
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// minJWTSecretLength is the HS256 key size in bytes.
const minJWTSecretLength = 32

// Defaults returns the configuration used when neither a file nor the
// environment sets a value.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			BaseURL:      "http://localhost:8080",
			MaxBodyBytes: 1 << 20,
		},
		Database: DatabaseConfig{
			MaxConnections: 25,
			MaxIdle:        5,
		},
		Auth: AuthConfig{
			JWTExpiry:  24 * time.Hour,
			JWTIssuer:  "togather-rsvp",
			BcryptCost: 12,
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:        60,
			AuthenticatedPerMinute: 300,
			LoginPerMinute:         5,
		},
		Email: EmailConfig{
			Provider: "resend",
			From:     "Togather <no-reply@togather.events>",
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		Jobs: JobsConfig{
			Enabled:                 true,
			NotificationMaxAttempts: 5,
			NotificationWorkers:     10,
			CapacityAuditInterval:   time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:     "stdout",
			ServiceName:  "togather-rsvp",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Environment: "development",
	}
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	return LoadWithFile("")
}

// LoadWithFile applies the YAML file at path (if any) over the defaults and
// then the environment over the result.
func LoadWithFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("SERVER_BASE_URL", cfg.Server.BaseURL)
	cfg.Server.MaxBodyBytes = int64(getEnvInt("SERVER_MAX_BODY_BYTES", int(cfg.Server.MaxBodyBytes)))

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.MaxIdle = getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", cfg.Database.MaxIdle)
	cfg.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.Database.MigrationsPath)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	if hours := getEnvInt("JWT_EXPIRY_HOURS", 0); hours > 0 {
		cfg.Auth.JWTExpiry = time.Duration(hours) * time.Hour
	}
	cfg.Auth.JWTIssuer = getEnv("JWT_ISSUER", cfg.Auth.JWTIssuer)
	cfg.Auth.CSRFKey = getEnv("CSRF_KEY", cfg.Auth.CSRFKey)
	cfg.Auth.BcryptCost = getEnvInt("BCRYPT_COST", cfg.Auth.BcryptCost)

	cfg.RateLimit.PublicPerMinute = getEnvInt("RATE_LIMIT_PUBLIC", cfg.RateLimit.PublicPerMinute)
	cfg.RateLimit.AuthenticatedPerMinute = getEnvInt("RATE_LIMIT_AUTHENTICATED", cfg.RateLimit.AuthenticatedPerMinute)
	cfg.RateLimit.LoginPerMinute = getEnvInt("RATE_LIMIT_LOGIN", cfg.RateLimit.LoginPerMinute)

	cfg.Email.Enabled = getEnvBool("EMAIL_ENABLED", cfg.Email.Enabled)
	cfg.Email.Provider = getEnv("EMAIL_PROVIDER", cfg.Email.Provider)
	cfg.Email.From = getEnv("EMAIL_FROM", cfg.Email.From)
	cfg.Email.ResendAPIKey = getEnv("RESEND_API_KEY", cfg.Email.ResendAPIKey)
	cfg.Email.SMTPHost = getEnv("SMTP_HOST", cfg.Email.SMTPHost)
	cfg.Email.SMTPPort = getEnvInt("SMTP_PORT", cfg.Email.SMTPPort)
	cfg.Email.SMTPUser = getEnv("SMTP_USER", cfg.Email.SMTPUser)
	cfg.Email.SMTPPassword = getEnv("SMTP_PASSWORD", cfg.Email.SMTPPassword)

	cfg.Jobs.Enabled = getEnvBool("JOBS_ENABLED", cfg.Jobs.Enabled)
	cfg.Jobs.NotificationMaxAttempts = getEnvInt("JOB_RETRY_NOTIFICATION", cfg.Jobs.NotificationMaxAttempts)
	cfg.Jobs.NotificationWorkers = getEnvInt("JOB_NOTIFICATION_WORKERS", cfg.Jobs.NotificationWorkers)
	if minutes := getEnvInt("CAPACITY_AUDIT_INTERVAL_MINUTES", 0); minutes > 0 {
		cfg.Jobs.CapacityAuditInterval = time.Duration(minutes) * time.Minute
	}

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
}

// Validate reports missing or unsafe settings.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}
	if c.Email.Enabled {
		switch strings.ToLower(c.Email.Provider) {
		case "resend":
			if c.Email.ResendAPIKey == "" {
				return fmt.Errorf("RESEND_API_KEY is required when EMAIL_PROVIDER is resend")
			}
		case "smtp":
			if c.Email.SMTPHost == "" {
				return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER is smtp")
			}
		default:
			return fmt.Errorf("unsupported EMAIL_PROVIDER %q (must be resend or smtp)", c.Email.Provider)
		}
	}
	if c.IsProduction() && c.Auth.CSRFKey == "" {
		return fmt.Errorf("CSRF_KEY is required in production")
	}
	return nil
}

// IsProduction reports whether the server runs in the production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
