package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServiceName identifies the API in logs and traces
const ServiceName = "portfolio-chat-api"

// MinJWTSecretLength is the shortest HS256 secret accepted at startup
const MinJWTSecretLength = 32

// Config holds all application configuration
type Config struct {
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	Port           string
	GoEnv          string
	LogLevel       string
	LogFormat      string
	FrontendURL    string

	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	JWTExpiry     time.Duration
	Auth0Domain   string
	Auth0Audience string

	AdminUsername string
	AdminPassword string

	UploadDir          string
	AWSRegion          string
	AWSS3Bucket        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	WelcomeTemplate string
	WSPingInterval  time.Duration
	WSPongTimeout   time.Duration
	WSWriteTimeout  time.Duration
	RequestTimeout  time.Duration

	RedisURL     string
	RedisChannel string

	OTLPEndpoint string
}

var current *Config

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Try to load environment-specific file first
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		if err := godotenv.Load(); err != nil {
			// In production, environment variables are set directly
			slog.Info("no .env file found, using system environment variables")
		}
	} else {
		slog.Info("loaded configuration", "file", envFile)
	}

	config := FromEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	SetConfig(config)
	return config, nil
}

// FromEnv builds a Config from the current process environment without
// touching .env files or validating the result
func FromEnv() *Config {
	return &Config{
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		Port:           getEnv("PORT", "3001"),
		GoEnv:          getEnv("GO_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:3000"),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", "portfolio-chat-api"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "portfolio-admin"),
		JWTExpiry:     getEnvDuration("JWT_EXPIRY", 24*time.Hour),
		Auth0Domain:   getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience: getEnv("AUTH0_AUDIENCE", ""),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		UploadDir:          getEnv("UPLOAD_DIR", "./uploads/chat"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:        getEnv("AWS_S3_BUCKET", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		WelcomeTemplate: getEnv("CHAT_WELCOME_TEMPLATE", "Xin chào %s! Tôi có thể giúp gì cho bạn?"),
		WSPingInterval:  getEnvDuration("WS_PING_INTERVAL", 10*time.Second),
		WSPongTimeout:   getEnvDuration("WS_PONG_TIMEOUT", 15*time.Second),
		WSWriteTimeout:  getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),

		RedisURL:     getEnv("REDIS_URL", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "portfolio-chat:rooms"),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth0Domain == "" && len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLength)
	}
	if c.WelcomeTemplate != "" && !ValidWelcomeTemplate(c.WelcomeTemplate) {
		return fmt.Errorf("CHAT_WELCOME_TEMPLATE must contain exactly one %%s and no other verbs, got %q", c.WelcomeTemplate)
	}
	if c.WSPongTimeout <= c.WSPingInterval {
		return fmt.Errorf("WS_PONG_TIMEOUT (%s) must be longer than WS_PING_INTERVAL (%s)", c.WSPongTimeout, c.WSPingInterval)
	}
	return nil
}

// ValidWelcomeTemplate reports whether template has a single %s for the
// visitor's name and no other formatting verbs
func ValidWelcomeTemplate(template string) bool {
	return strings.Count(template, "%s") == 1 && strings.Count(template, "%") == 1
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// UsesS3 reports whether chat attachments are stored in S3 instead of on disk
func (c *Config) UsesS3() bool {
	return c.AWSS3Bucket != ""
}

// UsesRedis reports whether broadcasts are shared with other instances
func (c *Config) UsesRedis() bool {
	return c.RedisURL != ""
}

// TracingEnabled reports whether spans are exported
func (c *Config) TracingEnabled() bool {
	return c.OTLPEndpoint != ""
}

// GetConfig returns the configuration stored by the last successful Load
func GetConfig() *Config {
	return current
}

// SetConfig replaces the process-wide configuration (primarily for testing)
func SetConfig(cfg *Config) {
	current = cfg
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", value, "default", defaultValue.String())
		return defaultValue
	}
	return d
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return n
}
