// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Thumbnail storage backends.
const (
	ThumbnailBackendLocal = "local"
	ThumbnailBackendS3    = "s3"
)

// minSecretLength is the shortest JWT secret accepted for HS512.
const minSecretLength = 32

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL    string `env:"DATABASE_URL,required"`
	DBMaxConns     int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns     int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`

	// Cache (Redis)
	RedisURL          string `env:"REDIS_URL,required"`
	RedisPoolSize     int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	RedisMinIdleConns int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`

	// Session tokens
	JWTSecret string        `env:"JWT_SECRET,required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"336h"`

	// Subject re-validation on every authenticated request
	AuthStrictSubject   bool          `env:"AUTH_STRICT_SUBJECT" envDefault:"true"`
	AuthSubjectCacheTTL time.Duration `env:"AUTH_SUBJECT_CACHE_TTL" envDefault:"60s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Upper bound for every database, document and thumbnail call
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`

	// Recipe documents
	DocumentDir string `env:"DOCUMENT_DIR" envDefault:"./recipes"`

	// Thumbnails
	ThumbnailBackend string `env:"THUMBNAIL_BACKEND" envDefault:"local"`
	ThumbnailDir     string `env:"THUMBNAIL_DIR" envDefault:"./thumbnails"`
	MaxThumbnailSize int64  `env:"MAX_THUMBNAIL_SIZE" envDefault:"2097152"`

	// S3-compatible object storage (THUMBNAIL_BACKEND=s3)
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" envDefault:"true"`

	// Rate limiting
	RateLimitEnabled   bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitUserRPM   int  `env:"RATE_LIMIT_USER_RPM" envDefault:"120"`
	RateLimitUserBurst int  `env:"RATE_LIMIT_USER_BURST" envDefault:"20"`
	RateLimitIPRPS     int  `env:"RATE_LIMIT_IP_RPS" envDefault:"5"`
	RateLimitIPBurst   int  `env:"RATE_LIMIT_IP_BURST" envDefault:"10"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 4MB, room for a thumbnail plus the recipe JSON)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"4194304"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.AuthStrictSubject && c.AuthSubjectCacheTTL < 0 {
		errs = append(errs, errors.New("AUTH_SUBJECT_CACHE_TTL must not be negative"))
	}
	if c.MaxThumbnailSize <= 0 {
		errs = append(errs, errors.New("MAX_THUMBNAIL_SIZE must be positive"))
	}
	if c.DocumentDir == "" {
		errs = append(errs, errors.New("DOCUMENT_DIR must not be empty"))
	}

	switch c.ThumbnailBackend {
	case ThumbnailBackendLocal:
		if c.ThumbnailDir == "" {
			errs = append(errs, errors.New("THUMBNAIL_DIR must not be empty"))
		}
	case ThumbnailBackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 thumbnail backend"))
		}
		if c.S3AccessKeyID == "" || c.S3SecretAccessKey == "" {
			errs = append(errs, errors.New("S3 credentials are required for the s3 thumbnail backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown THUMBNAIL_BACKEND %q", c.ThumbnailBackend))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a Config.
// A .env file in the working directory, when present, fills in variables
// that are not already set. Returns an error if required variables are missing.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
