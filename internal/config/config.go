package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	AI        AIConfig
	Geocoding GeocodingConfig
	Storage   StorageConfig
	Events    EventsConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// StaticDir holds a built frontend to serve next to the API. Empty
	// disables it.
	StaticDir string
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig describes how to reach PostgreSQL. An empty URL keeps all
// state in memory.
type DatabaseConfig struct {
	URL           string `ignored:"true"`
	MigrationsDir string `ignored:"true"`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	ConnectTimeout  time.Duration `envconfig:"DB_CONNECT_TIMEOUT" default:"10s"`
	ConnectRetries  int           `envconfig:"DB_CONNECT_RETRIES" default:"5"`
}

// AuthConfig holds token signing parameters.
type AuthConfig struct {
	JWTSecret     string        `envconfig:"JWT_SECRET" default:"change-this-secret"`
	TokenDuration time.Duration `envconfig:"JWT_TOKEN_DURATION" default:"24h"`
}

// AIConfig configures the vision model used for image classification.
// An empty APIKey disables image analysis.
type AIConfig struct {
	APIKey            string        `envconfig:"OPENAI_API_KEY"`
	BaseURL           string        `envconfig:"OPENAI_BASE_URL"`
	Model             string        `envconfig:"OPENAI_VISION_MODEL" default:"gpt-4o"`
	MaxTokens         int           `envconfig:"OPENAI_MAX_TOKENS" default:"400"`
	Timeout           time.Duration `envconfig:"OPENAI_TIMEOUT" default:"45s"`
	MaxImageDimension int           `envconfig:"AI_MAX_IMAGE_DIMENSION" default:"1568"`
}

// GeocodingConfig configures forward geocoding. An empty Token degrades
// address resolution to always-unresolved.
type GeocodingConfig struct {
	Token      string        `envconfig:"MAPBOX_TOKEN"`
	BaseURL    string        `envconfig:"MAPBOX_BASE_URL" default:"https://api.mapbox.com"`
	Timeout    time.Duration `envconfig:"MAPBOX_TIMEOUT" default:"5s"`
	MaxRetries int           `envconfig:"MAPBOX_MAX_RETRIES" default:"2"`
}

// StorageConfig selects where report images are kept. Without a bucket the
// image is stored inline with the report as a data URI.
type StorageConfig struct {
	Bucket          string `envconfig:"AWS_BUCKET"`
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	AccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
	Prefix          string `envconfig:"AWS_IMAGE_PREFIX" default:"reports"`
	MaxImageBytes   int64  `envconfig:"MAX_IMAGE_BYTES" default:"8388608"`
}

// EventsConfig configures the report event stream. Without an address
// events are dropped.
type EventsConfig struct {
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	Stream        string `envconfig:"REPORT_EVENTS_STREAM" default:"report-events"`
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat     = "json"
	defaultMigrationsDir = "./migrations"
)

// LoadDotEnv loads variables from a .env file when one exists. Variables
// already present in the environment win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
			StaticDir:       os.Getenv("STATIC_DIR"),
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			MigrationsDir: getEnv("MIGRATIONS_DIR", defaultMigrationsDir),
		},
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	cfg.Database.URL = databaseURL()

	sections := []struct {
		name   string
		target interface{}
	}{
		{"database", &cfg.Database},
		{"auth", &cfg.Auth},
		{"ai", &cfg.AI},
		{"geocoding", &cfg.Geocoding},
		{"storage", &cfg.Storage},
		{"events", &cfg.Events},
	}
	for _, s := range sections {
		if err := envconfig.Process("", s.target); err != nil {
			return Config{}, fmt.Errorf("invalid %s config: %w", s.name, err)
		}
	}

	if cfg.AI.MaxImageDimension <= 0 {
		return Config{}, fmt.Errorf("invalid AI_MAX_IMAGE_DIMENSION: must be positive")
	}
	if cfg.Database.MaxOpenConns <= 0 {
		return Config{}, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: must be positive")
	}
	if cfg.Database.ConnectRetries < 0 {
		return Config{}, fmt.Errorf("invalid DB_CONNECT_RETRIES: must be non-negative")
	}
	if cfg.Geocoding.MaxRetries < 0 {
		return Config{}, fmt.Errorf("invalid MAPBOX_MAX_RETRIES: must be non-negative")
	}
	if cfg.Storage.MaxImageBytes <= 0 {
		return Config{}, fmt.Errorf("invalid MAX_IMAGE_BYTES: must be positive")
	}

	return cfg, nil
}

// databaseURL prefers DATABASE_URL and otherwise builds a Cloud SQL unix
// socket DSN from INSTANCE_CONNECTION_NAME, DB_USER, DB_PASSWORD, DB_NAME.
// An empty result means no database is configured.
func databaseURL() string {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL
	}

	instance := os.Getenv("INSTANCE_CONNECTION_NAME")
	user := os.Getenv("DB_USER")
	name := os.Getenv("DB_NAME")
	if instance == "" || user == "" || name == "" {
		return ""
	}

	socketPath := fmt.Sprintf("/cloudsql/%s", instance)
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable", socketPath, user, password, name)
	}
	// IAM authentication
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable", socketPath, user, name)
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
