package config

import (
	"os"
	"testing"
	"time"

	"log/slog"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %q, got %q", defaultPort, cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout %v, got %v", defaultReadTimeout, cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != defaultWriteTimeout {
		t.Errorf("expected default write timeout %v, got %v", defaultWriteTimeout, cfg.Server.WriteTimeout)
	}
	if cfg.Server.ShutdownTimeout != defaultShutdownTimeout {
		t.Errorf("expected default shutdown timeout %v, got %v", defaultShutdownTimeout, cfg.Server.ShutdownTimeout)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"SERVER_PORT":                     "9090",
		"SERVER_READ_TIMEOUT_SECONDS":     "30",
		"SERVER_WRITE_TIMEOUT_SECONDS":    "45",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS": "15",
		"LOG_LEVEL":                       "debug",
		"LOG_FORMAT":                      "text",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != overrides["SERVER_PORT"] {
		t.Errorf("expected overridden port %q, got %q", overrides["SERVER_PORT"], cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected read timeout %v, got %v", 30*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 45*time.Second {
		t.Errorf("expected write timeout %v, got %v", 45*time.Second, cfg.Server.WriteTimeout)
	}
	if cfg.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("expected shutdown timeout %v, got %v", 15*time.Second, cfg.Server.ShutdownTimeout)
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("expected log level %v, got %v", slog.LevelDebug, cfg.Logging.Level)
	}
	if cfg.Logging.Format != overrides["LOG_FORMAT"] {
		t.Errorf("expected log format %q, got %q", overrides["LOG_FORMAT"], cfg.Logging.Format)
	}
}

func TestLoadPartialOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT_SECONDS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("expected overridden read timeout %v, got %v", 5*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != defaultWriteTimeout {
		t.Errorf("expected default write timeout %v, got %v", defaultWriteTimeout, cfg.Server.WriteTimeout)
	}
}

func TestLoadWithInvalidValues(t *testing.T) {
	tests := map[string]string{
		"SERVER_READ_TIMEOUT_SECONDS":     "-1",
		"SERVER_WRITE_TIMEOUT_SECONDS":    "abc",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS": "3.5",
		"LOG_LEVEL":                       "verbose",
		"LOG_FORMAT":                      "xml",
		"JWT_TOKEN_DURATION":              "forever",
		"AI_MAX_IMAGE_DIMENSION":          "0",
		"MAPBOX_TIMEOUT":                  "soon",
		"MAPBOX_MAX_RETRIES":              "-1",
		"DB_MAX_OPEN_CONNS":               "0",
		"DB_CONNECT_TIMEOUT":              "never",
		"DB_CONNECT_RETRIES":              "-2",
		"REDIS_DB":                        "first",
		"MAX_IMAGE_BYTES":                 "-5",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s=%q", key, value)
			}
		})
	}
}

func TestParseLogLevelAliases(t *testing.T) {
	tests := map[string]slog.Level{
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
	}

	for input, expected := range tests {
		level, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) returned error: %v", input, err)
		}

		if level != expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, level, expected)
		}
	}
}

func TestParseSecondsRejectsInvalidInput(t *testing.T) {
	cases := []string{"-1", "abc"}

	for _, input := range cases {
		if _, err := parseSeconds(input); err == nil {
			t.Fatalf("expected error for input %q", input)
		}
	}
}

func TestLoadDoesNotPersistEnvBetweenRuns(t *testing.T) {
	clearConfigEnv(t)

	t.Setenv("SERVER_READ_TIMEOUT_SECONDS", "5")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.Unsetenv("SERVER_READ_TIMEOUT_SECONDS"); err != nil {
		t.Fatalf("failed to unset env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.ReadTimeout != defaultReadTimeout {
		t.Errorf("expected default read timeout after reset, got %v", cfg.Server.ReadTimeout)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT",
		"SERVER_PORT",
		"SERVER_READ_TIMEOUT_SECONDS",
		"SERVER_WRITE_TIMEOUT_SECONDS",
		"SERVER_SHUTDOWN_TIMEOUT_SECONDS",
		"STATIC_DIR",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"MIGRATIONS_DIR",
		"DATABASE_URL",
		"INSTANCE_CONNECTION_NAME",
		"DB_USER",
		"DB_PASSWORD",
		"DB_NAME",
	}

	for _, key := range keys {
		t.Setenv(key, "")
	}

	// envconfig treats an empty value as set, so the tagged keys must be
	// removed outright for their defaults to apply.
	tagged := []string{
		"DB_MAX_OPEN_CONNS",
		"DB_MAX_IDLE_CONNS",
		"DB_CONN_MAX_LIFETIME",
		"DB_CONNECT_TIMEOUT",
		"DB_CONNECT_RETRIES",
		"JWT_SECRET",
		"JWT_TOKEN_DURATION",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_VISION_MODEL",
		"OPENAI_MAX_TOKENS",
		"OPENAI_TIMEOUT",
		"AI_MAX_IMAGE_DIMENSION",
		"MAPBOX_TOKEN",
		"MAPBOX_BASE_URL",
		"MAPBOX_TIMEOUT",
		"MAPBOX_MAX_RETRIES",
		"AWS_BUCKET",
		"AWS_REGION",
		"AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY",
		"AWS_IMAGE_PREFIX",
		"MAX_IMAGE_BYTES",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REPORT_EVENTS_STREAM",
	}
	for _, key := range tagged {
		unsetEnv(t, key)
	}
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	prev, ok := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset %s: %v", key, err)
	}
	if ok {
		t.Cleanup(func() { os.Setenv(key, prev) })
	}
}

func TestLoadIntegrationDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Auth.TokenDuration != 24*time.Hour {
		t.Errorf("expected 24h token duration, got %v", cfg.Auth.TokenDuration)
	}
	if cfg.AI.Model != "gpt-4o" {
		t.Errorf("expected default vision model gpt-4o, got %q", cfg.AI.Model)
	}
	if cfg.AI.MaxImageDimension != 1568 {
		t.Errorf("expected default max image dimension 1568, got %d", cfg.AI.MaxImageDimension)
	}
	if cfg.AI.APIKey != "" {
		t.Errorf("expected vision disabled by default")
	}
	if cfg.Geocoding.BaseURL != "https://api.mapbox.com" {
		t.Errorf("unexpected geocoder base url %q", cfg.Geocoding.BaseURL)
	}
	if cfg.Geocoding.Timeout != 5*time.Second {
		t.Errorf("expected 5s geocoder timeout, got %v", cfg.Geocoding.Timeout)
	}
	if cfg.Geocoding.MaxRetries != 2 {
		t.Errorf("expected 2 geocoder retries, got %d", cfg.Geocoding.MaxRetries)
	}
	if cfg.Storage.Bucket != "" || cfg.Storage.Prefix != "reports" {
		t.Errorf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Events.Stream != "report-events" {
		t.Errorf("unexpected events stream %q", cfg.Events.Stream)
	}
	if cfg.Database.URL != "" {
		t.Errorf("expected no database url, got %q", cfg.Database.URL)
	}
	if cfg.Database.MigrationsDir != defaultMigrationsDir {
		t.Errorf("expected default migrations dir, got %q", cfg.Database.MigrationsDir)
	}
	if cfg.Database.MaxOpenConns != 25 || cfg.Database.ConnectTimeout != 10*time.Second || cfg.Database.ConnectRetries != 5 {
		t.Errorf("unexpected pool defaults %+v", cfg.Database)
	}
}

func TestLoadIntegrationOverrides(t *testing.T) {
	clearConfigEnv(t)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_TIMEOUT", "10s")
	t.Setenv("AI_MAX_IMAGE_DIMENSION", "800")
	t.Setenv("MAPBOX_TOKEN", "pk.test")
	t.Setenv("AWS_BUCKET", "dw-images")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.AI.APIKey != "sk-test" || cfg.AI.Timeout != 10*time.Second || cfg.AI.MaxImageDimension != 800 {
		t.Errorf("unexpected AI config %+v", cfg.AI)
	}
	if cfg.Geocoding.Token != "pk.test" {
		t.Errorf("unexpected geocoder token %q", cfg.Geocoding.Token)
	}
	if cfg.Storage.Bucket != "dw-images" {
		t.Errorf("unexpected bucket %q", cfg.Storage.Bucket)
	}
	if cfg.Events.RedisAddr != "localhost:6379" || cfg.Events.RedisDB != 2 {
		t.Errorf("unexpected events config %+v", cfg.Events)
	}
}

func TestDatabaseURL(t *testing.T) {
	t.Run("explicit url wins", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("DATABASE_URL", "postgres://localhost/dw")
		t.Setenv("INSTANCE_CONNECTION_NAME", "proj:region:inst")
		if got := databaseURL(); got != "postgres://localhost/dw" {
			t.Errorf("databaseURL() = %q", got)
		}
	})

	t.Run("cloud sql socket with password", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("INSTANCE_CONNECTION_NAME", "proj:region:inst")
		t.Setenv("DB_USER", "dw")
		t.Setenv("DB_PASSWORD", "secret")
		t.Setenv("DB_NAME", "disasterwatch")
		want := "host=/cloudsql/proj:region:inst user=dw password=secret dbname=disasterwatch sslmode=disable"
		if got := databaseURL(); got != want {
			t.Errorf("databaseURL() = %q, want %q", got, want)
		}
	})

	t.Run("cloud sql socket with iam auth", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("INSTANCE_CONNECTION_NAME", "proj:region:inst")
		t.Setenv("DB_USER", "dw@proj.iam")
		t.Setenv("DB_NAME", "disasterwatch")
		want := "host=/cloudsql/proj:region:inst user=dw@proj.iam dbname=disasterwatch sslmode=disable"
		if got := databaseURL(); got != want {
			t.Errorf("databaseURL() = %q, want %q", got, want)
		}
	})

	t.Run("incomplete settings", func(t *testing.T) {
		clearConfigEnv(t)
		t.Setenv("INSTANCE_CONNECTION_NAME", "proj:region:inst")
		if got := databaseURL(); got != "" {
			t.Errorf("expected empty url, got %q", got)
		}
	})
}

func TestLoadDotEnvMissingFileIsIgnored(t *testing.T) {
	if err := LoadDotEnv(t.TempDir() + "/.env"); err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearConfigEnv(t)
	path := t.TempDir() + "/.env"
	if err := os.WriteFile(path, []byte("MAPBOX_TOKEN=from-file\nREPORT_EVENTS_STREAM=file-stream\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("MAPBOX_TOKEN", "from-env")
	t.Cleanup(func() { os.Unsetenv("REPORT_EVENTS_STREAM") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("MAPBOX_TOKEN"); got != "from-env" {
		t.Errorf("expected environment to win, got %q", got)
	}
	if got := os.Getenv("REPORT_EVENTS_STREAM"); got != "file-stream" {
		t.Errorf("expected .env value to load, got %q", got)
	}
}
