package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "pagecraft.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PAGECRAFT_PORT")
	setString(&cfg.Server.CORSOrigin, "PAGECRAFT_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "PAGECRAFT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "PAGECRAFT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PAGECRAFT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "PAGECRAFT_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "PAGECRAFT_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Provider.URL, "PAGECRAFT_PROVIDER_URL")
	setString(&cfg.Provider.APIKey, "PAGECRAFT_PROVIDER_API_KEY")
	setString(&cfg.Provider.Model, "PAGECRAFT_PROVIDER_MODEL")
	setString(&cfg.Logging.Level, "PAGECRAFT_LOG_LEVEL")
	setString(&cfg.Logging.Format, "PAGECRAFT_LOG_FORMAT")
	setString(&cfg.Logging.Service, "PAGECRAFT_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "PAGECRAFT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "PAGECRAFT_BREAKER_TIMEOUT")
	setInt(&cfg.Session.MaxTurns, "PAGECRAFT_SESSION_MAX_TURNS")
	setInt(&cfg.Session.MaxPatchRetries, "PAGECRAFT_SESSION_MAX_PATCH_RETRIES")
	setInt(&cfg.Session.ProviderRetries, "PAGECRAFT_SESSION_PROVIDER_RETRIES")
	setDuration(&cfg.Session.RetryBackoff, "PAGECRAFT_SESSION_RETRY_BACKOFF")
	setDuration(&cfg.Session.CommandTimeout, "PAGECRAFT_SESSION_COMMAND_TIMEOUT")
	setString(&cfg.Workspace.BaseDir, "PAGECRAFT_WORKSPACE_BASE_DIR")
	setString(&cfg.Workspace.BuildCommand, "PAGECRAFT_BUILD_COMMAND")
	setDuration(&cfg.Workspace.BuildTimeout, "PAGECRAFT_BUILD_TIMEOUT")
	setInt(&cfg.Sandbox.MemoryMB, "PAGECRAFT_SANDBOX_MEMORY_MB")
	setInt(&cfg.Sandbox.CPUQuota, "PAGECRAFT_SANDBOX_CPU_QUOTA")
	setInt(&cfg.Sandbox.PidsLimit, "PAGECRAFT_SANDBOX_PIDS_LIMIT")
	setString(&cfg.Sandbox.NetworkMode, "PAGECRAFT_SANDBOX_NETWORK")
	setString(&cfg.Sandbox.Image, "PAGECRAFT_SANDBOX_IMAGE")
	setInt64(&cfg.Cache.MaxSizeMB, "PAGECRAFT_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "PAGECRAFT_CACHE_TTL")
	setString(&cfg.Metrics.Endpoint, "PAGECRAFT_OTLP_ENDPOINT")
	setDuration(&cfg.Metrics.Interval, "PAGECRAFT_OTLP_INTERVAL")
	setString(&cfg.Tracing.Endpoint, "PAGECRAFT_OTLP_TRACE_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Session.MaxTurns < 1 {
		return errors.New("session.max_turns must be >= 1")
	}
	if cfg.Session.MaxPatchRetries < 0 {
		return errors.New("session.max_patch_retries must be >= 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
