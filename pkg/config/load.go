package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix of every environment override.
const envPrefix = "CHATELLO_"

// providerKeyEnv maps provider names to the environment variables the
// provider SDKs conventionally read.
var providerKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %q: %w", f, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CHATELLO_SECTION_FIELD (e.g., CHATELLO_SERVER_LISTEN_ADDRESS).
// An empty path starts from the defaults.
//
// The loading sequence is:
// 1. Load YAML from file (or defaults)
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefault()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	setString(&cfg.Server.ListenAddress, "SERVER_LISTEN_ADDRESS")
	setDuration(&cfg.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.IdleTimeout, "SERVER_IDLE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")
	setDuration(&cfg.Server.RequestTimeout, "SERVER_REQUEST_TIMEOUT")

	// Storage overrides
	setString(&cfg.Storage.Backend, "STORAGE_BACKEND")
	setString(&cfg.Storage.SQLite.Path, "STORAGE_SQLITE_PATH")
	setBool(&cfg.Storage.SQLite.WALMode, "STORAGE_SQLITE_WAL_MODE")
	setString(&cfg.Storage.Mongo.URI, "STORAGE_MONGO_URI")
	setString(&cfg.Storage.Mongo.Database, "STORAGE_MONGO_DATABASE")
	// The legacy deployment exported these two names.
	if cfg.Storage.Mongo.URI == "" {
		cfg.Storage.Mongo.URI = os.Getenv("MONGODB_URI")
	}
	if val := os.Getenv("MONGODB_DATABASE"); val != "" && os.Getenv(envPrefix+"STORAGE_MONGO_DATABASE") == "" {
		cfg.Storage.Mongo.Database = val
	}

	// Cache overrides
	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	setDuration(&cfg.Cache.TTL, "CACHE_TTL")
	setString(&cfg.Cache.Redis.Addr, "CACHE_REDIS_ADDR")
	setString(&cfg.Cache.Redis.Password, "CACHE_REDIS_PASSWORD")
	setInt(&cfg.Cache.Redis.DB, "CACHE_REDIS_DB")

	// Gate overrides
	setString(&cfg.Gate.LicenseHeader, "GATE_LICENSE_HEADER")
	setDuration(&cfg.Gate.ProviderTimeout, "GATE_PROVIDER_TIMEOUT")
	setString(&cfg.Gate.DefaultProvider, "GATE_DEFAULT_PROVIDER")

	for _, name := range KnownProviders() {
		applyProviderEnvOverrides(cfg, name)
	}

	// Catalog overrides
	setString(&cfg.Catalog.File, "CATALOG_FILE")
	setBool(&cfg.Catalog.Watch, "CATALOG_WATCH")

	// Analytics overrides
	setBool(&cfg.Analytics.Enabled, "ANALYTICS_ENABLED")
	setString(&cfg.Analytics.Schedule, "ANALYTICS_SCHEDULE")
	setString(&cfg.Analytics.DatabasePath, "ANALYTICS_DATABASE_PATH")
	setInt(&cfg.Analytics.RetentionDays, "ANALYTICS_RETENTION_DAYS")

	// Telemetry overrides
	setString(&cfg.Telemetry.Logging.Level, "TELEMETRY_LOGGING_LEVEL")
	setString(&cfg.Telemetry.Logging.Format, "TELEMETRY_LOGGING_FORMAT")
	setString(&cfg.Telemetry.Metrics.Path, "TELEMETRY_METRICS_PATH")
	setBool(&cfg.Telemetry.Tracing.Enabled, "TELEMETRY_TRACING_ENABLED")
	setString(&cfg.Telemetry.Tracing.Endpoint, "TELEMETRY_TRACING_ENDPOINT")
	if val := os.Getenv(envPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

// applyProviderEnvOverrides applies environment variable overrides for a
// single provider. Variables follow CHATELLO_PROVIDERS_<NAME>_<FIELD>; the
// API key additionally falls back to the provider's conventional variable.
func applyProviderEnvOverrides(cfg *Config, providerName string) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	provider := cfg.Providers[providerName]

	prefix := fmt.Sprintf("PROVIDERS_%s_", strings.ToUpper(providerName))
	setString(&provider.BaseURL, prefix+"BASE_URL")
	setString(&provider.APIKey, prefix+"API_KEY")
	setString(&provider.Model, prefix+"MODEL")
	setDuration(&provider.Timeout, prefix+"TIMEOUT")

	if provider.APIKey == "" {
		provider.APIKey = os.Getenv(providerKeyEnv[providerName])
	}

	cfg.Providers[providerName] = provider
}

func setString(dst *string, key string) {
	if val := os.Getenv(envPrefix + key); val != "" {
		*dst = val
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(envPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(envPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(envPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
