package config

import "time"

// Config is the root configuration structure for the Chatello gateway.
// A Config is built once at process start and treated as read-only; every
// component receives the sections it needs at construction time.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts, and CORS.
	Server ServerConfig `yaml:"server"`

	// Storage selects and configures the backend holding plans, customers,
	// licenses, and the usage ledger.
	Storage StorageConfig `yaml:"storage"`

	// Cache configures the plan registry read-through cache.
	Cache CacheConfig `yaml:"cache"`

	// Gate contains request gate settings: license header, provider
	// timeout, and chat defaults.
	Gate GateConfig `yaml:"gate"`

	// Providers contains configuration for the AI providers.
	// Keys are provider names ("openai", "anthropic", "deepseek").
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Catalog points at an optional YAML plan catalog that is seeded into
	// storage and optionally watched for changes.
	Catalog CatalogConfig `yaml:"catalog"`

	// Admin contains the API keys accepted on admin endpoints.
	Admin AdminConfig `yaml:"admin"`

	// Analytics configures the daily analytics rollup job.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Telemetry contains logging, metrics, and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:5000"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response writes.
	// It must exceed the gate provider timeout.
	// Default: 60s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestTimeout bounds the handling of a single request.
	// Default: 45s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins is a list of allowed origins. Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods defaults to GET, POST, PATCH, OPTIONS.
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders defaults to Content-Type, X-License-Key, X-Admin-Key, X-Request-ID.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache duration in seconds. Default: 3600
	MaxAge int `yaml:"max_age"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is one of "memory", "sqlite", "mongo".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific settings.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Mongo contains MongoDB-specific settings.
	Mongo MongoConfig `yaml:"mongo"`
}

// SQLiteConfig contains SQLite database settings.
type SQLiteConfig struct {
	// Path is the database file path. Default: "data/chatello.db"
	Path string `yaml:"path"`

	// MaxOpenConns caps open connections. Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// BusyTimeout is how long a writer waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// WALMode enables write-ahead logging. Default: true
	WALMode bool `yaml:"wal_mode"`
}

// MongoConfig contains MongoDB connection settings.
type MongoConfig struct {
	// URI is the connection string, e.g. "mongodb://localhost:27017".
	URI string `yaml:"uri"`

	// Database is the database name. Default: "chatello_saas"
	Database string `yaml:"database"`

	// Timeout bounds connect and ping. Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig configures the plan cache.
type CacheConfig struct {
	// Backend is "memory" or "redis". Default: "memory"
	Backend string `yaml:"backend"`

	// TTL is how long a cached plan is served before re-reading storage.
	// Default: 5s
	TTL time.Duration `yaml:"ttl"`

	// Redis contains Redis connection settings.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// GateConfig contains settings for the request gate.
type GateConfig struct {
	// LicenseHeader is the header carrying the license key.
	// Default: "X-License-Key"
	LicenseHeader string `yaml:"license_header"`

	// KeyPrefix is the prefix of generated license keys. Default: "CHA"
	KeyPrefix string `yaml:"key_prefix"`

	// ProviderTimeout bounds a single outbound provider call.
	// Default: 30s
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// DefaultProvider is used when a chat request names none.
	// Default: "openai"
	DefaultProvider string `yaml:"default_provider"`

	// DefaultMaxTokens applies when a chat request omits max_tokens.
	// Default: 1000
	DefaultMaxTokens int `yaml:"default_max_tokens"`

	// DefaultTemperature applies when a chat request omits temperature.
	// Default: 0.7
	DefaultTemperature float64 `yaml:"default_temperature"`

	// Estimator configures the fallback token estimator.
	Estimator EstimatorConfig `yaml:"estimator"`
}

// EstimatorConfig configures character-based token estimation used when a
// provider response carries no usage block.
type EstimatorConfig struct {
	// CharsPerToken is the input character to token ratio. Default: 4
	CharsPerToken float64 `yaml:"chars_per_token"`

	// OutputCap caps the estimate added for the completion. Default: 500
	OutputCap int `yaml:"output_cap"`

	// Fallback is charged when no content can be measured. Default: 1000
	Fallback int `yaml:"fallback"`
}

// ProviderConfig contains configuration for a single AI provider.
type ProviderConfig struct {
	// BaseURL is the provider API base URL.
	// Example: "https://api.openai.com/v1"
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates against the provider. When empty the well-known
	// environment variable (OPENAI_API_KEY, ...) is consulted.
	APIKey string `yaml:"api_key"`

	// Model is the default model when a chat request names none.
	Model string `yaml:"model"`

	// Timeout is the HTTP client timeout. Default: gate.provider_timeout
	Timeout time.Duration `yaml:"timeout"`
}

// CatalogConfig configures the plan catalog file.
type CatalogConfig struct {
	// File is a YAML plan catalog. Empty disables file-based plans.
	File string `yaml:"file"`

	// Watch reloads the catalog when the file changes.
	Watch bool `yaml:"watch"`

	// SeedDefaults inserts the built-in plans when storage has none.
	// Default: true
	SeedDefaults *bool `yaml:"seed_defaults"`
}

// AdminConfig contains admin endpoint credentials.
type AdminConfig struct {
	// Header carries the admin key. Default: "X-Admin-Key"
	Header string `yaml:"header"`

	// APIKeys lists accepted admin keys as bcrypt hashes.
	APIKeys []AdminKeyConfig `yaml:"api_keys"`
}

// AdminKeyConfig is a single admin API key.
type AdminKeyConfig struct {
	Name    string `yaml:"name"`
	KeyHash string `yaml:"key_hash"`
	Enabled bool   `yaml:"enabled"`
}

// AnalyticsConfig configures the daily analytics job.
type AnalyticsConfig struct {
	// Enabled turns the scheduled rollup on.
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression. Default: "0 2 * * *"
	Schedule string `yaml:"schedule"`

	// DatabasePath is the SQLite file holding daily snapshots.
	// Default: "data/analytics.db"
	DatabasePath string `yaml:"database_path"`

	// RetentionDays prunes older snapshots. Default: 90
	RetentionDays int `yaml:"retention_days"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error". Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text". Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in log entries.
	AddSource bool `yaml:"add_source"`

	// RedactLicenseKeys masks license keys in log attributes.
	// Default: true
	RedactLicenseKeys *bool `yaml:"redact_license_keys"`
}

// MetricsConfig contains Prometheus configuration.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint. Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the metrics endpoint path. Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes metric names. Default: "chatello"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains OpenTelemetry configuration.
type TracingConfig struct {
	// Enabled turns span export on. Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of traces kept. Default: 0.1
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as service.name. Default: "chatello-gateway"
	ServiceName string `yaml:"service_name"`
}

// SeedDefaultPlans reports whether built-in plans should be seeded.
func (c CatalogConfig) SeedDefaultPlans() bool {
	return c.SeedDefaults == nil || *c.SeedDefaults
}

// RedactKeys reports whether license keys should be masked in logs.
func (c LoggingConfig) RedactKeys() bool {
	return c.RedactLicenseKeys == nil || *c.RedactLicenseKeys
}

// MetricsEnabled reports whether the metrics endpoint is exposed.
func (c MetricsConfig) MetricsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
