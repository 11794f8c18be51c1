package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:5000"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRequestTimeout  = 45 * time.Second
	DefaultCORSMaxAge      = 3600

	// Storage defaults
	DefaultStorageBackend     = "sqlite"
	DefaultSQLitePath         = "data/chatello.db"
	DefaultSQLiteMaxOpenConns = 10
	DefaultSQLiteBusyTimeout  = 5 * time.Second
	DefaultMongoDatabase      = "chatello_saas"
	DefaultMongoTimeout       = 10 * time.Second

	// Cache defaults
	DefaultCacheBackend   = "memory"
	DefaultCacheTTL       = 5 * time.Second
	DefaultRedisKeyPrefix = "chatello:"

	// Gate defaults
	DefaultLicenseHeader      = "X-License-Key"
	DefaultKeyPrefix          = "CHA"
	DefaultProviderTimeout    = 30 * time.Second
	DefaultProvider           = "openai"
	DefaultMaxTokens          = 1000
	DefaultTemperature        = 0.7
	DefaultCharsPerToken      = 4.0
	DefaultEstimatorOutputCap = 500
	DefaultEstimatorFallback  = 1000

	// Admin defaults
	DefaultAdminHeader = "X-Admin-Key"

	// Analytics defaults
	DefaultAnalyticsSchedule      = "0 2 * * *"
	DefaultAnalyticsDatabasePath  = "data/analytics.db"
	DefaultAnalyticsRetentionDays = 90

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "chatello"
	DefaultTracingSampleRatio = 0.1
	DefaultTracingService     = "chatello-gateway"
)

// defaultProviders holds the endpoint and model used when a provider
// section leaves them empty.
var defaultProviders = map[string]ProviderConfig{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"anthropic": {
		BaseURL: "https://api.anthropic.com/v1",
		Model:   "claude-3-haiku-20240307",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com/v1",
		Model:   "deepseek-chat",
	},
}

// KnownProviders lists the provider names the gateway can call.
func KnownProviders() []string {
	return []string{"openai", "anthropic", "deepseek"}
}

// NewDefault returns a configuration with every default applied.
func NewDefault() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Explicitly set
// values are never overwritten.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.MaxOpenConns == 0 {
		cfg.Storage.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
		// An untouched SQLite section gets WAL as well.
		cfg.Storage.SQLite.WALMode = true
	}
	if cfg.Storage.Mongo.Database == "" {
		cfg.Storage.Mongo.Database = DefaultMongoDatabase
	}
	if cfg.Storage.Mongo.Timeout == 0 {
		cfg.Storage.Mongo.Timeout = DefaultMongoTimeout
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Cache.Redis.KeyPrefix == "" {
		cfg.Cache.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	applyGateDefaults(&cfg.Gate)
	applyProviderDefaults(cfg)

	if cfg.Admin.Header == "" {
		cfg.Admin.Header = DefaultAdminHeader
	}

	if cfg.Analytics.Schedule == "" {
		cfg.Analytics.Schedule = DefaultAnalyticsSchedule
	}
	if cfg.Analytics.DatabasePath == "" {
		cfg.Analytics.DatabasePath = DefaultAnalyticsDatabasePath
	}
	if cfg.Analytics.RetentionDays == 0 {
		cfg.Analytics.RetentionDays = DefaultAnalyticsRetentionDays
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingService
	}
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}

	cors := &s.CORS
	if !cors.Enabled {
		// A CORS section with any field set means the operator configured it.
		hasAnyConfig := len(cors.AllowedOrigins) > 0 ||
			len(cors.AllowedMethods) > 0 ||
			len(cors.AllowedHeaders) > 0 ||
			cors.MaxAge > 0
		if !hasAnyConfig {
			cors.Enabled = true
		}
	}
	if len(cors.AllowedOrigins) == 0 {
		cors.AllowedOrigins = []string{"*"}
	}
	if len(cors.AllowedMethods) == 0 {
		cors.AllowedMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	}
	if len(cors.AllowedHeaders) == 0 {
		cors.AllowedHeaders = []string{"Content-Type", "X-License-Key", "X-Admin-Key", "X-Request-ID"}
	}
	if cors.MaxAge == 0 {
		cors.MaxAge = DefaultCORSMaxAge
	}
}

func applyGateDefaults(g *GateConfig) {
	if g.LicenseHeader == "" {
		g.LicenseHeader = DefaultLicenseHeader
	}
	if g.KeyPrefix == "" {
		g.KeyPrefix = DefaultKeyPrefix
	}
	if g.ProviderTimeout == 0 {
		g.ProviderTimeout = DefaultProviderTimeout
	}
	if g.DefaultProvider == "" {
		g.DefaultProvider = DefaultProvider
	}
	if g.DefaultMaxTokens == 0 {
		g.DefaultMaxTokens = DefaultMaxTokens
	}
	if g.DefaultTemperature == 0 {
		g.DefaultTemperature = DefaultTemperature
	}
	if g.Estimator.CharsPerToken == 0 {
		g.Estimator.CharsPerToken = DefaultCharsPerToken
	}
	if g.Estimator.OutputCap == 0 {
		g.Estimator.OutputCap = DefaultEstimatorOutputCap
	}
	if g.Estimator.Fallback == 0 {
		g.Estimator.Fallback = DefaultEstimatorFallback
	}
}

// applyProviderDefaults ensures every known provider has a section with its
// base URL, model, and timeout filled in. A provider is only usable once an
// API key is present.
func applyProviderDefaults(cfg *Config) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	for name, def := range defaultProviders {
		p := cfg.Providers[name]
		if p.BaseURL == "" {
			p.BaseURL = def.BaseURL
		}
		if p.Model == "" {
			p.Model = def.Model
		}
		if p.Timeout == 0 {
			p.Timeout = cfg.Gate.ProviderTimeout
		}
		cfg.Providers[name] = p
	}
}
