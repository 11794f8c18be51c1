package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All field errors are collected and returned
// together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateGate(&cfg.Gate)...)
	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateAnalytics(&cfg.Analytics)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Server.WriteTimeout > 0 && cfg.Server.WriteTimeout <= cfg.Gate.ProviderTimeout {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: fmt.Sprintf("must exceed gate.provider_timeout (%s)", cfg.Gate.ProviderTimeout),
		})
	}

	for i, k := range cfg.Admin.APIKeys {
		if k.Name == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("admin.api_keys[%d].name", i), Message: "is required"})
		}
		if !strings.HasPrefix(k.KeyHash, "$2") {
			errs = append(errs, FieldError{Field: fmt.Sprintf("admin.api_keys[%d].key_hash", i), Message: "must be a bcrypt hash"})
		}
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid address %q: %v", cfg.ListenAddress, err),
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "must not be negative"})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "must be positive"})
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, FieldError{Field: "server.request_timeout", Message: "must be positive"})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "is required for the sqlite backend"})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "must be at least 1"})
		}
	case "mongo":
		if cfg.Mongo.URI == "" {
			errs = append(errs, FieldError{Field: "storage.mongo.uri", Message: "is required for the mongo backend"})
		} else if u, err := url.Parse(cfg.Mongo.URI); err != nil || (u.Scheme != "mongodb" && u.Scheme != "mongodb+srv") {
			errs = append(errs, FieldError{Field: "storage.mongo.uri", Message: "must be a mongodb:// or mongodb+srv:// URI"})
		}
		if cfg.Mongo.Database == "" {
			errs = append(errs, FieldError{Field: "storage.mongo.database", Message: "is required for the mongo backend"})
		}
		if cfg.Mongo.Timeout <= 0 {
			errs = append(errs, FieldError{Field: "storage.mongo.timeout", Message: "must be positive"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unknown backend %q (expected memory, sqlite, or mongo)", cfg.Backend),
		})
	}

	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{Field: "cache.redis.addr", Message: "is required for the redis backend"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "cache.backend",
			Message: fmt.Sprintf("unknown backend %q (expected memory or redis)", cfg.Backend),
		})
	}
	if cfg.TTL < 0 {
		errs = append(errs, FieldError{Field: "cache.ttl", Message: "must not be negative"})
	}

	return errs
}

func validateGate(cfg *GateConfig) []FieldError {
	var errs []FieldError

	if cfg.ProviderTimeout <= 0 {
		errs = append(errs, FieldError{Field: "gate.provider_timeout", Message: "must be positive"})
	}
	if !isKnownProvider(cfg.DefaultProvider) {
		errs = append(errs, FieldError{
			Field:   "gate.default_provider",
			Message: fmt.Sprintf("unknown provider %q", cfg.DefaultProvider),
		})
	}
	if cfg.DefaultMaxTokens < 1 {
		errs = append(errs, FieldError{Field: "gate.default_max_tokens", Message: "must be at least 1"})
	}
	if cfg.DefaultTemperature < 0 || cfg.DefaultTemperature > 2 {
		errs = append(errs, FieldError{Field: "gate.default_temperature", Message: "must be between 0 and 2"})
	}
	if cfg.Estimator.CharsPerToken <= 0 {
		errs = append(errs, FieldError{Field: "gate.estimator.chars_per_token", Message: "must be positive"})
	}
	if cfg.Estimator.OutputCap < 0 {
		errs = append(errs, FieldError{Field: "gate.estimator.output_cap", Message: "must not be negative"})
	}
	if cfg.Estimator.Fallback < 0 {
		errs = append(errs, FieldError{Field: "gate.estimator.fallback", Message: "must not be negative"})
	}
	if strings.ContainsAny(cfg.KeyPrefix, "- ") {
		errs = append(errs, FieldError{Field: "gate.key_prefix", Message: "must not contain dashes or spaces"})
	}

	return errs
}

func validateProviders(providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	for name, p := range providers {
		prefix := fmt.Sprintf("providers.%s", name)
		if !isKnownProvider(name) {
			errs = append(errs, FieldError{Field: prefix, Message: "unsupported provider"})
			continue
		}
		if p.BaseURL != "" {
			u, err := url.Parse(p.BaseURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, FieldError{Field: prefix + ".base_url", Message: "must be an absolute URL"})
			}
		}
		if p.Timeout < 0 {
			errs = append(errs, FieldError{Field: prefix + ".timeout", Message: "must not be negative"})
		}
	}

	return errs
}

func validateAnalytics(cfg *AnalyticsConfig) []FieldError {
	var errs []FieldError

	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "analytics.schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}
	if cfg.RetentionDays < 1 {
		errs = append(errs, FieldError{Field: "analytics.retention_days", Message: "must be at least 1"})
	}
	if cfg.Enabled && cfg.DatabasePath == "" {
		errs = append(errs, FieldError{Field: "analytics.database_path", Message: "is required when analytics is enabled"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q (expected debug, info, warn, or error)", cfg.Logging.Level),
		})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q (expected json or text)", cfg.Logging.Format),
		})
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0 and 1"})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "is required when tracing is enabled"})
	}

	return errs
}

func isKnownProvider(name string) bool {
	for _, p := range KnownProviders() {
		if p == name {
			return true
		}
	}
	return false
}
