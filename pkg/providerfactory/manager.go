package providerfactory

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/providers"
)

var (
	// ErrUnknownProvider is returned for a provider name the gateway does not support.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrNotConfigured is returned for a supported provider that has no API key.
	ErrNotConfigured = errors.New("provider not configured")
)

// Manager holds the provider adapters keyed by name. A name can be known
// without an adapter, which means the provider is supported but has no
// credentials.
//
// Manager is thread-safe and can be used concurrently.
type Manager struct {
	known     map[string]bool
	providers map[string]providers.Provider
	mu        sync.RWMutex
}

// NewManager creates a provider manager that recognises the given names.
// With no names it recognises config.KnownProviders().
func NewManager(known ...string) *Manager {
	if len(known) == 0 {
		known = config.KnownProviders()
	}
	m := &Manager{
		known:     make(map[string]bool, len(known)),
		providers: make(map[string]providers.Provider),
	}
	for _, name := range known {
		m.known[name] = true
	}
	return m
}

// AddProvider builds an adapter and registers it under config.Name.
// If a provider with the same name already exists, it is replaced and the old one is closed.
func (m *Manager) AddProvider(cfg providers.ProviderConfig) error {
	provider, err := NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to add provider %q: %w", cfg.Name, err)
	}
	m.Register(cfg.Name, provider)
	return nil
}

// Register installs an already built provider under name.
func (m *Manager) Register(name string, provider providers.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.providers[name]; ok {
		slog.Warn("replacing existing provider", "name", name)
		existing.Close()
	}
	m.known[name] = true
	m.providers[name] = provider

	slog.Info("provider registered",
		"name", name,
		"type", provider.GetType(),
		"total_providers", len(m.providers),
	)
}

// LoadFromConfig builds an adapter for every provider section that carries an
// API key. Sections without a key stay known but unconfigured.
func (m *Manager) LoadFromConfig(sections map[string]config.ProviderConfig) error {
	var errs []error

	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := sections[name]
		if pc.APIKey == "" {
			slog.Info("provider not configured", "name", name)
			m.mu.Lock()
			m.known[name] = true
			m.mu.Unlock()
			continue
		}
		if err := m.AddProvider(AdapterConfig(name, pc)); err != nil {
			errs = append(errs, err)
			slog.Error("failed to load provider",
				"name", name,
				"error", err,
			)
		}
	}

	return errors.Join(errs...)
}

// Get returns the provider registered under name. It fails with
// ErrUnknownProvider for unsupported names and ErrNotConfigured for
// supported names without an adapter.
func (m *Manager) Get(name string) (providers.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if provider, ok := m.providers[name]; ok {
		return provider, nil
	}
	if m.known[name] {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, name)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}

// Known reports whether name is a supported provider.
func (m *Manager) Known(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.known[name]
}

// Configured reports, for every known provider, whether an adapter exists.
func (m *Manager) Configured() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.known))
	for name := range m.known {
		_, ok := m.providers[name]
		out[name] = ok
	}
	return out
}

// ProviderCount returns the number of configured providers.
func (m *Manager) ProviderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.providers)
}

// GetHealthSummary returns a summary of provider health status.
func (m *Manager) GetHealthSummary() HealthSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := HealthSummary{
		Total:   len(m.providers),
		Details: make(map[string]providers.ProviderHealth, len(m.providers)),
	}

	for name, provider := range m.providers {
		health := provider.GetHealth()
		summary.Details[name] = health

		if health.IsHealthy {
			summary.Healthy++
		}
	}

	summary.Unhealthy = summary.Total - summary.Healthy

	return summary
}

// Close closes all providers.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, provider := range m.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %q: %w", name, err))
		}
	}

	m.providers = make(map[string]providers.Provider)

	return errors.Join(errs...)
}

// HealthSummary provides an overview of provider health across the manager.
type HealthSummary struct {
	// Total is the total number of configured providers
	Total int `json:"total"`

	// Healthy is the number of healthy providers
	Healthy int `json:"healthy"`

	// Unhealthy is the number of unhealthy providers
	Unhealthy int `json:"unhealthy"`

	// Details contains per-provider health information
	Details map[string]providers.ProviderHealth `json:"details"`
}
