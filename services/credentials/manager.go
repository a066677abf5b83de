// Package credentials resolves provider API keys from environment variables.
package credentials

import (
	"fmt"
	"os"
	"sync"

	"github.com/upb/agency-llm-client/config"
	"github.com/upb/agency-llm-client/services"
)

// Status reasons reported by ValidateAll
const (
	ReasonDisabled = "disabled"
	ReasonNoEnvVar = "no env var configured"
	ReasonReady    = "ready"
)

// LookupFunc resolves an environment variable. It has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Status describes whether a provider's credential can be resolved right now
type Status struct {
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
	EnvVar    string `json:"env_var,omitempty"`
	Reason    string `json:"reason"`
}

// Option configures a Manager
type Option func(*Manager)

// WithLookup replaces os.LookupEnv
func WithLookup(lookup LookupFunc) Option {
	return func(m *Manager) {
		if lookup != nil {
			m.lookup = lookup
		}
	}
}

// Manager resolves and caches API keys for one client instance.
// Successful lookups are cached by lower-cased provider name; failures are not.
type Manager struct {
	agency *config.AgencyConfig
	lookup LookupFunc

	mu    sync.Mutex
	cache map[string]string
}

// NewManager creates a credential manager over the agency document
func NewManager(agency *config.AgencyConfig, opts ...Option) *Manager {
	m := &Manager{
		agency: agency,
		lookup: os.LookupEnv,
		cache:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the API key for provider
func (m *Manager) Get(provider string) (string, error) {
	name := config.NormalizeProviderName(provider)

	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := m.cache[name]; ok {
		return key, nil
	}

	cfg, ok := m.agency.Provider(name)
	if !ok {
		return "", services.NewCredentialError(name, fmt.Sprintf("provider %q not found in config", provider))
	}
	if cfg.APIKeyEnvVar == "" {
		return "", services.NewCredentialError(name, fmt.Sprintf("no api_key_env_var configured for provider %q", provider))
	}

	key, ok := m.lookup(cfg.APIKeyEnvVar)
	if !ok || key == "" {
		return "", services.NewCredentialError(name,
			fmt.Sprintf("API key for %s not found, set environment variable %s", provider, cfg.APIKeyEnvVar)).
			WithDetail("env_var", cfg.APIKeyEnvVar)
	}

	m.cache[name] = key
	return key, nil
}

// ValidateAll reports credential readiness for every configured provider.
// It never fails and does not populate the cache.
func (m *Manager) ValidateAll() map[string]Status {
	results := make(map[string]Status, len(m.agency.Providers))

	for _, name := range m.agency.ProviderNames() {
		cfg := m.agency.Providers[name]

		if !cfg.Enabled {
			results[name] = Status{Reason: ReasonDisabled, EnvVar: cfg.APIKeyEnvVar}
			continue
		}
		if cfg.APIKeyEnvVar == "" {
			results[name] = Status{Enabled: true, Reason: ReasonNoEnvVar}
			continue
		}

		key, ok := m.lookup(cfg.APIKeyEnvVar)
		available := ok && key != ""
		reason := ReasonReady
		if !available {
			reason = "set " + cfg.APIKeyEnvVar
		}
		results[name] = Status{
			Enabled:   true,
			Available: available,
			EnvVar:    cfg.APIKeyEnvVar,
			Reason:    reason,
		}
	}

	return results
}
