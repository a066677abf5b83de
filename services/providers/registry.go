package providers

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/upb/agency-llm-client/config"
	"github.com/upb/agency-llm-client/services"
)

// DefaultTimeout bounds a single HTTP call when no endpoint timeout is set
const DefaultTimeout = 60 * time.Second

var (
	// ErrProviderNotFound is returned when no builder is registered for a kind
	ErrProviderNotFound = errors.New("provider not found")
)

// Endpoint overrides where and how a provider kind is reached
type Endpoint struct {
	BaseURL string
	Timeout time.Duration

	// HTTPClient replaces the client built from Timeout when set
	HTTPClient *http.Client
}

// Client returns the HTTP client for the endpoint
func (e Endpoint) Client() *http.Client {
	if e.HTTPClient != nil {
		return e.HTTPClient
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Settings is everything a builder needs to construct one provider
type Settings struct {
	Name     string
	Config   *config.ProviderConfig
	APIKey   string
	Endpoint Endpoint
}

// MaxTokens resolves a per-call limit against the configured default
func (s Settings) MaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	if s.Config.MaxTokens > 0 {
		return s.Config.MaxTokens
	}
	return config.DefaultMaxTokens
}

// Builder creates a provider instance
type Builder func(settings Settings) (Provider, error)

// Factory maps provider kinds to builders
type Factory struct {
	mu        sync.RWMutex
	builders  map[string]Builder
	endpoints map[string]Endpoint
}

// NewFactory creates an empty factory
func NewFactory() *Factory {
	return &Factory{
		builders:  make(map[string]Builder),
		endpoints: make(map[string]Endpoint),
	}
}

// Register adds or replaces the builder for kind
func (f *Factory) Register(kind string, builder Builder) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.builders[config.NormalizeProviderName(kind)] = builder
	return f
}

// WithEndpoint overrides the base URL, timeout or HTTP client used for kind
func (f *Factory) WithEndpoint(kind string, endpoint Endpoint) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.endpoints[config.NormalizeProviderName(kind)] = endpoint
	return f
}

// Create builds the provider for name. Unknown kinds and disabled configs
// are config errors.
func (f *Factory) Create(name string, cfg *config.ProviderConfig, apiKey string) (Provider, error) {
	kind := config.NormalizeProviderName(name)

	f.mu.RLock()
	builder, ok := f.builders[kind]
	endpoint := f.endpoints[kind]
	f.mu.RUnlock()

	if !ok {
		return nil, services.WrapConfig(fmt.Sprintf("unknown provider %q (known: %v)", name, f.Known()), ErrProviderNotFound)
	}
	if cfg == nil {
		return nil, services.NewConfigError("provider %q has no configuration", name)
	}
	if !cfg.Enabled {
		return nil, services.NewConfigError("provider %q is disabled in config", name)
	}

	provider, err := builder(Settings{Name: kind, Config: cfg, APIKey: apiKey, Endpoint: endpoint})
	if err != nil {
		return nil, services.WrapConfig(fmt.Sprintf("failed to build provider %s", kind), err)
	}
	return provider, nil
}

// Known returns every registered provider kind, sorted
func (f *Factory) Known() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.builders))
	for name := range f.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListEnabled returns the sorted names of providers the agency marks enabled
func ListEnabled(agency *config.AgencyConfig) []string {
	var names []string
	for _, name := range agency.ProviderNames() {
		if agency.Providers[name].Enabled {
			names = append(names, name)
		}
	}
	return names
}
