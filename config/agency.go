package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/upb/agency-llm-client/services"
	"github.com/upb/agency-llm-client/utils"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTrackFile        = "config/logs/api-usage.json"
	DefaultHardLimitDollars = 100.0
	DefaultRequestsPerDay   = 100
	DefaultRetryBackoffBase = 2.0
	DefaultMaxTokens        = 4096
)

// AgencyConfig is the agency document: providers, agents and usage governance.
// It is read once and treated as immutable afterwards.
type AgencyConfig struct {
	Providers    map[string]*ProviderConfig `json:"providers" yaml:"providers" toml:"providers" validate:"required,min=1,dive,required"`
	Agents       map[string]*AgentConfig    `json:"agents,omitempty" yaml:"agents" toml:"agents" validate:"dive,required"`
	UsageControl UsageControl               `json:"usage_control,omitempty" yaml:"usage_control" toml:"usage_control"`
	API          APISettings                `json:"api,omitempty" yaml:"api" toml:"api"`

	// path the document was loaded from, empty when parsed from bytes
	source string
}

// ProviderConfig describes one LLM vendor integration.
type ProviderConfig struct {
	Model        string   `json:"model" yaml:"model" toml:"model" validate:"required" jsonschema:"description=Vendor model identifier"`
	Enabled      bool     `json:"enabled,omitempty" yaml:"enabled" toml:"enabled"`
	MaxTokens    int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" toml:"max_tokens,omitempty" validate:"gte=0"`
	APIKeyEnvVar string   `json:"api_key_env_var,omitempty" yaml:"api_key_env_var,omitempty" toml:"api_key_env_var,omitempty" jsonschema:"description=Environment variable holding the API key"`
	Billing      *Billing `json:"billing,omitempty" yaml:"billing,omitempty" toml:"billing,omitempty"`
}

// Billing holds per-million-token rates. Pointers distinguish a missing rate
// from a free one.
type Billing struct {
	InputPerMTok  *float64 `json:"input_per_mtok,omitempty" yaml:"input_per_mtok,omitempty" toml:"input_per_mtok,omitempty" validate:"omitempty,gte=0"`
	OutputPerMTok *float64 `json:"output_per_mtok,omitempty" yaml:"output_per_mtok,omitempty" toml:"output_per_mtok,omitempty" validate:"omitempty,gte=0"`
}

// Complete reports whether both rates are present.
func (b *Billing) Complete() bool {
	return b != nil && b.InputPerMTok != nil && b.OutputPerMTok != nil
}

// AgentConfig describes a caller identity.
type AgentConfig struct {
	Provider          string    `json:"provider" yaml:"provider" toml:"provider" validate:"required"`
	FallbackProviders []string  `json:"fallback_providers,omitempty" yaml:"fallback_providers,omitempty" toml:"fallback_providers,omitempty"`
	RateLimit         RateLimit `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty" toml:"rate_limit,omitempty"`
}

// RateLimit caps requests per calendar day for one agent.
type RateLimit struct {
	RequestsPerDay *int `json:"requests_per_day,omitempty" yaml:"requests_per_day,omitempty" toml:"requests_per_day,omitempty" validate:"omitempty,gte=0"`
}

// UsageControl configures cost tracking and the usage log location.
type UsageControl struct {
	CostTracking CostTracking `json:"cost_tracking,omitempty" yaml:"cost_tracking" toml:"cost_tracking"`
	TrackFile    string       `json:"track_file,omitempty" yaml:"track_file,omitempty" toml:"track_file,omitempty"`
}

// CostTracking holds the global monthly spend cap.
type CostTracking struct {
	HardLimitDollars *float64 `json:"hard_limit_dollars,omitempty" yaml:"hard_limit_dollars,omitempty" toml:"hard_limit_dollars,omitempty" validate:"omitempty,gte=0"`
}

// APISettings holds client retry settings.
type APISettings struct {
	RetryBackoffBase float64 `json:"retry_backoff_base,omitempty" yaml:"retry_backoff_base,omitempty" toml:"retry_backoff_base,omitempty" validate:"gte=0"`
}

// LoadAgency reads and validates the agency document at path. The decoder is
// picked by extension: .json, .yaml/.yml or .toml.
func LoadAgency(path string) (*AgencyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.WrapConfig(fmt.Sprintf("read agency config %s", path), err)
	}

	cfg, err := ParseAgency(data, formatFromPath(path))
	if err != nil {
		return nil, err
	}
	cfg.source = path
	return cfg, nil
}

// ParseAgency decodes an agency document of the given format ("json", "yaml"
// or "toml"), applies defaults and validates it.
func ParseAgency(data []byte, format string) (*AgencyConfig, error) {
	var cfg AgencyConfig

	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&cfg); err != nil {
			return nil, services.WrapConfig("decode json agency config", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, services.WrapConfig("decode yaml agency config", err)
		}
	case "toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, services.WrapConfig("decode toml agency config", err)
		}
	default:
		return nil, services.NewConfigError("unsupported agency config format %q", format)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

// normalize lower-cases provider names everywhere they appear.
func (c *AgencyConfig) normalize() error {
	providers := make(map[string]*ProviderConfig, len(c.Providers))
	for name, p := range c.Providers {
		key := NormalizeProviderName(name)
		if _, dup := providers[key]; dup {
			return services.NewConfigError("provider %q is defined more than once", key)
		}
		providers[key] = p
	}
	c.Providers = providers

	for _, a := range c.Agents {
		if a == nil {
			continue
		}
		a.Provider = NormalizeProviderName(a.Provider)
		for i, f := range a.FallbackProviders {
			a.FallbackProviders[i] = NormalizeProviderName(f)
		}
	}
	return nil
}

func (c *AgencyConfig) applyDefaults() {
	if c.UsageControl.TrackFile == "" {
		c.UsageControl.TrackFile = DefaultTrackFile
	}
	if c.UsageControl.CostTracking.HardLimitDollars == nil {
		limit := DefaultHardLimitDollars
		c.UsageControl.CostTracking.HardLimitDollars = &limit
	}
	if c.API.RetryBackoffBase == 0 {
		c.API.RetryBackoffBase = DefaultRetryBackoffBase
	}
	for _, p := range c.Providers {
		if p != nil && p.MaxTokens == 0 {
			p.MaxTokens = DefaultMaxTokens
		}
	}
	for _, a := range c.Agents {
		if a != nil && a.RateLimit.RequestsPerDay == nil {
			n := DefaultRequestsPerDay
			a.RateLimit.RequestsPerDay = &n
		}
	}
}

// Validate checks struct constraints and cross references. Every failure is
// a config error.
func (c *AgencyConfig) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return services.WrapConfig("invalid agency config", err)
	}

	for _, name := range c.ProviderNames() {
		p := c.Providers[name]
		if !p.Enabled {
			continue
		}
		if p.APIKeyEnvVar == "" {
			return services.NewConfigError("provider %q is enabled but has no api_key_env_var", name)
		}
		if !p.Billing.Complete() {
			return services.NewConfigError("provider %q is enabled but billing rates are incomplete", name)
		}
	}

	for _, name := range c.AgentNames() {
		a := c.Agents[name]
		if _, ok := c.Providers[a.Provider]; !ok {
			return services.NewConfigError("agent %q references unknown provider %q", name, a.Provider)
		}
		for _, f := range a.FallbackProviders {
			if _, ok := c.Providers[f]; !ok {
				return services.NewConfigError("agent %q references unknown fallback provider %q", name, f)
			}
		}
	}

	return nil
}

// Source returns the path the document was loaded from.
func (c *AgencyConfig) Source() string {
	return c.source
}

// Provider looks up a provider by case-insensitive name.
func (c *AgencyConfig) Provider(name string) (*ProviderConfig, bool) {
	p, ok := c.Providers[NormalizeProviderName(name)]
	return p, ok && p != nil
}

// Agent looks up an agent by exact name.
func (c *AgencyConfig) Agent(name string) (*AgentConfig, bool) {
	a, ok := c.Agents[name]
	return a, ok && a != nil
}

// ProviderNames returns all configured provider names, sorted.
func (c *AgencyConfig) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AgentNames returns all configured agent names, sorted.
func (c *AgencyConfig) AgentNames() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HardLimitDollars returns the monthly cost cap.
func (c *AgencyConfig) HardLimitDollars() float64 {
	if c.UsageControl.CostTracking.HardLimitDollars == nil {
		return DefaultHardLimitDollars
	}
	return *c.UsageControl.CostTracking.HardLimitDollars
}

// RequestsPerDay returns the daily request cap for an agent.
func (a *AgentConfig) RequestsPerDay() int {
	if a.RateLimit.RequestsPerDay == nil {
		return DefaultRequestsPerDay
	}
	return *a.RateLimit.RequestsPerDay
}

// NormalizeProviderName canonicalizes a provider name for lookups.
func NormalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
