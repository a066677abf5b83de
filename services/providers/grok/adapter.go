// Package grok is a scaffold for the xAI Grok provider. It is registered so
// agents can name it, but every call fails as not implemented.
package grok

import (
	"context"

	"github.com/upb/agency-llm-client/services/providers"
)

// Kind is the provider name this adapter is registered under
const Kind = "grok"

// Adapter implements providers.Provider without network access
type Adapter struct {
	settings providers.Settings
}

// New is a providers.Builder
func New(settings providers.Settings) (providers.Provider, error) {
	return &Adapter{settings: settings}, nil
}

// Name returns the provider name
func (a *Adapter) Name() string {
	if a.settings.Name != "" {
		return a.settings.Name
	}
	return Kind
}

// Model returns the configured model
func (a *Adapter) Model() string {
	return a.settings.Config.Model
}

// Call always fails with a non-retryable not-implemented error
func (a *Adapter) Call(ctx context.Context, messages []providers.Message, systemPrompt string, maxTokens int) (*providers.APIResponse, error) {
	return nil, providers.NewNotImplementedError(a.Name())
}

// CalculateCost prices a call from the configured billing rates
func (a *Adapter) CalculateCost(inputTokens, outputTokens int) (float64, error) {
	return providers.CalculateCost(a.settings.Config.Billing, inputTokens, outputTokens)
}

// ValidateAPIKey reports false until the API is implemented
func (a *Adapter) ValidateAPIKey(ctx context.Context) bool {
	return false
}
