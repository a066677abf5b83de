package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/agency-llm-client/config"
	"github.com/upb/agency-llm-client/models"
	"github.com/upb/agency-llm-client/services"
)

// ErrNotImplemented marks a provider variant that cannot serve calls yet.
// The client skips the remaining retries of such a provider.
var ErrNotImplemented = errors.New("provider not implemented")

// Provider is the capability every LLM vendor integration implements
type Provider interface {
	// Name returns the provider name as configured (e.g. "claude")
	Name() string

	// Model returns the configured vendor model identifier
	Model() string

	// Call sends one chat request. maxTokens <= 0 uses the configured max_tokens.
	Call(ctx context.Context, messages []Message, systemPrompt string, maxTokens int) (*APIResponse, error)

	// CalculateCost prices a call from the configured billing rates
	CalculateCost(inputTokens, outputTokens int) (float64, error)

	// ValidateAPIKey makes a minimal real call and reports whether it succeeded
	ValidateAPIKey(ctx context.Context) bool
}

// Message is a single chat turn
type Message struct {
	// Role is "user" or "assistant"; system prompts travel separately
	Role    string `json:"role"`
	Content string `json:"content"`
}

// APIResponse is the normalized result of a successful call
type APIResponse struct {
	Content      string  `json:"content"`
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Provider     string  `json:"provider"`
}

// TotalTokens returns input plus output tokens
func (r *APIResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// CalculateCost prices a call. Rates are per million tokens and the result is
// tokens*rate/1000 per side, rounded to 6 decimals, for every provider.
func CalculateCost(billing *config.Billing, inputTokens, outputTokens int) (float64, error) {
	if !billing.Complete() {
		return 0, services.NewConfigError("billing rates are incomplete")
	}
	inputCost := float64(inputTokens) * *billing.InputPerMTok / 1000
	outputCost := float64(outputTokens) * *billing.OutputPerMTok / 1000
	return models.Round(inputCost+outputCost, 6), nil
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable is true for transport failures, 429 and 5xx
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, services.ErrProvider) hold for every provider error
func (e *ProviderError) Is(target error) bool {
	return target == services.ErrProvider
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// NewNotImplementedError creates the non-retryable error of a scaffolded provider
func NewNotImplementedError(provider string) *ProviderError {
	return NewProviderError(provider, "NOT_IMPLEMENTED",
		fmt.Sprintf("%s provider is scaffolded but not implemented", provider), 0, false, ErrNotImplemented)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// IsNotImplemented checks if an error comes from a scaffolded provider
func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}
