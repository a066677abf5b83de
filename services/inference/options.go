package inference

import (
	"context"
	"time"

	"github.com/upb/agency-llm-client/internal/observability"
	"github.com/upb/agency-llm-client/services/credentials"
	"github.com/upb/agency-llm-client/services/providers"
	"go.uber.org/zap"
)

// DefaultMaxAttempts is the per-provider attempt ceiling
const DefaultMaxAttempts = 3

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures an APIClient
type Option func(*APIClient)

// WithPreferredProvider overrides the agent's primary provider. The agent's
// fallback chain still follows it.
func WithPreferredProvider(name string) Option {
	return func(c *APIClient) {
		c.preferred = name
	}
}

// WithMaxAttempts sets the per-provider attempt ceiling; values below 1 are ignored
func WithMaxAttempts(n int) Option {
	return func(c *APIClient) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithSleeper replaces the backoff sleep
func WithSleeper(sleep Sleeper) Option {
	return func(c *APIClient) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *APIClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(metrics observability.Metrics) Option {
	return func(c *APIClient) {
		if metrics != nil {
			c.metrics = metrics
		}
	}
}

// WithFactory replaces the provider factory
func WithFactory(factory *providers.Factory) Option {
	return func(c *APIClient) {
		if factory != nil {
			c.factory = factory
		}
	}
}

// WithCredentials replaces the credential manager
func WithCredentials(creds *credentials.Manager) Option {
	return func(c *APIClient) {
		if creds != nil {
			c.credentials = creds
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
