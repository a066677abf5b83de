// Package inference provides APIClient, the single entry point agents use
// to call any configured LLM provider under usage governance.
package inference

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/upb/agency-llm-client/config"
	"github.com/upb/agency-llm-client/internal/observability"
	"github.com/upb/agency-llm-client/models"
	"github.com/upb/agency-llm-client/services"
	"github.com/upb/agency-llm-client/services/credentials"
	"github.com/upb/agency-llm-client/services/providers"
	"github.com/upb/agency-llm-client/services/providers/builtin"
	"github.com/upb/agency-llm-client/services/usage"
	"go.uber.org/zap"
)

// APIClient runs calls for one agent: limit checks, provider fallback,
// retries with exponential backoff and usage logging.
type APIClient struct {
	agency      *config.AgencyConfig
	agent       string
	agentConfig *config.AgentConfig
	tracker     *usage.Tracker

	preferred   string
	maxAttempts int
	sleep       Sleeper
	factory     *providers.Factory
	credentials *credentials.Manager
	metrics     observability.Metrics
	logger      *zap.Logger
}

// NewAPIClient binds a client to agent. An unknown agent is a config error.
func NewAPIClient(agency *config.AgencyConfig, agent string, tracker *usage.Tracker, opts ...Option) (*APIClient, error) {
	if agency == nil {
		return nil, services.NewConfigError("agency config is required")
	}
	if tracker == nil {
		return nil, services.NewConfigError("usage tracker is required")
	}

	agentCfg, ok := agency.Agent(agent)
	if !ok {
		return nil, services.NewConfigError("agent %q not found in config (available: %v)", agent, agency.AgentNames())
	}

	c := &APIClient{
		agency:      agency,
		agent:       agent,
		agentConfig: agentCfg,
		tracker:     tracker,
		maxAttempts: DefaultMaxAttempts,
		sleep:       sleepContext,
		metrics:     observability.NopMetrics{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.factory == nil {
		c.factory = builtin.NewFactory()
	}
	if c.credentials == nil {
		c.credentials = credentials.NewManager(agency)
	}
	c.logger = c.logger.With(zap.String("agent", agent))

	return c, nil
}

// Agent returns the agent this client is bound to
func (c *APIClient) Agent() string {
	return c.agent
}

// ProviderOrder returns the providers a call tries: the primary, then the
// agent's fallbacks in configured order.
func (c *APIClient) ProviderOrder() []string {
	primary := c.agentConfig.Provider
	if c.preferred != "" {
		primary = config.NormalizeProviderName(c.preferred)
	}

	order := make([]string, 0, 1+len(c.agentConfig.FallbackProviders))
	order = append(order, primary)
	order = append(order, c.agentConfig.FallbackProviders...)
	return order
}

// Call sends messages to the first provider in ProviderOrder that succeeds.
//
// Limit, config and credential errors abort the whole call. Provider errors
// are retried up to the attempt ceiling and then move on to the next
// provider. When the last provider fails, a failure entry is logged and an
// all_providers_failed error wrapping the last provider error is returned.
func (c *APIClient) Call(ctx context.Context, messages []providers.Message, systemPrompt string, maxTokens int) (*providers.APIResponse, error) {
	requestID := uuid.NewString()
	logger := c.logger.With(zap.String("request_id", requestID))

	reservation, err := c.checkLimits(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer reservation.Release()

	order := c.ProviderOrder()
	logger.Debug("starting call", zap.Strings("providers", order), zap.Int("messages", len(messages)))

	var lastErr error
	for i, name := range order {
		labels := observability.RequestLabels{Agent: c.agent, Provider: name}

		provider, err := c.resolve(name)
		if err != nil {
			logger.Error("provider cannot be used", zap.String("provider", name), zap.Error(err))
			return nil, err
		}

		resp, attempts, err := c.callWithRetries(ctx, logger, provider, messages, systemPrompt, maxTokens)
		if err == nil {
			c.recordSuccess(ctx, logger, reservation, name, resp, maxTokens, requestID, attempts)
			return resp, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn("call canceled", zap.String("provider", name), zap.Error(ctxErr))
			return nil, services.WrapInternal("call canceled", ctxErr)
		}
		if services.IsConfigError(err) || services.IsCredentialError(err) {
			logger.Error("provider configuration error", zap.String("provider", name), zap.Error(err))
			return nil, err
		}

		lastErr = err
		if i < len(order)-1 {
			next := order[i+1]
			logger.Warn("provider failed, trying fallback",
				zap.String("provider", name),
				zap.String("fallback", next),
				zap.Int("attempts", attempts),
				zap.Error(err))
			c.metrics.RecordFallback(ctx, name, next, labels)
			continue
		}
	}

	last := order[len(order)-1]
	c.logUsage(ctx, logger, reservation, last, 0, 0, 0, models.UsageStatusFailure, map[string]interface{}{
		"error":      lastErr.Error(),
		"request_id": requestID,
	})
	c.metrics.RecordRequest(ctx, observability.RequestLabels{Agent: c.agent, Provider: last, Status: string(models.UsageStatusFailure)})

	logger.Error("all providers failed", zap.Strings("providers", order), zap.Error(lastErr))
	return nil, services.NewAllProvidersFailedError(order, lastErr)
}

// GetSummary returns the usage summary of the whole log
func (c *APIClient) GetSummary(ctx context.Context) (*usage.Summary, error) {
	return c.tracker.GetUsageSummary(ctx)
}

// Status reports credential readiness for every configured provider
func (c *APIClient) Status() map[string]credentials.Status {
	return c.credentials.ValidateAll()
}

// checkLimits reserves a daily request slot, then runs the monthly cost
// check. The slot is held until the call's entry is written.
func (c *APIClient) checkLimits(ctx context.Context, logger *zap.Logger) (*usage.Reservation, error) {
	labels := observability.RequestLabels{Agent: c.agent}

	daily, reservation, err := c.tracker.ReserveRequest(ctx, c.agent)
	if err != nil {
		return nil, err
	}
	if !daily.WithinLimit {
		logger.Warn("daily request limit reached", zap.Int("count", daily.CountToday), zap.Int("limit", daily.Limit))
		c.metrics.RecordLimitRejection(ctx, services.LimitRequestsPerDay, labels)
		return nil, services.NewLimitExceededError(services.LimitRequestsPerDay, daily.CountToday, daily.Limit,
			fmt.Sprintf("daily request limit exceeded for %s (%d/%d requests today)", c.agent, daily.CountToday, daily.Limit))
	}

	cost, err := c.tracker.CheckCostLimit(ctx)
	if err != nil {
		reservation.Release()
		return nil, err
	}
	if !cost.WithinLimit {
		reservation.Release()
		logger.Warn("monthly cost limit reached", zap.Float64("cost", cost.CurrentCost), zap.Float64("limit", cost.Limit))
		c.metrics.RecordLimitRejection(ctx, services.LimitMonthlyCost, labels)
		return nil, services.NewLimitExceededError(services.LimitMonthlyCost, cost.CurrentCost, cost.Limit,
			fmt.Sprintf("monthly cost limit exceeded ($%.2f/$%.2f), raise hard_limit_dollars", cost.CurrentCost, cost.Limit))
	}
	return reservation, nil
}

// resolve checks that name is configured and enabled, then resolves its
// credential and builds the provider
func (c *APIClient) resolve(name string) (providers.Provider, error) {
	cfg, ok := c.agency.Provider(name)
	if !ok {
		return nil, services.NewConfigError("provider %q not found in config", name)
	}
	if !cfg.Enabled {
		return nil, services.NewConfigError("provider %q is disabled in config", name)
	}

	apiKey, err := c.credentials.Get(name)
	if err != nil {
		return nil, err
	}

	return c.factory.Create(name, cfg, apiKey)
}

// callWithRetries invokes provider up to maxAttempts times, sleeping
// base^k seconds after failed attempt k. Not-implemented providers, config
// errors and a done context end the loop early.
func (c *APIClient) callWithRetries(ctx context.Context, logger *zap.Logger, provider providers.Provider, messages []providers.Message, systemPrompt string, maxTokens int) (*providers.APIResponse, int, error) {
	labels := observability.RequestLabels{Agent: c.agent, Provider: provider.Name()}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		resp, err := provider.Call(ctx, messages, systemPrompt, maxTokens)
		if err == nil {
			return resp, attempt + 1, nil
		}
		lastErr = err

		if providers.IsNotImplemented(err) || services.IsConfigError(err) || services.IsCredentialError(err) {
			return nil, attempt + 1, err
		}
		if attempt == c.maxAttempts-1 || ctx.Err() != nil {
			return nil, attempt + 1, err
		}

		wait := c.backoff(attempt)
		logger.Info("attempt failed, retrying",
			zap.String("provider", provider.Name()),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Duration("wait", wait),
			zap.Bool("retryable", providers.IsRetryable(err)),
			zap.Error(err))
		c.metrics.RecordRetry(ctx, labels)

		if err := c.sleep(ctx, wait); err != nil {
			return nil, attempt + 1, lastErr
		}
	}
	return nil, c.maxAttempts, lastErr
}

// backoff returns retry_backoff_base^attempt seconds
func (c *APIClient) backoff(attempt int) time.Duration {
	seconds := math.Pow(c.agency.API.RetryBackoffBase, float64(attempt))
	return time.Duration(seconds * float64(time.Second))
}

func (c *APIClient) recordSuccess(ctx context.Context, logger *zap.Logger, reservation *usage.Reservation, name string, resp *providers.APIResponse, maxTokens int, requestID string, attempts int) {
	metadata := map[string]interface{}{
		"request_id": requestID,
		"attempts":   attempts,
	}
	if maxTokens > 0 {
		metadata["max_tokens"] = maxTokens
	}
	c.logUsage(ctx, logger, reservation, name, resp.InputTokens, resp.OutputTokens, resp.CostUSD, models.UsageStatusSuccess, metadata)

	labels := observability.RequestLabels{Agent: c.agent, Provider: name, Status: string(models.UsageStatusSuccess)}
	c.metrics.RecordRequest(ctx, labels)
	c.metrics.RecordTokens(ctx, resp.InputTokens, resp.OutputTokens, labels)
	c.metrics.RecordCost(ctx, resp.CostUSD, labels)

	logger.Info("call succeeded",
		zap.String("provider", name),
		zap.String("model", resp.Model),
		zap.Int("attempts", attempts),
		zap.Int("tokens", resp.TotalTokens()),
		zap.Float64("cost_usd", resp.CostUSD))
}

// logUsage writes one entry through the call's reservation. A failed write
// is logged and swallowed.
func (c *APIClient) logUsage(ctx context.Context, logger *zap.Logger, reservation *usage.Reservation, provider string, tokensIn, tokensOut int, cost float64, status models.UsageStatus, metadata map[string]interface{}) {
	// The entry is written even when the caller's context is already done.
	writeCtx := context.WithoutCancel(ctx)
	if err := reservation.LogRequest(writeCtx, provider, tokensIn, tokensOut, cost, status, metadata); err != nil {
		logger.Error("failed to write usage log", zap.String("provider", provider), zap.String("status", string(status)), zap.Error(err))
	}
}
