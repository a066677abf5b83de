// Package usage records every provider attempt and enforces the per-agent
// daily request cap and the global monthly cost cap.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/upb/agency-llm-client/config"
	"github.com/upb/agency-llm-client/models"
	"github.com/upb/agency-llm-client/repositories"
	"github.com/upb/agency-llm-client/services"
	"go.uber.org/zap"
)

// Bucket aggregates successful calls for one provider or agent
type Bucket struct {
	Calls  int     `json:"calls"`
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// Summary aggregates the whole log. TotalCalls counts every entry; tokens,
// cost and the buckets only count successes.
type Summary struct {
	TotalCalls  int                `json:"total_calls"`
	FailedCalls int                `json:"failed_calls"`
	TotalTokens int                `json:"total_tokens"`
	TotalCost   float64            `json:"total_cost"`
	ByProvider  map[string]*Bucket `json:"by_provider"`
	ByAgent     map[string]*Bucket `json:"by_agent"`
}

// CostCheckResult is the outcome of the monthly cost check
type CostCheckResult struct {
	WithinLimit bool
	CurrentCost float64
	Limit       float64
	Month       string
}

// RequestCheckResult is the outcome of the daily request check
type RequestCheckResult struct {
	WithinLimit bool
	CountToday  int
	Limit       int
	Day         string
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock replaces time.Now. The clock's location defines calendar days and months.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Tracker reads and appends the usage log. Every query loads the full log.
//
// Daily request slots handed out by ReserveRequest are counted until their
// entry is written, so callers sharing one Tracker cannot overshoot an
// agent's daily cap. Processes sharing a log do not see each other's
// reservations.
type Tracker struct {
	repo   repositories.UsageRepository
	agency *config.AgencyConfig
	now    func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]int
}

// Reservation holds one of an agent's daily request slots. It is freed by
// LogRequest or Release, whichever comes first.
type Reservation struct {
	tracker  *Tracker
	agent    string
	released bool
}

// NewTracker creates a tracker over repo
func NewTracker(repo repositories.UsageRepository, agency *config.AgencyConfig, opts ...Option) *Tracker {
	t := &Tracker{
		repo:   repo,
		agency: agency,
		now:     time.Now,
		logger:  zap.NewNop(),
		pending: make(map[string]int),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LogRequest appends one entry stamped with the tracker clock
func (t *Tracker) LogRequest(ctx context.Context, agent, provider string, tokensIn, tokensOut int, cost float64, status models.UsageStatus, metadata map[string]interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendLocked(ctx, agent, provider, tokensIn, tokensOut, cost, status, metadata)
}

// ReserveRequest runs the daily request check counting in-flight
// reservations as used. A reservation is returned only when the agent is
// within its limit.
func (t *Tracker) ReserveRequest(ctx context.Context, agent string) (*RequestCheckResult, *Reservation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	result, err := t.CheckRequestsPerAgentPerDay(ctx, agent)
	if err != nil {
		return nil, nil, err
	}
	result.CountToday += t.pending[agent]
	result.WithinLimit = result.CountToday < result.Limit
	if !result.WithinLimit {
		return result, nil, nil
	}

	t.pending[agent]++
	return result, &Reservation{tracker: t, agent: agent}, nil
}

// LogRequest appends the reserved call's entry and frees the slot in one
// step. The slot is freed even when the append fails.
func (r *Reservation) LogRequest(ctx context.Context, provider string, tokensIn, tokensOut int, cost float64, status models.UsageStatus, metadata map[string]interface{}) error {
	t := r.tracker
	t.mu.Lock()
	defer t.mu.Unlock()
	defer t.releaseLocked(r)
	return t.appendLocked(ctx, r.agent, provider, tokensIn, tokensOut, cost, status, metadata)
}

// Release frees the slot without writing an entry. It is safe on a nil or
// already released reservation.
func (r *Reservation) Release() {
	if r == nil {
		return
	}
	r.tracker.mu.Lock()
	defer r.tracker.mu.Unlock()
	r.tracker.releaseLocked(r)
}

// Pending returns the number of unreleased reservations for agent
func (t *Tracker) Pending(agent string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[agent]
}

func (t *Tracker) releaseLocked(r *Reservation) {
	if r.released {
		return
	}
	r.released = true
	t.pending[r.agent]--
	if t.pending[r.agent] <= 0 {
		delete(t.pending, r.agent)
	}
}

func (t *Tracker) appendLocked(ctx context.Context, agent, provider string, tokensIn, tokensOut int, cost float64, status models.UsageStatus, metadata map[string]interface{}) error {
	entry := models.NewUsageLogEntry(t.now(), agent, provider, tokensIn, tokensOut, cost, status).
		WithMetadata(metadata)

	if err := t.repo.Append(ctx, entry); err != nil {
		return services.WrapInternal("append usage entry", err)
	}

	t.logger.Debug("usage entry recorded",
		zap.String("agent", agent),
		zap.String("provider", provider),
		zap.String("status", string(status)),
		zap.Int("total_tokens", entry.TotalTokens),
		zap.Float64("cost_usd", entry.CostUSD),
	)
	return nil
}

// GetUsageSummary folds the whole log into totals
func (t *Tracker) GetUsageSummary(ctx context.Context) (*Summary, error) {
	entries, err := t.load(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TotalCalls: len(entries),
		ByProvider: make(map[string]*Bucket),
		ByAgent:    make(map[string]*Bucket),
	}

	for _, e := range entries {
		if !e.IsSuccess() {
			summary.FailedCalls++
			continue
		}

		summary.TotalTokens += e.TotalTokens
		summary.TotalCost += e.CostUSD
		addTo(summary.ByProvider, orUnknown(e.Provider), e)
		addTo(summary.ByAgent, orUnknown(e.Agent), e)
	}

	summary.TotalCost = models.Round(summary.TotalCost, 4)
	for _, b := range summary.ByProvider {
		b.Cost = models.Round(b.Cost, 4)
	}
	for _, b := range summary.ByAgent {
		b.Cost = models.Round(b.Cost, 4)
	}
	return summary, nil
}

// CheckCostLimit sums the cost of every entry in the current calendar month.
// The call is within limit only while the sum is strictly below the cap.
func (t *Tracker) CheckCostLimit(ctx context.Context) (*CostCheckResult, error) {
	entries, err := t.load(ctx)
	if err != nil {
		return nil, err
	}

	now := t.now()
	month := now.Format(models.MonthKeyLayout)

	var current float64
	for _, e := range entries {
		if e.MonthKey(now.Location()) == month {
			current += e.CostUSD
		}
	}
	current = models.Round(current, 4)
	limit := t.agency.HardLimitDollars()

	return &CostCheckResult{
		WithinLimit: current < limit,
		CurrentCost: current,
		Limit:       limit,
		Month:       month,
	}, nil
}

// CheckRequestsPerAgentPerDay counts the agent's entries dated today
func (t *Tracker) CheckRequestsPerAgentPerDay(ctx context.Context, agent string) (*RequestCheckResult, error) {
	agentCfg, ok := t.agency.Agent(agent)
	if !ok {
		return nil, services.NewConfigError("agent %q not found in config", agent)
	}

	entries, err := t.load(ctx)
	if err != nil {
		return nil, err
	}

	now := t.now()
	day := now.Format(models.DayKeyLayout)

	count := 0
	for _, e := range entries {
		if e.Agent == agent && e.DayKey(now.Location()) == day {
			count++
		}
	}
	limit := agentCfg.RequestsPerDay()

	return &RequestCheckResult{
		WithinLimit: count < limit,
		CountToday:  count,
		Limit:       limit,
		Day:         day,
	}, nil
}

func (t *Tracker) load(ctx context.Context) ([]*models.UsageLogEntry, error) {
	entries, err := t.repo.List(ctx)
	if err != nil {
		return nil, services.WrapInternal("read usage log", err)
	}
	return entries, nil
}

func addTo(buckets map[string]*Bucket, key string, e *models.UsageLogEntry) {
	b, ok := buckets[key]
	if !ok {
		b = &Bucket{}
		buckets[key] = b
	}
	b.Calls++
	b.Tokens += e.TotalTokens
	b.Cost += e.CostUSD
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
