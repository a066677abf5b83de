package app

import (
	"context"
	"fmt"

	"github.com/upb/agency-llm-client/config"
	"github.com/upb/agency-llm-client/internal/observability"
	"github.com/upb/agency-llm-client/repositories"
	"github.com/upb/agency-llm-client/repositories/filestore"
	"github.com/upb/agency-llm-client/repositories/redisstore"
	"github.com/upb/agency-llm-client/repositories/sqlstore"
	"github.com/upb/agency-llm-client/services/credentials"
	"github.com/upb/agency-llm-client/services/inference"
	"github.com/upb/agency-llm-client/services/providers"
	"github.com/upb/agency-llm-client/services/providers/builtin"
	"github.com/upb/agency-llm-client/services/providers/chatgpt"
	"github.com/upb/agency-llm-client/services/providers/claude"
	"github.com/upb/agency-llm-client/services/providers/grok"
	"github.com/upb/agency-llm-client/services/usage"
	"go.uber.org/zap"
)

// Dependencies holds everything a client process needs.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Agency *config.AgencyConfig
	Logger *zap.Logger

	// Usage log
	Store   repositories.UsageRepository
	Tracker *usage.Tracker

	// Providers
	Factory     *providers.Factory
	Credentials *credentials.Manager

	// Metrics is Nop unless metrics are enabled; Prometheus is then non-nil
	Metrics    observability.Metrics
	Prometheus *observability.PrometheusMetrics
}

// NewDependencies loads the agency document and wires the usage store,
// tracker, provider factory and metrics.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	agency, err := config.LoadAgency(cfg.AgencyPath)
	if err != nil {
		return nil, err
	}
	deps.Agency = agency

	if err := deps.initStore(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize usage store: %w", err)
	}

	deps.Tracker = usage.NewTracker(deps.Store, agency, usage.WithLogger(logger))
	deps.Credentials = credentials.NewManager(agency)
	deps.initProviders()

	if err := deps.initMetrics(); err != nil {
		_ = deps.Store.Close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("agency", agency.Source()),
		zap.String("store", cfg.Store.LogString()))
	return deps, nil
}

// initStore opens the usage log backend selected by the store driver
func (d *Dependencies) initStore(ctx context.Context) error {
	store := d.Config.Store

	switch {
	case store.Driver == config.DriverFile:
		d.Store = filestore.New(d.Agency.UsageControl.TrackFile, d.Logger)

	case store.IsSQL():
		db, err := sqlstore.Open(store.Driver, store.DSN, sqlstore.PoolConfig{
			MaxOpenConns:    store.MaxOpenConns,
			MaxIdleConns:    store.MaxIdleConns,
			ConnMaxLifetime: store.ConnMaxLifetime,
		}, d.Logger)
		if err != nil {
			return err
		}
		if err := db.InitSchema(ctx); err != nil {
			db.Close()
			return err
		}
		d.Store = sqlstore.NewUsageRepository(db)

	case store.Driver == config.DriverRedis:
		rs, err := redisstore.New(ctx, redisstore.Config{
			Addr:     store.Redis.Addr,
			Password: store.Redis.Password,
			DB:       store.Redis.DB,
			Key:      store.Redis.Key,
		}, d.Logger)
		if err != nil {
			return err
		}
		d.Store = rs

	default:
		return fmt.Errorf("unsupported usage store driver %q", store.Driver)
	}

	d.Logger.Info("usage store ready", zap.String("store", store.LogString()))
	return nil
}

// initProviders builds the provider factory with per-kind endpoint overrides
func (d *Dependencies) initProviders() {
	p := d.Config.Providers
	d.Factory = builtin.NewFactory().
		WithEndpoint(claude.Kind, endpoint(p.Claude)).
		WithEndpoint(chatgpt.Kind, endpoint(p.ChatGPT)).
		WithEndpoint(grok.Kind, endpoint(p.Grok))

	enabled := providers.ListEnabled(d.Agency)
	if len(enabled) == 0 {
		d.Logger.Warn("no LLM providers enabled")
	}
	d.Logger.Info("providers registered", zap.Strings("known", d.Factory.Known()), zap.Strings("enabled", enabled))
}

func endpoint(cfg config.EndpointConfig) providers.Endpoint {
	return providers.Endpoint{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}
}

func (d *Dependencies) initMetrics() error {
	if !d.Config.Observability.MetricsEnabled {
		d.Metrics = observability.NopMetrics{}
		return nil
	}
	m, err := observability.NewPrometheusMetrics()
	if err != nil {
		return err
	}
	d.Metrics = m
	d.Prometheus = m
	return nil
}

// NewClient returns an APIClient for agent. preferred may be empty.
func (d *Dependencies) NewClient(agent, preferred string) (*inference.APIClient, error) {
	return inference.NewAPIClient(d.Agency, agent, d.Tracker,
		inference.WithPreferredProvider(preferred),
		inference.WithMaxAttempts(d.Config.MaxAttempts),
		inference.WithFactory(d.Factory),
		inference.WithCredentials(d.Credentials),
		inference.WithMetrics(d.Metrics),
		inference.WithLogger(d.Logger),
	)
}

// Summary aggregates the usage log and, when metrics are enabled, publishes
// it on the usage gauges.
func (d *Dependencies) Summary(ctx context.Context) (*usage.Summary, error) {
	summary, err := d.Tracker.GetUsageSummary(ctx)
	if err != nil {
		return nil, err
	}
	if d.Prometheus != nil {
		d.Prometheus.ObserveSummary(summary)
	}
	return summary, nil
}

// TrackFile returns the usage log path when the file driver is in use
func (d *Dependencies) TrackFile() (string, bool) {
	if fs, ok := d.Store.(*filestore.Store); ok {
		return fs.Path(), true
	}
	return "", false
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close usage store: %w", err))
		} else {
			d.Logger.Info("usage store closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
