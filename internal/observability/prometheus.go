package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/agency-llm-client/models"
	"github.com/upb/agency-llm-client/services/usage"
)

const namespace = "agency"

// PrometheusMetrics implements Metrics with client_golang collectors
type PrometheusMetrics struct {
	gatherer prometheus.Gatherer

	requests        *prometheus.CounterVec
	tokens          *prometheus.CounterVec
	cost            *prometheus.CounterVec
	retries         *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	limitRejections *prometheus.CounterVec

	// Usage log gauges, set from each summary
	usageCalls   *prometheus.GaugeVec
	usageTokens  prometheus.Gauge
	usageCost    prometheus.Gauge
	bucketCalls  *prometheus.GaugeVec
	bucketTokens *prometheus.GaugeVec
	bucketCost   *prometheus.GaugeVec
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the collectors on a fresh registry
func NewPrometheusMetrics() (*PrometheusMetrics, error) {
	return NewPrometheusMetricsWith(prometheus.NewRegistry())
}

// NewPrometheusMetricsWith registers the collectors on reg
func NewPrometheusMetricsWith(reg *prometheus.Registry) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		gatherer: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Client calls by agent, provider and terminal status.",
		}, []string{"agent", "provider", "status"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by successful calls.",
		}, []string{"agent", "provider", "direction"}),
		cost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_usd_total",
			Help:      "Cost in USD of successful calls.",
		}, []string{"agent", "provider"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Provider attempts retried after a failure.",
		}, []string{"agent", "provider"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Moves from a failed provider to the next in the chain.",
		}, []string{"agent", "from", "to"}),
		limitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "limit_rejections_total",
			Help:      "Calls stopped by a usage limit before any provider was contacted.",
		}, []string{"agent", "limit"}),
		usageCalls: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "calls",
			Help:      "Entries in the usage log by status.",
		}, []string{"status"}),
		usageTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "tokens",
			Help:      "Tokens recorded by successful calls in the usage log.",
		}),
		usageCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "cost_usd",
			Help:      "Cost in USD recorded by successful calls in the usage log.",
		}),
		bucketCalls: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "bucket_calls",
			Help:      "Successful calls in the usage log by provider or agent.",
		}, []string{"dimension", "name"}),
		bucketTokens: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "bucket_tokens",
			Help:      "Tokens in the usage log by provider or agent.",
		}, []string{"dimension", "name"}),
		bucketCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "bucket_cost_usd",
			Help:      "Cost in USD in the usage log by provider or agent.",
		}, []string{"dimension", "name"}),
	}

	for _, c := range []prometheus.Collector{
		m.requests, m.tokens, m.cost, m.retries, m.fallbacks, m.limitRejections,
		m.usageCalls, m.usageTokens, m.usageCost, m.bucketCalls, m.bucketTokens, m.bucketCost,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) RecordRequest(_ context.Context, l RequestLabels) {
	m.requests.WithLabelValues(l.Agent, l.Provider, l.Status).Inc()
}

func (m *PrometheusMetrics) RecordTokens(_ context.Context, input, output int, l RequestLabels) {
	m.tokens.WithLabelValues(l.Agent, l.Provider, "input").Add(float64(input))
	m.tokens.WithLabelValues(l.Agent, l.Provider, "output").Add(float64(output))
}

func (m *PrometheusMetrics) RecordCost(_ context.Context, cost float64, l RequestLabels) {
	if cost > 0 {
		m.cost.WithLabelValues(l.Agent, l.Provider).Add(cost)
	}
}

func (m *PrometheusMetrics) RecordRetry(_ context.Context, l RequestLabels) {
	m.retries.WithLabelValues(l.Agent, l.Provider).Inc()
}

func (m *PrometheusMetrics) RecordFallback(_ context.Context, from, to string, l RequestLabels) {
	m.fallbacks.WithLabelValues(l.Agent, from, to).Inc()
}

func (m *PrometheusMetrics) RecordLimitRejection(_ context.Context, limit string, l RequestLabels) {
	m.limitRejections.WithLabelValues(l.Agent, limit).Inc()
}

// ObserveSummary sets the usage gauges from s. Buckets absent from s are
// removed so a scrape always matches the latest summary.
func (m *PrometheusMetrics) ObserveSummary(s *usage.Summary) {
	if s == nil {
		return
	}
	m.usageCalls.WithLabelValues(string(models.UsageStatusSuccess)).Set(float64(s.TotalCalls - s.FailedCalls))
	m.usageCalls.WithLabelValues(string(models.UsageStatusFailure)).Set(float64(s.FailedCalls))
	m.usageTokens.Set(float64(s.TotalTokens))
	m.usageCost.Set(s.TotalCost)

	m.bucketCalls.Reset()
	m.bucketTokens.Reset()
	m.bucketCost.Reset()
	m.observeBuckets("provider", s.ByProvider)
	m.observeBuckets("agent", s.ByAgent)
}

func (m *PrometheusMetrics) observeBuckets(dimension string, buckets map[string]*usage.Bucket) {
	for name, b := range buckets {
		m.bucketCalls.WithLabelValues(dimension, name).Set(float64(b.Calls))
		m.bucketTokens.WithLabelValues(dimension, name).Set(float64(b.Tokens))
		m.bucketCost.WithLabelValues(dimension, name).Set(b.Cost)
	}
}

// Handler exposes the metrics in Prometheus text exposition format
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr until ctx is done
func (m *PrometheusMetrics) StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
