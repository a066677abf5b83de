package observability

import "context"

// Metrics collects client metrics.
type Metrics interface {
	RecordRequest(ctx context.Context, labels RequestLabels)
	RecordTokens(ctx context.Context, input, output int, labels RequestLabels)
	RecordCost(ctx context.Context, cost float64, labels RequestLabels)
	RecordRetry(ctx context.Context, labels RequestLabels)
	RecordFallback(ctx context.Context, from, to string, labels RequestLabels)
	RecordLimitRejection(ctx context.Context, limit string, labels RequestLabels)
}

// RequestLabels contains metric dimensions.
type RequestLabels struct {
	Agent    string
	Provider string
	Status   string
}

// NopMetrics discards everything
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) RecordRequest(context.Context, RequestLabels) {}
func (NopMetrics) RecordTokens(context.Context, int, int, RequestLabels) {}
func (NopMetrics) RecordCost(context.Context, float64, RequestLabels) {}
func (NopMetrics) RecordRetry(context.Context, RequestLabels) {}
func (NopMetrics) RecordFallback(context.Context, string, string, RequestLabels) {}
func (NopMetrics) RecordLimitRejection(context.Context, string, RequestLabels) {}
