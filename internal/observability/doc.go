// Package observability provides structured logging and metrics for the
// agency client.
//
// Logging is zap-based and configured from LOG_LEVEL and LOG_FORMAT.
// Metrics are recorded through the Metrics interface; the Prometheus
// implementation is exposed over HTTP by long-running commands only.
package observability
