// Package observability provides structured logging and metrics for the
// organization control plane.
//
// Loggers are built once at startup and passed by constructor injection;
// FromContext decorates them with the request id chi assigns. Metrics are
// registered on the default Prometheus registry and served at /metrics.
package observability
