// Package metric provides Prometheus metrics for the onboarding service.
//
//   - prometheus.go: the metrics registry, recorders, and HTTP handler
//   - collector.go: a custom collector for storage usage
//
// Metrics include:
//
//   - Save outcomes and latency per auto-save controller
//   - Retry and observer emission counters
//   - Active controller gauge
//   - HTTP request counters and latency
//   - Storage usage against quota
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
