// Package observability records queue-wide OpenTelemetry metrics from the
// event bus. A Recorder subscribes to every event kind and keeps
// lifecycle counters and queue-depth gauges current.
//
// For per-evaluation spans and metrics see middleware.Tracing and
// middleware.Metrics.
package observability
