// Package metrics provides Prometheus metrics for the Chatello gateway.
//
// # Metrics Categories
//
//   - HTTP Metrics: request count and duration by route and status
//   - Gate Metrics: admission outcomes and limit rejections by dimension
//   - Provider Metrics: upstream latency, tokens, and errors
//   - Licensing Metrics: seat allocations and lazy expirations
//   - Analytics Metrics: daily rollup job runs
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	router.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
//	collector.RecordGateDecision("rejected", "limit_exceeded")
//	collector.RecordLimitRejection("requests_per_minute")
//
// All Record methods are safe on a nil *Collector, so components can be
// constructed without metrics in tests.
package metrics
