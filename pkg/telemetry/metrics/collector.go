package metrics

import (
	"time"

	"chatello/gateway/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector owns the gateway's Prometheus registry and every metric family
// recorded by the gateway components.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	gateDecisions   *prometheus.CounterVec
	limitRejections *prometheus.CounterVec

	providerDuration *prometheus.HistogramVec
	providerTokens   *prometheus.CounterVec
	providerErrors   *prometheus.CounterVec

	seatAllocations *prometheus.CounterVec
	expirations     prometheus.Counter

	analyticsRuns *prometheus.CounterVec
}

// NewCollector creates a collector registering its metrics with registry.
// If registry is nil a fresh registry with Go and process collectors is
// created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	ns := cfg.Namespace
	if ns == "" {
		ns = config.DefaultMetricsNamespace
	}
	factory := promauto.With(registry)

	return &Collector{
		config:   cfg,
		registry: registry,

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "method", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"route", "method"}),

		gateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Request gate outcomes by result and error kind",
		}, []string{"outcome", "kind"}),

		limitRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "gate",
			Name:      "limit_rejections_total",
			Help:      "Limit check failures by blocking dimension",
		}, []string{"dimension"}),

		providerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Upstream AI provider call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider", "model"}),

		providerTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "provider",
			Name:      "tokens_total",
			Help:      "Tokens charged per provider, split by whether they were estimated",
		}, []string{"provider", "source"}),

		providerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Failed upstream provider calls by error type",
		}, []string{"provider", "type"}),

		seatAllocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "licensing",
			Name:      "allocations_total",
			Help:      "License allocation attempts by plan and result",
		}, []string{"plan", "result"}),

		expirations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "licensing",
			Name:      "expirations_total",
			Help:      "Licenses flipped to expired on read",
		}),

		analyticsRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "analytics",
			Name:      "job_runs_total",
			Help:      "Daily analytics job runs by result",
		}, []string{"result"}),
	}
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordHTTPRequest records a served HTTP request.
func (c *Collector) RecordHTTPRequest(route, method, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(route, method, status).Inc()
	c.httpDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordGateDecision records a request gate outcome ("allowed", "rejected",
// "failed"). kind is empty for allowed requests.
func (c *Collector) RecordGateDecision(outcome, kind string) {
	if c == nil {
		return
	}
	c.gateDecisions.WithLabelValues(outcome, kind).Inc()
}

// RecordLimitRejection records one blocking dimension of a rejected request.
func (c *Collector) RecordLimitRejection(dimension string) {
	if c == nil {
		return
	}
	c.limitRejections.WithLabelValues(dimension).Inc()
}

// RecordProviderCall records a successful upstream call and its charge.
func (c *Collector) RecordProviderCall(provider, model string, duration time.Duration, tokens int64, estimated bool) {
	if c == nil {
		return
	}
	source := "reported"
	if estimated {
		source = "estimated"
	}
	c.providerDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.providerTokens.WithLabelValues(provider, source).Add(float64(tokens))
}

// RecordProviderError records a failed upstream call.
func (c *Collector) RecordProviderError(provider, errType string) {
	if c == nil {
		return
	}
	c.providerErrors.WithLabelValues(provider, errType).Inc()
}

// RecordAllocation records a license allocation attempt ("ok",
// "sold_out", "error").
func (c *Collector) RecordAllocation(plan, result string) {
	if c == nil {
		return
	}
	c.seatAllocations.WithLabelValues(plan, result).Inc()
}

// RecordExpiration records a lazy license expiry.
func (c *Collector) RecordExpiration() {
	if c == nil {
		return
	}
	c.expirations.Inc()
}

// RecordAnalyticsRun records a daily analytics job run.
func (c *Collector) RecordAnalyticsRun(result string) {
	if c == nil {
		return
	}
	c.analyticsRuns.WithLabelValues(result).Inc()
}
