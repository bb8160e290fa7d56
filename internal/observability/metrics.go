package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation during slow upstream cycles.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream fetch outcomes per source. Watch for: one source's failure ratio climbing.
	UpstreamFetchesTotal *prometheus.CounterVec

	// Upstream latency per source. Watch for: p99 approaching the 5s fetch timeout.
	UpstreamFetchDuration *prometheus.HistogramVec

	// Circuit breaker transitions per source. Watch for: sources flapping open/closed.
	UpstreamBreakerTransitionsTotal *prometheus.CounterVec

	// Snapshot served from fresh cache without any upstream call.
	CacheHitsTotal prometheus.Counter

	// Merge cycles that kept a stale value for a failing source. Watch for: sustained
	// growth on one source = extended upstream outage.
	StaleSourceServesTotal *prometheus.CounterVec

	// Durable persist failures. In-memory state stays authoritative, but a restart
	// would lose the snapshot.
	CachePersistErrorsTotal prometheus.Counter

	// Unix time of the last merge cycle. Alert when now - value >> TTL.
	SnapshotCapturedAt prometheus.Gauge

	// Home-automation proxy forwards by method and upstream status class.
	ProxyRequestsTotal *prometheus.CounterVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	UpstreamFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamFetchesTotal",
			Help: "Upstream API fetches by source and outcome",
		},
		[]string{"source", "outcome"},
	)
	UpstreamFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamFetchDurationSeconds",
			Help:    "Upstream API latency in seconds (per fetch)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)
	UpstreamBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions by source and new state",
		},
		[]string{"source", "state"},
	)
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Weather requests served from the fresh cached snapshot",
		},
	)
	StaleSourceServesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "staleSourceServesTotal",
			Help: "Merge cycles that retained the previous value for a failing source",
		},
		[]string{"source"},
	)
	CachePersistErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cachePersistErrorsTotal",
			Help: "Failed writes of the snapshot to durable storage",
		},
	)
	SnapshotCapturedAt = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapshotCapturedAtSeconds",
			Help: "Unix timestamp of the most recent merge cycle",
		},
	)
	ProxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxyRequestsTotal",
			Help: "Home-automation proxy forwards by method and upstream status class",
		},
		[]string{"method", "statusCode"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		UpstreamFetchesTotal, UpstreamFetchDuration, UpstreamBreakerTransitionsTotal,
		CacheHitsTotal, StaleSourceServesTotal, CachePersistErrorsTotal,
		SnapshotCapturedAt, ProxyRequestsTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
