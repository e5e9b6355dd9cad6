package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every prometheus collector the adapter exposes at
// GET /metrics, replacing the teacher's hand-rolled RingBuffer/TimeSeries
// aggregator (monitoring/metrics.go) with native prometheus collectors —
// the naming taxonomy (cache hit/miss, queue depth, rate-limit wait,
// background loop failures) is carried over from that file.
type Metrics struct {
	Registry *prometheus.Registry

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	QueueDepth      *prometheus.GaugeVec
	RequestDuration *prometheus.HistogramVec

	RateLimitWait *prometheus.HistogramVec

	BackgroundTicks    *prometheus.CounterVec
	BackgroundFailures *prometheus.CounterVec

	CoalescedRequests *prometheus.CounterVec
	EvictedEntries    *prometheus.CounterVec
}

// NewMetrics registers every collector against a fresh registry. Adapters
// that also want Go runtime/process metrics can register those against the
// same Registry before serving /metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ea_cache_hits_total",
			Help: "Cache lookups served from L1 or L2 without invoking a transport.",
		}, []string{"tier"}),

		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ea_cache_misses_total",
			Help: "Cache lookups that found no entry at the given tier.",
		}, []string{"tier"}),

		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ea_requester_queue_depth",
			Help: "Current number of pending requests in the outbound FIFO queue.",
		}, []string{"endpoint"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ea_request_duration_seconds",
			Help:    "Wall-clock time from foreground request admission to reply.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "outcome"}),

		RateLimitWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ea_rate_limit_wait_seconds",
			Help:    "Time a dispatch spent waiting on the rate limiter before being allowed through.",
			Buckets: prometheus.DefBuckets,
		}, []string{"strategy"}),

		BackgroundTicks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ea_background_ticks_total",
			Help: "Background loop iterations per endpoint.",
		}, []string{"endpoint"}),

		BackgroundFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ea_background_failures_total",
			Help: "Background loop iterations that ended in error.",
		}, []string{"endpoint"}),

		CoalescedRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ea_requester_coalesced_total",
			Help: "Outbound requests that reused an in-flight future instead of dispatching.",
		}, []string{"endpoint"}),

		EvictedEntries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ea_evicted_entries_total",
			Help: "Entries evicted from a bounded collection (cache, subscription set, queue) due to capacity.",
		}, []string{"collection"}),
	}
}
