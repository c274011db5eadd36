// Package metrics provides Prometheus metrics for the pokeget poller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure phases used as label values.
const (
	PhaseFetch = "fetch"
	PhaseWrite = "write"
)

// Manager manages all Prometheus metrics for the poller.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Fetch phase
	fetches      prometheus.Counter
	fetchErrors  *prometheus.CounterVec
	fetchLatency prometheus.Histogram

	// Dedup
	eventsReceived  prometheus.Counter
	eventsAccepted  prometheus.Counter
	eventsDuplicate prometheus.Counter
	dedupeSize      prometheus.Gauge
	seededIDs       prometheus.Counter
	seedSkipped     prometheus.Counter

	// Write phase
	recordsWritten prometheus.Counter
	writeErrors    prometheus.Counter
	writeLatency   prometheus.Histogram

	// Circuit breaker
	consecutiveFailures *prometheus.GaugeVec
	healthResets        prometheus.Counter
	cycles              prometheus.Counter

	// Observability endpoint
	httpRequests *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pokeget",
		subsystem:        "poller",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of metric definitions
	auto := promauto.With(m.registry)

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: m.constLabels,
		})
	}

	m.fetches = counter("fetches_total", "Total number of fetch attempts against the event endpoint")
	m.fetchErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "fetch_errors_total",
		Help:        "Failed fetches by error kind (transport, parse)",
		ConstLabels: m.constLabels,
	}, []string{"kind"})
	m.fetchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "fetch_latency_milliseconds",
		Help:        "Latency of the map-data request in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.eventsReceived = counter("events_received_total", "Events returned by the endpoint before deduplication")
	m.eventsAccepted = counter("events_accepted_total", "Events admitted as new by the dedup set")
	m.eventsDuplicate = counter("events_duplicate_total", "Events skipped because their encounter id was already seen")
	m.dedupeSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "dedupe_size",
		Help:        "Number of encounter ids held in the dedup set",
		ConstLabels: m.constLabels,
	})
	m.seededIDs = counter("seeded_ids_total", "Encounter ids loaded from existing log files at startup")
	m.seedSkipped = counter("seed_skipped_lines_total", "Malformed log lines skipped while seeding")

	m.recordsWritten = counter("records_written_total", "Records appended to the daily log")
	m.writeErrors = counter("write_errors_total", "Failed appends to the daily log")
	m.writeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "write_latency_milliseconds",
		Help:        "Latency of a full open/write/close append cycle in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.consecutiveFailures = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "failures",
		Help:        "Failure counter per phase since the last health reset",
		ConstLabels: m.constLabels,
	}, []string{"phase"})
	m.healthResets = counter("health_resets_total", "Times the failure counters were reset after a clean streak")
	m.cycles = counter("cycles_total", "Completed poll cycles")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Requests served by the observability endpoint",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordFetch increments the fetch attempts counter.
func RecordFetch() { globalManager.fetches.Inc() }

// RecordFetchError increments the fetch errors counter for kind.
func RecordFetchError(kind string) { globalManager.fetchErrors.WithLabelValues(kind).Inc() }

// RecordFetchLatency records fetch latency in milliseconds.
func RecordFetchLatency(latencyMs float64) { globalManager.fetchLatency.Observe(latencyMs) }

// RecordEventsReceived adds n to the received events counter.
func RecordEventsReceived(n int) { globalManager.eventsReceived.Add(float64(n)) }

// RecordEventsAccepted adds n to the accepted events counter.
func RecordEventsAccepted(n int) { globalManager.eventsAccepted.Add(float64(n)) }

// RecordEventsDuplicate adds n to the duplicate events counter.
func RecordEventsDuplicate(n int) { globalManager.eventsDuplicate.Add(float64(n)) }

// UpdateDedupeSize sets the dedup set size.
func UpdateDedupeSize(size int64) { globalManager.dedupeSize.Set(float64(size)) }

// RecordSeeded adds the result of seeding from one file.
func RecordSeeded(ids, skipped int) {
	globalManager.seededIDs.Add(float64(ids))
	globalManager.seedSkipped.Add(float64(skipped))
}

// RecordRecordsWritten adds n to the written records counter.
func RecordRecordsWritten(n int) { globalManager.recordsWritten.Add(float64(n)) }

// RecordWriteError increments the write errors counter.
func RecordWriteError() { globalManager.writeErrors.Inc() }

// RecordWriteLatency records append latency in milliseconds.
func RecordWriteLatency(latencyMs float64) { globalManager.writeLatency.Observe(latencyMs) }

// UpdateFailures sets the failure counter gauge for phase.
func UpdateFailures(phase string, n int) {
	globalManager.consecutiveFailures.WithLabelValues(phase).Set(float64(n))
}

// RecordHealthReset increments the health reset counter.
func RecordHealthReset() { globalManager.healthResets.Inc() }

// RecordCycle increments the completed cycles counter.
func RecordCycle() { globalManager.cycles.Inc() }

// RecordHTTPRequest records a request served by the observability endpoint.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
