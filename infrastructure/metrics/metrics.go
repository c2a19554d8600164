// Package metrics provides the Prometheus collectors shared by every process
// (C14 in spec.md).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors emitted by the ingest-to-event pipeline.
type Metrics struct {
	FetchAttemptsTotal *prometheus.CounterVec
	FetchLatency       *prometheus.HistogramVec
	SnapshotsTotal     *prometheus.CounterVec
	CircuitOpenTotal   *prometheus.CounterVec

	ExtractedItemsTotal *prometheus.CounterVec
	ExtractErrorsTotal  *prometheus.CounterVec

	DocumentsOrganizedTotal *prometheus.CounterVec
	EventsCreatedTotal      *prometheus.CounterVec
	EventLinkageTotal       *prometheus.CounterVec

	ScoresComputedTotal *prometheus.CounterVec
	StateTransitions    *prometheus.CounterVec

	MergesTotal *prometheus.CounterVec
	AlertsTotal *prometheus.CounterVec

	StarvationIncidentsTotal *prometheus.CounterVec

	QueueDepth *prometheus.GaugeVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers and returns a Metrics instance on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers collectors against a custom registerer, useful in tests.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_fetch_attempts_total",
			Help: "Fetch attempts by source, pool, and error class.",
		}, []string{"source_id", "pool", "error_class"}),
		FetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsradar_fetch_latency_seconds",
			Help:    "Fetch latency by pool.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pool"}),
		SnapshotsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_snapshots_total",
			Help: "Snapshots persisted by source.",
		}, []string{"source_id"}),
		CircuitOpenTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_circuit_open_total",
			Help: "Circuit breaker open transitions by source.",
		}, []string{"source_id"}),
		ExtractedItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_extracted_items_total",
			Help: "Items produced by the extractor by strategy.",
		}, []string{"strategy"}),
		ExtractErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_extract_errors_total",
			Help: "Extraction errors by strategy and error class.",
		}, []string{"strategy", "error_class"}),
		DocumentsOrganizedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_documents_organized_total",
			Help: "Documents organized by outcome (new_version, duplicate).",
		}, []string{"outcome"}),
		EventsCreatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_events_created_total",
			Help: "Events created by initial tier.",
		}, []string{"tier"}),
		EventLinkageTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_event_linkage_total",
			Help: "Document-to-event linkage outcomes by method.",
		}, []string{"method"}),
		ScoresComputedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_scores_computed_total",
			Help: "Scoring runs by proposed state.",
		}, []string{"proposed_state"}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_state_transitions_total",
			Help: "Event state transitions.",
		}, []string{"from", "to"}),
		MergesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_merges_total",
			Help: "Event merges by reason code.",
		}, []string{"reason_code"}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_alerts_total",
			Help: "Alerts dispatched vs. suppressed.",
		}, []string{"outcome"}),
		StarvationIncidentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_starvation_incidents_total",
			Help: "DATA_STARVATION incidents raised by source.",
		}, []string{"source_id"}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "newsradar_queue_depth",
			Help: "Approximate depth of each named task queue.",
		}, []string{"queue"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsradar_http_requests_total",
			Help: "HTTP requests by route, method, and status.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsradar_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}
