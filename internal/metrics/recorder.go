package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder 파이프라인 Prometheus 지표
// nil Recorder 는 모든 기록을 무시한다 (테스트, CLI parse)
type Recorder struct {
	registry *prometheus.Registry

	messages         *prometheus.CounterVec
	extractionMisses *prometheus.CounterVec
	rejections       *prometheus.CounterVec
	dedupOutcomes    *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	feedFailures     *prometheus.CounterVec
	sinkFailures     *prometheus.CounterVec
	degraded         *prometheus.GaugeVec
	tracked          prometheus.Gauge
	advisories       *prometheus.CounterVec
	confidence       prometheus.Histogram
	stageLatency     *prometheus.HistogramVec
}

// New creates a recorder on its own registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalhub_messages_total",
			Help: "Raw messages processed by result status",
		}, []string{"status"}),
		extractionMisses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalhub_extraction_misses_total",
			Help: "Messages or asset mentions that produced no draft",
		}, []string{"reason"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalhub_validation_rejections_total",
			Help: "Drafts rejected by the validator",
		}, []string{"reason"}),
		dedupOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalhub_dedup_outcomes_total",
			Help: "Deduplicator decisions by match kind",
		}, []string{"kind"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalhub_lifecycle_transitions_total",
			Help: "Lifecycle transitions by target state",
		}, []string{"state"}),
		feedFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalhub_feed_failures_total",
			Help: "Price fetches that failed or returned stale data",
		}, []string{"asset"}),
		sinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalhub_sink_failures_total",
			Help: "Secondary sink writes that failed",
		}, []string{"sink", "op"}),
		degraded: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalhub_feed_degraded",
			Help: "1 when tracking for the asset is degraded",
		}, []string{"asset"}),
		tracked: f.NewGauge(prometheus.GaugeOpts{
			Name: "signalhub_tracked_signals",
			Help: "Signals currently tracked by the lifecycle tracker",
		}),
		advisories: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signalhub_advisories_total",
			Help: "Advisories emitted by kind",
		}, []string{"kind"}),
		confidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalhub_signal_confidence",
			Help:    "Final confidence of accepted signals",
			Buckets: prometheus.LinearBuckets(0.05, 0.1, 10),
		}),
		stageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalhub_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

// Handler exposes the registry for /metrics
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// RecordMessage records a per-message result status
func (r *Recorder) RecordMessage(status string) {
	if r == nil {
		return
	}
	r.messages.WithLabelValues(status).Inc()
}

// RecordExtractionMiss records a dropped mention or empty message
func (r *Recorder) RecordExtractionMiss(reason string) {
	if r == nil {
		return
	}
	r.extractionMisses.WithLabelValues(reason).Inc()
}

// RecordRejection records a validation failure reason code
func (r *Recorder) RecordRejection(reason string) {
	if r == nil {
		return
	}
	r.rejections.WithLabelValues(reason).Inc()
}

// RecordDedup records a dedup match kind ("new" when unmatched)
func (r *Recorder) RecordDedup(kind string) {
	if r == nil {
		return
	}
	if kind == "" {
		kind = "new"
	}
	r.dedupOutcomes.WithLabelValues(kind).Inc()
}

// RecordTransition records a lifecycle transition
func (r *Recorder) RecordTransition(state string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(state).Inc()
}

// RecordFeedFailure records a skipped tick
func (r *Recorder) RecordFeedFailure(asset string) {
	if r == nil {
		return
	}
	r.feedFailures.WithLabelValues(asset).Inc()
}

// RecordSinkFailure records a failed secondary sink write
func (r *Recorder) RecordSinkFailure(sink, op string) {
	if r == nil {
		return
	}
	r.sinkFailures.WithLabelValues(sink, op).Inc()
}

// SetDegraded flags an asset as degraded or healthy
func (r *Recorder) SetDegraded(asset string, degraded bool) {
	if r == nil {
		return
	}
	v := 0.0
	if degraded {
		v = 1
	}
	r.degraded.WithLabelValues(asset).Set(v)
}

// SetTracked sets the number of tracked signals
func (r *Recorder) SetTracked(n int) {
	if r == nil {
		return
	}
	r.tracked.Set(float64(n))
}

// RecordAdvisory records an advisory kind
func (r *Recorder) RecordAdvisory(kind string) {
	if r == nil {
		return
	}
	r.advisories.WithLabelValues(kind).Inc()
}

// ObserveConfidence records an accepted signal's confidence
func (r *Recorder) ObserveConfidence(v float64) {
	if r == nil {
		return
	}
	r.confidence.Observe(v)
}

// ObserveStage records stage latency in seconds
func (r *Recorder) ObserveStage(stage string, seconds float64) {
	if r == nil {
		return
	}
	r.stageLatency.WithLabelValues(stage).Observe(seconds)
}
