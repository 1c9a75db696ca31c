package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "coastal_risk"

// Metrics holds the Prometheus collectors for the pipeline, the risk engine,
// and alert dispatch.
type Metrics struct {
	// Pipeline.
	PipelineRuns     *prometheus.CounterVec   // labels: outcome={success,partial,failed,not_found}
	StageResults     *prometheus.CounterVec   // labels: stage, status={succeeded,failed,skipped}
	PipelineDuration prometheus.Histogram
	RiskEvents       *prometheus.CounterVec   // labels: band
	RiskScore        prometheus.Histogram

	// Collaborators.
	MessageEnhancements *prometheus.CounterVec   // labels: source={llm,template}
	VisionRequests      *prometheus.CounterVec   // labels: outcome={success,error,fallback}
	VisionCache         *prometheus.CounterVec   // labels: result={hit,miss}
	VisionDuration      prometheus.Histogram
	GreennessRequests   *prometheus.CounterVec   // labels: outcome={success,error,disabled}

	// Dispatch.
	AlertsGenerated  *prometheus.CounterVec // labels: band
	AlertsSkipped    *prometheus.CounterVec // labels: reason={green,throttled,no_subscribers,daily_cap,missing_user,error}
	Emails           *prometheus.CounterVec // labels: outcome={sent,failed}
	DispatchDuration prometheus.Histogram

	// Run request consumer.
	RunRequestsConsumed prometheus.Counter
	RunRequestErrors    prometheus.Counter
	EventsPublished     prometheus.Counter
	RunnerRunning       prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		StageResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Pipeline stage results by stage and status.",
		}, []string{"stage", "status"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of a complete four-stage pipeline run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RiskEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_events_total",
			Help:      "Source risk events created by band.",
		}, []string{"band"}),
		RiskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of computed risk scores.",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		MessageEnhancements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_enhancements_total",
			Help:      "Risk message sets by source.",
		}, []string{"source"}),
		VisionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vision_requests_total",
			Help:      "Vision collaborator calls by outcome.",
		}, []string{"outcome"}),
		VisionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vision_cache_total",
			Help:      "Vision cache lookups by result.",
		}, []string{"result"}),
		VisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vision_duration_seconds",
			Help:      "Vision collaborator request duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		GreennessRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "greenness_requests_total",
			Help:      "Greenness drop estimations by outcome.",
		}, []string{"outcome"}),
		AlertsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_generated_total",
			Help:      "User alerts persisted by band.",
		}, []string{"band"}),
		AlertsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_skipped_total",
			Help:      "Events or subscriptions skipped by dispatch, by reason.",
		}, []string{"reason"}),
		Emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "High risk emails by outcome.",
		}, []string{"outcome"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of a recent-events dispatch sweep.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		RunRequestsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_requests_consumed_total",
			Help:      "Pipeline run requests read from Kafka.",
		}),
		RunRequestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_request_errors_total",
			Help:      "Run requests that could not be decoded or resolved.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Risk events written to the risk topic.",
		}),
		RunnerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runner_running",
			Help:      "1 when the run request consumer is active, 0 when shut down.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRuns, m.StageResults, m.PipelineDuration, m.RiskEvents, m.RiskScore,
		m.MessageEnhancements, m.VisionRequests, m.VisionCache, m.VisionDuration, m.GreennessRequests,
		m.AlertsGenerated, m.AlertsSkipped, m.Emails, m.DispatchDuration,
		m.RunRequestsConsumed, m.RunRequestErrors, m.EventsPublished, m.RunnerRunning,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
