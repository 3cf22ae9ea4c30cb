package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablechat_pipeline_runs_total",
			Help: "Total number of pipeline runs by requested presentation kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablechat_pipeline_stage_duration_seconds",
			Help:    "Latency of individual pipeline stages.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)
	reflectionRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablechat_reflection_rejections_total",
			Help: "Total number of generated statements rejected by the reflection gate.",
		},
	)
	verdictParseFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablechat_verdict_parse_failures_total",
			Help: "Total number of reflection responses that could not be parsed.",
		},
	)
	textFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tablechat_text_fallbacks_total",
			Help: "Total number of text answers that fell back to a table.",
		},
	)
	pipelineRunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablechat_pipeline_run_duration_seconds",
			Help:    "End-to-end pipeline run latency by requested presentation kind.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind"},
	)
	warehouseRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tablechat_warehouse_rows_returned",
			Help:    "Row counts returned by approved warehouse queries.",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000, 10000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRunsTotal,
		pipelineStageDurationSeconds,
		pipelineRunDurationSeconds,
		reflectionRejectionsTotal,
		verdictParseFailuresTotal,
		textFallbacksTotal,
		warehouseRowsReturned,
	)
}

func ObservePipelineRun(kind, outcome string, elapsed time.Duration) {
	pipelineRunsTotal.WithLabelValues(kind, outcome).Inc()
	pipelineRunDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func ObserveStage(stage string, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func IncrementReflectionRejection() {
	reflectionRejectionsTotal.Inc()
}

func IncrementVerdictParseFailure() {
	verdictParseFailuresTotal.Inc()
}

func IncrementTextFallback() {
	textFallbacksTotal.Inc()
}

func ObserveWarehouseRows(count int) {
	if count < 0 {
		count = 0
	}
	warehouseRowsReturned.Observe(float64(count))
}
