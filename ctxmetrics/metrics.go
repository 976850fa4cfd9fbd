// Package ctxmetrics exposes Prometheus collectors for the context-management
// engine's in-process counters and gauges. This package owns no network
// listener — serving /metrics is the caller's transport concern; Recorder
// only registers collectors against a registry and records observations.
package ctxmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contextkeep"

// Recorder holds every collector this engine exposes, registered against a
// private registry so multiple Recorders (e.g. one per test) never collide.
type Recorder struct {
	registry *prometheus.Registry

	contextState            *prometheus.GaugeVec
	actionPipelineRunsTotal *prometheus.CounterVec
	fallbackAttemptsTotal   *prometheus.CounterVec
	checkpointStoreSize     prometheus.Gauge
	snapshotStoreSize       prometheus.Gauge
	compactionCountTotal    prometheus.Counter
}

// NewRecorder creates a Recorder with a fresh registry and registers every
// collector.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		contextState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_state",
			Help:      "Current pressure classification, 1 for the active state and 0 otherwise.",
		}, []string{"state"}),
		actionPipelineRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_pipeline_runs_total",
			Help:      "Total number of pipeline actions taken, labeled by action.",
		}, []string{"action"}),
		fallbackAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_attempts_total",
			Help:      "Total number of fallback-chain summarizer attempts, labeled by model and outcome.",
		}, []string{"model", "outcome"}),
		checkpointStoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_store_size",
			Help:      "Current number of checkpoints held.",
		}),
		snapshotStoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_store_size",
			Help:      "Current number of truncation snapshots held.",
		}),
		compactionCountTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compaction_count_total",
			Help:      "Total number of compress-stage compactions performed.",
		}),
	}

	r.registry.MustRegister(
		r.contextState,
		r.actionPipelineRunsTotal,
		r.fallbackAttemptsTotal,
		r.checkpointStoreSize,
		r.snapshotStoreSize,
		r.compactionCountTotal,
	)

	return r
}

// Registry returns the underlying registry, for a caller that wants to mount
// its own /metrics endpoint or merge it into a larger registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler returns an http.Handler serving this Recorder's registry in
// Prometheus exposition format. The caller decides where (if anywhere) to
// mount it.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// contextStates lists every ContextState label value, so SetContextState can
// zero out the states that are no longer current.
var contextStates = []string{"healthy", "warning", "critical", "overflow"}

// SetContextState marks state as the sole active gauge value among the
// known context states.
func (r *Recorder) SetContextState(state string) {
	for _, s := range contextStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		r.contextState.WithLabelValues(s).Set(value)
	}
}

// IncActionPipelineRun records one occurrence of a pipeline action (e.g.
// "prune", "truncate", "compress", "recovery:rollback").
func (r *Recorder) IncActionPipelineRun(action string) {
	r.actionPipelineRunsTotal.WithLabelValues(action).Inc()
}

// IncFallbackAttempt records one fallback-chain attempt outcome for model.
func (r *Recorder) IncFallbackAttempt(model, outcome string) {
	r.fallbackAttemptsTotal.WithLabelValues(model, outcome).Inc()
}

// SetCheckpointStoreSize records the checkpoint store's current size.
func (r *Recorder) SetCheckpointStoreSize(size int) {
	r.checkpointStoreSize.Set(float64(size))
}

// SetSnapshotStoreSize records the truncation-snapshot store's current size.
func (r *Recorder) SetSnapshotStoreSize(size int) {
	r.snapshotStoreSize.Set(float64(size))
}

// IncCompaction records one compress-stage compaction.
func (r *Recorder) IncCompaction() {
	r.compactionCountTotal.Inc()
}
