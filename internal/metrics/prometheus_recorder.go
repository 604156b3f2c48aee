package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "build_executor"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration  *prom.HistogramVec
	stageResults   *prom.CounterVec
	buildDuration  *prom.HistogramVec
	taskStates     *prom.CounterVec
	daemonWait     prom.Histogram
	tagResults     *prom.CounterVec
	progress       prom.Counter
	publishRetries *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build pipeline duration by terminal state",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"outcome"}),
		taskStates: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "task_states_total",
			Help:      "Task status updates reported to the orchestrator",
		}, []string{"state"}),
		daemonWait: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "daemon_wait_seconds",
			Help:      "Time the build spent waiting for the container daemon",
			Buckets:   []float64{0.01, 0.1, 1, 5, 10, 30, 60},
		}),
		tagResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "tag_results_total",
			Help:      "Image tag operations by result",
		}, []string{"result"}),
		progress: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "progress_messages_total",
			Help:      "Progress messages forwarded to the orchestrator",
		}),
		publishRetries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publish_retries_total",
			Help:      "Orchestrator publish retries by message kind",
		}, []string{"kind"}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.buildDuration, pr.taskStates,
		pr.daemonWait, pr.tagResults, pr.progress, pr.publishRetries)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveBuildDuration(outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskState(state string) {
	if p == nil {
		return
	}
	p.taskStates.WithLabelValues(state).Inc()
}

func (p *PrometheusRecorder) ObserveDaemonWait(d time.Duration) {
	if p == nil {
		return
	}
	p.daemonWait.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTagResult(success bool) {
	if p == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.tagResults.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) IncProgressMessages() {
	if p == nil {
		return
	}
	p.progress.Inc()
}

func (p *PrometheusRecorder) IncPublishRetry(kind string) {
	if p == nil {
		return
	}
	p.publishRetries.WithLabelValues(kind).Inc()
}
