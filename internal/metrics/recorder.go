package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFatal   ResultLabel = "fatal"
)

// Recorder defines observability hooks for the build task. Implementations
// may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	ObserveBuildDuration(outcome string, d time.Duration) // outcome: FINISHED|FAILED
	IncTaskState(state string)
	ObserveDaemonWait(d time.Duration)
	IncTagResult(success bool)
	IncProgressMessages()
	IncPublishRetry(kind string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskState(string)                        {}
func (NoopRecorder) ObserveDaemonWait(time.Duration)            {}
func (NoopRecorder) IncTagResult(bool)                          {}
func (NoopRecorder) IncProgressMessages()                       {}
func (NoopRecorder) IncPublishRetry(string)                     {}
