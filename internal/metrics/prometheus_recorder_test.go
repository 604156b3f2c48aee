package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("stream", 150*time.Millisecond)
	pr.IncStageResult("stream", ResultSuccess)
	pr.ObserveBuildDuration("FINISHED", 2*time.Second)
	pr.IncTaskState("STARTING")
	pr.IncTaskState("RUNNING")
	pr.IncTaskState("RUNNING")
	pr.ObserveDaemonWait(10 * time.Millisecond)
	pr.IncTagResult(true)
	pr.IncTagResult(false)
	pr.IncProgressMessages()
	pr.IncPublishRetry("status")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	assert.Equal(t, 2.0, testutil.ToFloat64(pr.taskStates.WithLabelValues("RUNNING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.tagResults.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.progress))
	assert.Equal(t, 1.0, testutil.ToFloat64(pr.publishRetries.WithLabelValues("status")))
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.IncTaskState("RUNNING")
		pr.ObserveBuildDuration("FAILED", time.Second)
		pr.IncTagResult(true)
	})
}

func TestHTTPHandlerServesRegistry(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.IncTaskState("FINISHED")

	rec := httptest.NewRecorder()
	HTTPHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "build_executor_task_states_total"))
}
