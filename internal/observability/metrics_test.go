package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", 200, time.Millisecond)
	m.InflightInc()
	m.ObserveGeneration("svg", "txt_only", "done", time.Second)
	m.ObserveTask("generate_svg", false, time.Second)
	require.NoError(t, m.WritePrometheus(&bytes.Buffer{}))

	rec := httptest.NewRecorder()
	m.WriteHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWritePrometheus(t *testing.T) {
	m := newMetrics()
	m.ObserveAPI("POST", "/api/figures/:id/generate-svg", 202, 20*time.Millisecond)
	m.ObserveAPI("GET", "/api/figures", 500, time.Millisecond)
	m.ObserveGeneration("instructions", "with_image", "failed", 3*time.Second)
	m.ObserveRemoteAttempt("timeout")
	m.ObserveBatchItem("svg", true)
	m.ObserveTask("generate_instructions", false, time.Second)

	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf))
	out := buf.String()
	for _, want := range []string{
		`fg_api_requests_total{method="POST",route="/api/figures/:id/generate-svg",status="202"} 1`,
		"fg_api_requests_error_total 1",
		`fg_generation_variant_total{stage="instructions",variant="with_image",status="failed"} 1`,
		`fg_generation_variant_duration_seconds_bucket{stage="instructions",variant="with_image",status="failed",le="1"} 0`,
		`fg_generation_variant_duration_seconds_bucket{stage="instructions",variant="with_image",status="failed",le="5"} 1`,
		`fg_generation_variant_duration_seconds_count{stage="instructions",variant="with_image",status="failed"} 1`,
		`fg_remote_attempts_total{outcome="timeout"} 1`,
		`fg_batch_items_total{action="svg",status="completed"} 1`,
		`fg_worker_tasks_total{task="generate_instructions",status="failed"} 1`,
	} {
		assert.Contains(t, out, want)
	}
}

func TestUnmatchedRouteLabel(t *testing.T) {
	m := newMetrics()
	m.ObserveAPI("GET", "", 404, time.Millisecond)

	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf))
	assert.Contains(t, buf.String(), `fg_api_requests_total{method="GET",route="unmatched",status="404"} 1`)
}
