package observability

import (
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

// Metrics holds the process series. Every method is safe on a nil receiver,
// so callers never check whether metrics are enabled.
type Metrics struct {
	apiRequests *counter
	apiLatency  *histogram
	apiInflight *gauge
	apiErrors   *counter

	variants       *counter
	variantLatency *histogram
	remoteAttempts *counter
	batchItems     *counter
	followups      *counter

	tasks       *counter
	taskLatency *histogram
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Current returns the process metrics, or nil when they are disabled.
func Current() *Metrics {
	return instance
}

// Init enables process metrics once. It returns nil when enabled is false.
func Init(log *logger.Logger, enabled bool) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		log.Info("Metrics enabled", "path", "/metrics")
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: newCounter("fg_api_requests_total", "API requests by method, route and status.", "method", "route", "status"),
		apiLatency: newHistogram("fg_api_request_duration_seconds", "API request latency in seconds.",
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}, "method", "route"),
		apiInflight: newGauge("fg_api_inflight_requests", "API requests being served."),
		apiErrors:   newCounter("fg_api_requests_error_total", "API requests answered with a 5xx status."),

		variants: newCounter("fg_generation_variant_total", "Settled variant generations.", "stage", "variant", "status"),
		variantLatency: newHistogram("fg_generation_variant_duration_seconds", "Variant generation wall time in seconds.",
			[]float64{1, 5, 10, 30, 60, 120, 300, 600, 900}, "stage", "variant", "status"),
		remoteAttempts: newCounter("fg_remote_attempts_total", "Remote conversation attempts by outcome.", "outcome"),
		batchItems:     newCounter("fg_batch_items_total", "Batch items dispatched.", "action", "status"),
		followups:      newCounter("fg_followup_events_total", "Follow-up session events.", "event"),

		tasks: newCounter("fg_worker_tasks_total", "Background tasks run.", "task", "status"),
		taskLatency: newHistogram("fg_worker_task_duration_seconds", "Background task duration in seconds.",
			[]float64{0.1, 1, 5, 10, 30, 60, 300, 900, 1800}, "task"),
	}
}

// WriteHTTP serves the text exposition.
func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, s := range []interface{ write(io.Writer) error }{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiErrors,
		m.variants, m.variantLatency, m.remoteAttempts, m.batchItems, m.followups,
		m.tasks, m.taskLatency,
	} {
		if err := s.write(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.inc(method, route, strconv.Itoa(status))
	m.apiLatency.observe(dur.Seconds(), method, route)
	if status >= 500 {
		m.apiErrors.inc()
	}
}

func (m *Metrics) InflightInc() {
	if m != nil {
		m.apiInflight.add(1)
	}
}

func (m *Metrics) InflightDec() {
	if m != nil {
		m.apiInflight.add(-1)
	}
}

// ObserveGeneration records one settled variant of a stage run.
func (m *Metrics) ObserveGeneration(stage, variant, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.variants.inc(stage, variant, status)
	m.variantLatency.observe(dur.Seconds(), stage, variant, status)
}

func (m *Metrics) ObserveRemoteAttempt(outcome string) {
	if m != nil {
		m.remoteAttempts.inc(outcome)
	}
}

func (m *Metrics) ObserveBatchItem(action string, ok bool) {
	if m != nil {
		m.batchItems.inc(action, outcomeLabel(ok, "completed"))
	}
}

func (m *Metrics) IncFollowup(event string) {
	if m != nil {
		m.followups.inc(event)
	}
}

func (m *Metrics) ObserveTask(task string, ok bool, dur time.Duration) {
	if m == nil {
		return
	}
	m.tasks.inc(task, outcomeLabel(ok, "succeeded"))
	m.taskLatency.observe(dur.Seconds(), task)
}

func outcomeLabel(ok bool, success string) string {
	if ok {
		return success
	}
	return "failed"
}
