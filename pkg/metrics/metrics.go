// Package metrics provides in-process instrumentation for the Manager.
package metrics

import (
	"net/http"
	"strconv"
	"time"
)

// Note: this is a minimal implementation without a Prometheus client
// dependency. To use real Prometheus, add github.com/prometheus/client_golang
// and adapt Handler to its registry.

// Metrics holds every counter/gauge/histogram the Manager updates while
// running a Flow.
type Metrics struct {
	JobsRun       *Counter
	JobsCompleted *Counter
	JobsFailed    *Counter
	JobsSkipped   *Counter
	JobsReplaced  *Counter
	JobsDetoured  *Counter
	JobDuration   *Histogram

	FlowsStarted   *Counter
	FlowsCompleted *Counter
	FlowsFailed    *Counter
	FlowDuration   *Histogram

	ReadyQueueDepth *Gauge
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	value float64
}

// Gauge is a value that can go up or down.
type Gauge struct {
	name  string
	value float64
}

// Histogram tracks the count and sum of observed values.
type Histogram struct {
	name  string
	count uint64
	sum   float64
}

// New creates a fresh, zeroed Metrics instance. Unlike the teacher's
// process-wide DefaultMetrics, callers hold one per Manager so concurrent
// Managers (in tests, say) don't share counters.
func New() *Metrics {
	return &Metrics{
		JobsRun:       NewCounter("jobflow_jobs_run_total"),
		JobsCompleted: NewCounter("jobflow_jobs_completed_total"),
		JobsFailed:    NewCounter("jobflow_jobs_failed_total"),
		JobsSkipped:   NewCounter("jobflow_jobs_skipped_total"),
		JobsReplaced:  NewCounter("jobflow_jobs_replaced_total"),
		JobsDetoured:  NewCounter("jobflow_jobs_detoured_total"),
		JobDuration:   NewHistogram("jobflow_job_duration_seconds"),

		FlowsStarted:   NewCounter("jobflow_flows_started_total"),
		FlowsCompleted: NewCounter("jobflow_flows_completed_total"),
		FlowsFailed:    NewCounter("jobflow_flows_failed_total"),
		FlowDuration:   NewHistogram("jobflow_flow_duration_seconds"),

		ReadyQueueDepth: NewGauge("jobflow_ready_queue_depth"),
	}
}

func NewCounter(name string) *Counter     { return &Counter{name: name} }
func NewGauge(name string) *Gauge         { return &Gauge{name: name} }
func NewHistogram(name string) *Histogram { return &Histogram{name: name} }

// Inc increments a counter by 1.
func (c *Counter) Inc() { c.value++ }

// Value returns the current value.
func (c *Counter) Value() float64 { return c.value }

// Set sets a gauge value.
func (g *Gauge) Set(v float64) { g.value = v }

// Value returns the current value.
func (g *Gauge) Value() float64 { return g.value }

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.count++
	h.sum += v
}

// ObserveDuration records a duration in seconds.
func (h *Histogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 { return h.count }

// Sum returns the sum of observations.
func (h *Histogram) Sum() float64 { return h.sum }

// Avg returns the mean observed value, or 0 with no observations.
func (h *Histogram) Avg() float64 {
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

// Handler returns a plain-text exposition endpoint, suitable for mounting
// under /metrics.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		writeMetric(w, "jobflow_jobs_run_total", m.JobsRun.Value())
		writeMetric(w, "jobflow_jobs_completed_total", m.JobsCompleted.Value())
		writeMetric(w, "jobflow_jobs_failed_total", m.JobsFailed.Value())
		writeMetric(w, "jobflow_jobs_skipped_total", m.JobsSkipped.Value())
		writeMetric(w, "jobflow_jobs_replaced_total", m.JobsReplaced.Value())
		writeMetric(w, "jobflow_jobs_detoured_total", m.JobsDetoured.Value())
		writeMetric(w, "jobflow_job_duration_seconds_count", float64(m.JobDuration.Count()))
		writeMetric(w, "jobflow_job_duration_seconds_sum", m.JobDuration.Sum())
		writeMetric(w, "jobflow_flows_started_total", m.FlowsStarted.Value())
		writeMetric(w, "jobflow_flows_completed_total", m.FlowsCompleted.Value())
		writeMetric(w, "jobflow_flows_failed_total", m.FlowsFailed.Value())
		writeMetric(w, "jobflow_ready_queue_depth", m.ReadyQueueDepth.Value())
	})
}

func writeMetric(w http.ResponseWriter, name string, value float64) {
	w.Write([]byte(name + " " + strconv.FormatFloat(value, 'g', -1, 64) + "\n"))
}
