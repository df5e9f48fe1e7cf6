// Package manager implements the Manager: the execution engine that
// linearizes a Flow, resolves each Job's inputs against a JobStore, invokes
// it, and interprets the Response it returns to evolve the remaining
// schedule (replace, detour, addition, stop_children, stop_jobflow).
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/flow"
	"github.com/nuulab/jobflow/pkg/job"
	"github.com/nuulab/jobflow/pkg/metrics"
	"github.com/nuulab/jobflow/pkg/ref"
	"github.com/nuulab/jobflow/pkg/response"
)

// Results is the Manager's return value: every Response ever produced,
// keyed first by the job's stable uuid, then by the iteration it ran under.
type Results map[uuid.UUID]map[int]response.Response

// Manager runs a single Flow to completion against one JobStore connection.
// It is not re-entrant: a job's function must not invoke Run against the
// same Manager.
type Manager struct {
	store    job.Store
	events   *EventLog
	failures *FailureLedger
	metrics  *metrics.Metrics
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithEventLog attaches an EventLog other than the default fresh one.
func WithEventLog(l *EventLog) Option {
	return func(m *Manager) { m.events = l }
}

// WithFailureLedger attaches a FailureLedger other than the default fresh
// one.
func WithFailureLedger(l *FailureLedger) Option {
	return func(m *Manager) { m.failures = l }
}

// WithMetrics attaches a Metrics instance other than the default fresh one.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// New builds a Manager backed by store.
func New(store job.Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		events:   NewEventLog(),
		failures: NewFailureLedger(),
		metrics:  metrics.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events returns the run history accumulated so far.
func (m *Manager) Events() *EventLog { return m.events }

// Failures returns the failures accumulated so far.
func (m *Manager) Failures() *FailureLedger { return m.failures }

// Metrics returns the Manager's instrumentation.
func (m *Manager) Metrics() *metrics.Metrics { return m.metrics }

// Run executes f to completion: it picks the next ready job (tie-broken by
// declaration order, then lexicographic uuid), resolves its inputs,
// invokes it, persists and interprets its Response, and repeats until no
// job is ready or a stop_jobflow directive is seen. A job that raises (or
// fails to resolve its inputs) is recorded and its dependents are treated
// as stop_children; the run continues with whatever work remains
// unaffected. The first such error is returned alongside the partial
// Results, matching the spec's partial-success semantics.
func (m *Manager) Run(ctx context.Context, f *flow.Flow) (Results, error) {
	start := time.Now()
	m.metrics.FlowsStarted.Inc()

	sched, err := newScheduler(f)
	if err != nil {
		m.metrics.FlowsFailed.Inc()
		return Results{}, err
	}

	cache := ref.NewCache()
	results := Results{}
	var firstErr error

	for {
		select {
		case <-ctx.Done():
			m.metrics.FlowsFailed.Inc()
			return results, ctx.Err()
		default:
		}

		j, ok := sched.next()
		if !ok {
			break
		}

		m.events.Append(Event{Type: EventJobStarted, UUID: j.UUID(), Index: j.Iteration(), Name: j.Name()})
		m.metrics.JobsRun.Inc()
		jobStart := time.Now()
		resp, runErr := j.Run(ctx, m.store, cache)
		m.metrics.JobDuration.ObserveDuration(jobStart)

		if runErr != nil {
			m.metrics.JobsFailed.Inc()
			m.failures.Record(FailureEntry{UUID: j.UUID(), Index: j.Iteration(), Name: j.Name(), Err: runErr.Error()})
			m.events.Append(Event{Type: EventJobFailed, UUID: j.UUID(), Index: j.Iteration(), Name: j.Name(), Err: runErr.Error()})
			if firstErr == nil {
				firstErr = runErr
			}
			skipped := sched.stopChildren(j.UUID())
			for range skipped {
				m.metrics.JobsSkipped.Inc()
			}
			m.metrics.ReadyQueueDepth.Set(float64(sched.readyDepth()))
			continue
		}

		if verr := resp.Validate(); verr != nil {
			m.metrics.FlowsFailed.Inc()
			return results, fmt.Errorf("manager: %w", verr)
		}

		if results[j.UUID()] == nil {
			results[j.UUID()] = map[int]response.Response{}
		}
		results[j.UUID()][j.Iteration()] = resp
		m.metrics.JobsCompleted.Inc()
		m.events.Append(Event{Type: EventJobCompleted, UUID: j.UUID(), Index: j.Iteration(), Name: j.Name()})

		grafted := false
		if resp.Replace != nil {
			if err := sched.graft(j.UUID(), j.Iteration(), resp.Replace); err != nil {
				m.metrics.FlowsFailed.Inc()
				return results, err
			}
			grafted = true
			m.metrics.JobsReplaced.Inc()
			m.events.Append(Event{Type: EventJobReplaced, UUID: j.UUID(), Index: j.Iteration(), Name: j.Name()})
		}
		if resp.Detour != nil {
			if err := sched.graft(j.UUID(), j.Iteration(), resp.Detour); err != nil {
				m.metrics.FlowsFailed.Inc()
				return results, err
			}
			grafted = true
			m.metrics.JobsDetoured.Inc()
			m.events.Append(Event{Type: EventJobDetoured, UUID: j.UUID(), Index: j.Iteration(), Name: j.Name()})
		}
		if resp.Addition != nil {
			if err := sched.addition(resp.Addition); err != nil {
				m.metrics.FlowsFailed.Inc()
				return results, err
			}
			m.events.Append(Event{Type: EventJobAdded, UUID: j.UUID(), Index: j.Iteration(), Name: j.Name()})
		}
		if !grafted {
			sched.terminal(j.UUID())
		}

		if resp.StopChildren {
			skipped := sched.stopChildren(j.UUID())
			for range skipped {
				m.metrics.JobsSkipped.Inc()
			}
			m.events.Append(Event{Type: EventJobSkipped, UUID: j.UUID(), Index: j.Iteration(), Name: j.Name()})
		}
		m.metrics.ReadyQueueDepth.Set(float64(sched.readyDepth()))

		if resp.StopJobflow {
			m.events.Append(Event{Type: EventFlowStopped, UUID: j.UUID(), Index: j.Iteration(), Name: j.Name()})
			break
		}
	}

	m.metrics.FlowDuration.Observe(time.Since(start).Seconds())
	if firstErr != nil {
		m.metrics.FlowsFailed.Inc()
	} else {
		m.metrics.FlowsCompleted.Inc()
	}
	return results, firstErr
}
