package manager

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of job lifecycle event recorded by an
// EventLog, grounded on the teacher's append-only job event stream.
type EventType string

const (
	EventJobStarted   EventType = "job.started"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventJobReplaced  EventType = "job.replaced"
	EventJobDetoured  EventType = "job.detoured"
	EventJobAdded     EventType = "job.added"
	EventJobSkipped   EventType = "job.skipped"
	EventFlowStopped  EventType = "flow.stopped"
)

// Event is one entry in a run's history.
type Event struct {
	Type      EventType
	UUID      uuid.UUID
	Index     int
	Name      string
	Err       string
	Timestamp time.Time
}

// EventLog is an in-process, append-only record of everything a Manager run
// did, grounded on the teacher's EventStore but without the Redis stream
// backing it: a single run's history lives only as long as the caller keeps
// the Manager around, which matches the spec's single-process, single-writer
// execution model.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Append records e, stamping its Timestamp if unset.
func (l *EventLog) Append(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

// All returns every recorded event in append order.
func (l *EventLog) All() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// ForUUID returns every event recorded for a given job uuid, in append
// order.
func (l *EventLog) ForUUID(id uuid.UUID) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.UUID == id {
			out = append(out, e)
		}
	}
	return out
}
