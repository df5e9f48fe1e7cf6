package manager

import (
	"time"

	"github.com/google/uuid"
)

// FailureEntry records one job execution failure, grounded on the teacher's
// DLQEntry.
type FailureEntry struct {
	UUID     uuid.UUID
	Index    int
	Name     string
	Err      string
	FailedAt time.Time
}

// FailureLedger accumulates every job failure seen during a run. Unlike the
// teacher's DLQ, this never retries or alerts on its own — the spec gives
// the Manager no such external-collaborator duties (§1, Out of scope); it
// exists purely so a caller can inspect what went wrong after Run returns.
type FailureLedger struct {
	entries []FailureEntry
}

// NewFailureLedger creates an empty ledger.
func NewFailureLedger() *FailureLedger {
	return &FailureLedger{}
}

// Record appends a failure.
func (f *FailureLedger) Record(entry FailureEntry) {
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now()
	}
	f.entries = append(f.entries, entry)
}

// Entries returns every recorded failure in the order they occurred.
func (f *FailureLedger) Entries() []FailureEntry {
	out := make([]FailureEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Len reports how many failures have been recorded.
func (f *FailureLedger) Len() int { return len(f.entries) }
