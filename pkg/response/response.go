// Package response defines the directive a running job hands back to the
// Manager: its output, plus an optional instruction for reshaping the
// remaining schedule (replace, detour, addition, stop_children,
// stop_jobflow).
package response

import "fmt"

// Node is anything a Response's Replace/Detour/Addition field can carry: a
// *job.Job or a *flow.Flow. The interface lives here, rather than being
// imported from pkg/job or pkg/flow, specifically so this package needs no
// dependency on either — they both depend on Response (a Job's Run method
// returns one), so Response cannot depend back on them.
type Node interface {
	// isJobflowNode is unexported so only pkg/job and pkg/flow can
	// implement Node; it exists purely to keep arbitrary values out of
	// Replace/Detour/Addition.
	isJobflowNode()
}

// Response is the record returned by a job's function (after normalisation)
// and interpreted by the Manager.
type Response struct {
	// Output is the value placed in the store document.
	Output any
	// StoredData is an auxiliary map persisted alongside Output.
	StoredData map[string]any

	// Replace carries a Job or Flow that replaces the current job's unborn
	// successors; the current job's uuid is reused for the replacement's
	// leaf, index incremented by 1.
	Replace Node
	// Detour carries a Job or Flow to insert before any dependent of the
	// current job; dependents wait for the detour's leaf instead.
	Detour Node
	// Addition carries a Job or Flow appended to the enclosing Flow,
	// unwired to any existing dependent.
	Addition Node

	// StopChildren skips every job whose dependencies include the current
	// job's uuid.
	StopChildren bool
	// StopJobflow terminates the entire execution.
	StopJobflow bool

	// AllowReplaceAndDetour opts into the otherwise-rejected combination of
	// Replace and Detour in the same Response (see spec Open Question).
	AllowReplaceAndDetour bool
}

// Of wraps a bare value as a plain Response, the normalisation jobs apply to
// functions that return a value without building a Response themselves.
func Of(output any) Response {
	return Response{Output: output}
}

// InterpretationError reports a structurally invalid Response, e.g. Replace
// and Detour both populated without AllowReplaceAndDetour.
type InterpretationError struct {
	Reason string
}

func (e *InterpretationError) Error() string {
	return fmt.Sprintf("response: invalid directive: %s", e.Reason)
}

// Validate enforces the mutual-exclusion invariant described in the spec:
// a conforming Response carries at most one of Replace/Detour/Addition,
// unless Replace+Detour combination was explicitly opted into.
func (r Response) Validate() error {
	n := 0
	if r.Replace != nil {
		n++
	}
	if r.Detour != nil {
		n++
	}
	if r.Addition != nil {
		n++
	}
	if n <= 1 {
		return nil
	}
	if n == 2 && r.Replace != nil && r.Detour != nil && r.Addition == nil && r.AllowReplaceAndDetour {
		return nil
	}
	return &InterpretationError{Reason: "at most one of replace, detour, addition may carry new work"}
}

// HasDirective reports whether r carries any schedule-reshaping directive at
// all (as opposed to being a plain terminal output).
func (r Response) HasDirective() bool {
	return r.Replace != nil || r.Detour != nil || r.Addition != nil || r.StopChildren || r.StopJobflow
}
