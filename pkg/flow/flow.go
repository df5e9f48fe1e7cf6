// Package flow implements Flow, a recursively nested collection of Jobs and
// sub-Flows with its own identity and an optional output expression that
// composes member References.
package flow

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/job"
	"github.com/nuulab/jobflow/pkg/ref"
	"github.com/nuulab/jobflow/pkg/response"
)

// Order controls whether a Flow's members execute in dependency order
// (Auto) or strictly in declaration order (Linear).
type Order string

const (
	// Auto orders members by topological dependency, ties broken by
	// declaration order.
	Auto Order = "auto"
	// Linear orders members strictly by declaration order.
	Linear Order = "linear"
)

// Member is either a *job.Job or a *flow.Flow.
type Member = response.Node

// Flow is a named, ordered collection of Jobs and sub-Flows.
type Flow struct {
	id      uuid.UUID
	name    string
	members []Member
	output  any
	order   Order
	hosts   []uuid.UUID
}

func (f *Flow) isJobflowNode() {}

// UUID returns the Flow's identity.
func (f *Flow) UUID() uuid.UUID { return f.id }

// Name returns the Flow's declared name.
func (f *Flow) Name() string { return f.name }

// Output returns the Flow's output expression: an arbitrary (possibly
// nested) structure of References, or nil.
func (f *Flow) Output() any { return f.output }

// Members returns the Flow's direct children in declaration order.
func (f *Flow) Members() []Member { return f.members }

// OrderMode returns the Flow's declared ordering discipline.
func (f *Flow) OrderMode() Order { return f.order }

// Hosts returns the ordered list of enclosing Flow uuids, outermost last.
func (f *Flow) Hosts() []uuid.UUID { return f.hosts }

// AddHost appends an enclosing Flow's uuid to this Flow's hosts list, and
// recurses into every direct member so the whole transitive closure is
// stamped.
func (f *Flow) AddHost(flowUUID uuid.UUID) {
	f.hosts = append(f.hosts, flowUUID)
	for _, m := range f.members {
		switch t := m.(type) {
		case *job.Job:
			t.AddHost(flowUUID)
		case *Flow:
			t.AddHost(flowUUID)
		}
	}
}

// DuplicateUUIDError reports that the same uuid appears twice in a Flow's
// transitive closure.
type DuplicateUUIDError struct {
	UUID uuid.UUID
}

func (e *DuplicateUUIDError) Error() string {
	return fmt.Sprintf("flow: duplicate uuid %s in transitive closure", e.UUID)
}

// SelfContainmentError reports that a Flow contains itself transitively.
type SelfContainmentError struct {
	UUID uuid.UUID
}

func (e *SelfContainmentError) Error() string {
	return fmt.Sprintf("flow: flow %s contains itself transitively", e.UUID)
}

// New flattens members into a Flow, stamping every transitively-nested
// member's hosts list and rejecting duplicate uuids or self-containment.
// Construction never executes anything.
func New(name string, members []Member, output any, order Order) (*Flow, error) {
	f := &Flow{
		id:      uuid.New(),
		name:    name,
		members: members,
		output:  output,
		order:   order,
	}

	if err := checkSelfContainment(f, map[uuid.UUID]bool{}); err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]bool{}
	if err := checkDuplicates(f, seen); err != nil {
		return nil, err
	}

	for _, m := range f.members {
		switch t := m.(type) {
		case *job.Job:
			t.AddHost(f.id)
		case *Flow:
			t.AddHost(f.id)
		}
	}

	return f, nil
}

func checkSelfContainment(f *Flow, stack map[uuid.UUID]bool) error {
	if stack[f.id] {
		return &SelfContainmentError{UUID: f.id}
	}
	stack[f.id] = true
	defer delete(stack, f.id)
	for _, m := range f.members {
		if sub, ok := m.(*Flow); ok {
			if err := checkSelfContainment(sub, stack); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkDuplicates(f *Flow, seen map[uuid.UUID]bool) error {
	for _, m := range f.members {
		var id uuid.UUID
		switch t := m.(type) {
		case *job.Job:
			id = t.UUID()
		case *Flow:
			id = t.UUID()
			if err := checkDuplicates(t, seen); err != nil {
				return err
			}
		default:
			continue
		}
		if seen[id] {
			return &DuplicateUUIDError{UUID: id}
		}
		seen[id] = true
	}
	return nil
}

// Jobs returns every *job.Job in the Flow's transitive closure, flattened in
// declaration order (depth-first: a sub-Flow's members appear in the slot
// where the sub-Flow was declared).
func (f *Flow) Jobs() []*job.Job {
	var out []*job.Job
	collectJobs(f, &out)
	return out
}

func collectJobs(f *Flow, out *[]*job.Job) {
	for _, m := range f.members {
		switch t := m.(type) {
		case *job.Job:
			*out = append(*out, t)
		case *Flow:
			collectJobs(t, out)
		}
	}
}

// Sorted returns the Flow's jobs in the order the Manager should consider
// them ready: declaration order if OrderMode is Linear, a stable
// topological order (ties broken by declaration order, then lexicographic
// uuid) if Auto.
func (f *Flow) Sorted() ([]*job.Job, error) {
	jobs := f.Jobs()
	if f.order == Linear {
		return jobs, nil
	}
	return topoSort(jobs)
}

func topoSort(jobs []*job.Job) ([]*job.Job, error) {
	declOrder := map[uuid.UUID]int{}
	byUUID := map[uuid.UUID]*job.Job{}
	for i, j := range jobs {
		declOrder[j.UUID()] = i
		byUUID[j.UUID()] = j
	}

	// deps[b] = set of jobs b depends on, which must come before b
	deps := map[uuid.UUID]map[uuid.UUID]bool{}
	for _, j := range jobs {
		deps[j.UUID()] = map[uuid.UUID]bool{}
	}
	for _, j := range jobs {
		for _, r := range j.References() {
			if _, ok := byUUID[r.UUID]; ok && r.UUID != j.UUID() {
				deps[j.UUID()][r.UUID] = true
			}
		}
	}

	var out []*job.Job
	visited := map[uuid.UUID]bool{}
	visiting := map[uuid.UUID]bool{}

	order := make([]*job.Job, len(jobs))
	copy(order, jobs)
	sort.SliceStable(order, func(i, k int) bool {
		return declOrder[order[i].UUID()] < declOrder[order[k].UUID()]
	})

	var visit func(j *job.Job) error
	visit = func(j *job.Job) error {
		id := j.UUID()
		if visited[id] {
			return nil
		}
		if visiting[id] {
			return fmt.Errorf("flow: dependency cycle at job %s", id)
		}
		visiting[id] = true

		depIDs := make([]uuid.UUID, 0, len(deps[id]))
		for d := range deps[id] {
			depIDs = append(depIDs, d)
		}
		sort.SliceStable(depIDs, func(i, k int) bool {
			oi, ok1 := declOrder[depIDs[i]]
			ok2i, ok2 := declOrder[depIDs[k]]
			if ok1 && ok2 {
				return oi < ok2i
			}
			return depIDs[i].String() < depIDs[k].String()
		})
		for _, d := range depIDs {
			if dep, ok := byUUID[d]; ok {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		visiting[id] = false
		visited[id] = true
		out = append(out, j)
		return nil
	}

	for _, j := range order {
		if err := visit(j); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Graph produces the adjacency list {uuid: set(uuid)} where an edge A -> B
// exists iff some Reference inside B's arguments has uuid A.
func (f *Flow) Graph() map[uuid.UUID]map[uuid.UUID]struct{} {
	jobs := f.Jobs()
	ids := map[uuid.UUID]bool{}
	for _, j := range jobs {
		ids[j.UUID()] = true
	}

	g := make(map[uuid.UUID]map[uuid.UUID]struct{}, len(jobs))
	for _, j := range jobs {
		g[j.UUID()] = map[uuid.UUID]struct{}{}
	}
	for _, j := range jobs {
		for _, r := range j.References() {
			if r.UUID == j.UUID() {
				continue
			}
			if _, ok := g[r.UUID]; ok {
				g[r.UUID][j.UUID()] = struct{}{}
			}
		}
	}
	return g
}

// LeafJob returns the job that represents this Flow's terminal result, used
// by the Manager when grafting a Flow in as a Response's Replace or Detour:
// that job's identity is renamed to take over the uuid of the job being
// replaced/detoured. If Output is a single bare Reference to a job in this
// Flow's closure, that job is the leaf. If Output is nil, the last job in
// declaration order is taken as the leaf (matching the common case of a
// Flow built as a simple job pipeline). Any other shape is ambiguous.
func (f *Flow) LeafJob() (*job.Job, error) {
	jobs := f.Jobs()
	if len(jobs) == 0 {
		return nil, fmt.Errorf("flow: %s has no jobs, cannot determine leaf", f.name)
	}

	if f.output == nil {
		return jobs[len(jobs)-1], nil
	}

	if r, ok := f.output.(ref.Reference); ok {
		for _, j := range jobs {
			if j.UUID() == r.UUID {
				return j, nil
			}
		}
		return nil, fmt.Errorf("flow: %s output references uuid %s outside its closure", f.name, r.UUID)
	}

	return nil, fmt.Errorf("flow: %s has a composite output expression; cannot determine a single leaf job", f.name)
}

// OutputReferences walks the Flow's output expression and returns every
// embedded Reference.
func (f *Flow) OutputReferences() []ref.Reference {
	var out []ref.Reference
	collectRefs(f.output, &out)
	return out
}

func collectRefs(v any, out *[]ref.Reference) {
	switch t := v.(type) {
	case ref.Reference:
		*out = append(*out, t)
	case map[string]any:
		for _, v := range t {
			collectRefs(v, out)
		}
	case []any:
		for _, v := range t {
			collectRefs(v, out)
		}
	}
}
