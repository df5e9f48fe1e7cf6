package manager

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/flow"
	"github.com/nuulab/jobflow/pkg/job"
	"github.com/nuulab/jobflow/pkg/response"
)

// scheduler tracks the Manager's workflow state: which jobs are ready,
// which are still waiting on a dependency, which have reached a terminal
// completion, and which have been skipped by a stop_children directive.
// uuids are stable keys even across replace/detour: a graft rewrites the
// *job.Job stored under a uuid without touching that uuid's dependents.
type scheduler struct {
	jobs       map[uuid.UUID]*job.Job
	declOrder  map[uuid.UUID]int
	nextDecl   int
	deps       map[uuid.UUID]map[uuid.UUID]bool // uuid -> unresolved dependency uuids
	dependents map[uuid.UUID]map[uuid.UUID]bool // uuid -> uuids that depend on it
	done       map[uuid.UUID]bool
	skipped    map[uuid.UUID]bool
	ready      []uuid.UUID
}

func newScheduler(f *flow.Flow) (*scheduler, error) {
	sorted, err := f.Sorted()
	if err != nil {
		return nil, fmt.Errorf("manager: %w", err)
	}

	s := &scheduler{
		jobs:       map[uuid.UUID]*job.Job{},
		declOrder:  map[uuid.UUID]int{},
		deps:       map[uuid.UUID]map[uuid.UUID]bool{},
		dependents: map[uuid.UUID]map[uuid.UUID]bool{},
		done:       map[uuid.UUID]bool{},
		skipped:    map[uuid.UUID]bool{},
	}

	for i, j := range sorted {
		id := j.UUID()
		s.jobs[id] = j
		s.declOrder[id] = i
		s.dependents[id] = map[uuid.UUID]bool{}
	}
	s.nextDecl = len(sorted)

	for _, j := range sorted {
		id := j.UUID()
		depSet := map[uuid.UUID]bool{}
		for _, r := range j.References() {
			if r.UUID == id {
				continue
			}
			if _, ok := s.jobs[r.UUID]; ok {
				depSet[r.UUID] = true
				s.dependents[r.UUID][id] = true
			}
		}
		s.deps[id] = depSet
	}

	for _, j := range sorted {
		if id := j.UUID(); len(s.deps[id]) == 0 {
			s.ready = append(s.ready, id)
		}
	}

	return s, nil
}

// next pops the next ready job in tie-break order (declaration order, then
// lexicographic uuid), skipping anything that became skipped/done after it
// was queued.
func (s *scheduler) next() (*job.Job, bool) {
	for len(s.ready) > 0 {
		sort.SliceStable(s.ready, func(i, k int) bool {
			a, b := s.ready[i], s.ready[k]
			if s.declOrder[a] != s.declOrder[b] {
				return s.declOrder[a] < s.declOrder[b]
			}
			return a.String() < b.String()
		})
		id := s.ready[0]
		s.ready = s.ready[1:]
		if s.skipped[id] || s.done[id] {
			continue
		}
		return s.jobs[id], true
	}
	return nil, false
}

// terminal marks id as having reached a completion with no further
// replace/detour directive, unblocking every dependent whose only remaining
// wait was on id.
func (s *scheduler) terminal(id uuid.UUID) {
	s.done[id] = true
	for dep := range s.dependents[id] {
		if s.skipped[dep] || s.done[dep] {
			continue
		}
		if _, ok := s.deps[dep][id]; !ok {
			continue
		}
		delete(s.deps[dep], id)
		if len(s.deps[dep]) == 0 {
			s.ready = append(s.ready, dep)
		}
	}
}

// stopChildren skips every direct dependent of id, matching the spec's
// stop_children directive (and the failure-semantics rule that treats a
// raised error the same way). Transitively further descendants are never
// explicitly marked: since their only path to readiness runs through a
// skipped job that will never reach terminal, they simply never unblock. It
// returns the dependents actually newly marked skipped, so callers can
// report them (e.g. incrementing a skipped-jobs counter per job).
func (s *scheduler) stopChildren(id uuid.UUID) []uuid.UUID {
	var skipped []uuid.UUID
	for dep := range s.dependents[id] {
		if s.done[dep] || s.skipped[dep] {
			continue
		}
		s.skipped[dep] = true
		s.removeFromReady(dep)
		skipped = append(skipped, dep)
	}
	return skipped
}

// readyDepth reports the number of jobs currently queued ready, for the
// ReadyQueueDepth gauge.
func (s *scheduler) readyDepth() int {
	return len(s.ready)
}

func (s *scheduler) removeFromReady(id uuid.UUID) {
	for i, rid := range s.ready {
		if rid == id {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			return
		}
	}
}

// leafAndMembers resolves a Response directive's carried Node to its leaf
// job (the one whose identity gets renamed to the graft point) plus the
// full flat list of jobs the node introduces.
func leafAndMembers(node response.Node) (*job.Job, []*job.Job, error) {
	switch t := node.(type) {
	case *job.Job:
		return t, []*job.Job{t}, nil
	case *flow.Flow:
		leaf, err := t.LeafJob()
		if err != nil {
			return nil, nil, fmt.Errorf("manager: %w", err)
		}
		return leaf, t.Jobs(), nil
	default:
		return nil, nil, fmt.Errorf("manager: response carries unsupported node type %T", node)
	}
}

// graft installs a Replace or Detour directive's jobs: the node's leaf job
// is renamed to (origUUID, origIteration+1), taking over the replaced job's
// identity so every existing Reference to origUUID keeps resolving — once
// the leaf reaches a terminal completion, it is origUUID's dependents that
// unblock, exactly as if origUUID itself had finished.
func (s *scheduler) graft(origUUID uuid.UUID, origIteration int, node response.Node) error {
	leaf, members, err := leafAndMembers(node)
	if err != nil {
		return err
	}

	remap := map[uuid.UUID]uuid.UUID{leaf.UUID(): origUUID}
	renamedLeaf := leaf.WithIdentity(origUUID, origIteration+1)

	keyOf := func(mj *job.Job) uuid.UUID {
		if mj == leaf {
			return origUUID
		}
		return mj.UUID()
	}

	// Pass 1: install every member under its final key so pass 2 can see
	// the whole sibling set regardless of declaration order.
	ids := make([]uuid.UUID, 0, len(members))
	for _, mj := range members {
		id := keyOf(mj)
		stored := mj
		if mj == leaf {
			stored = renamedLeaf
		}
		s.jobs[id] = stored
		s.declOrder[id] = s.nextDecl
		s.nextDecl++
		if s.dependents[id] == nil {
			s.dependents[id] = map[uuid.UUID]bool{}
		}
		ids = append(ids, id)
	}

	// Pass 2: compute dependencies, translating any Reference to the
	// leaf's pre-rename uuid onto its new key.
	for _, mj := range members {
		id := keyOf(mj)
		depSet := map[uuid.UUID]bool{}
		for _, r := range mj.References() {
			target := r.UUID
			if mapped, ok := remap[target]; ok {
				target = mapped
			}
			if target == id {
				continue
			}
			if _, ok := s.jobs[target]; ok && !s.done[target] {
				depSet[target] = true
				s.dependents[target][id] = true
			}
		}
		s.deps[id] = depSet
	}

	// Pass 3: anything now dependency-free is ready. origUUID's existing
	// dependents list (jobs that were already waiting on it) is untouched
	// by this graft — they keep waiting on the same key.
	for _, id := range ids {
		if len(s.deps[id]) == 0 && !s.skipped[id] && !s.done[id] {
			s.ready = append(s.ready, id)
		}
	}
	return nil
}

// addition installs a Response's Addition directive: new jobs appended to
// the schedule, wired only to whatever they themselves reference.
func (s *scheduler) addition(node response.Node) error {
	var members []*job.Job
	switch t := node.(type) {
	case *job.Job:
		members = []*job.Job{t}
	case *flow.Flow:
		members = t.Jobs()
	default:
		return fmt.Errorf("manager: response carries unsupported node type %T", node)
	}

	for _, mj := range members {
		id := mj.UUID()
		if _, exists := s.jobs[id]; exists {
			return fmt.Errorf("manager: addition job %s collides with an existing uuid", id)
		}
		s.jobs[id] = mj
		s.declOrder[id] = s.nextDecl
		s.nextDecl++
		if s.dependents[id] == nil {
			s.dependents[id] = map[uuid.UUID]bool{}
		}
	}
	for _, mj := range members {
		id := mj.UUID()
		depSet := map[uuid.UUID]bool{}
		for _, r := range mj.References() {
			if r.UUID == id {
				continue
			}
			if _, ok := s.jobs[r.UUID]; ok && !s.done[r.UUID] {
				depSet[r.UUID] = true
				s.dependents[r.UUID][id] = true
			}
		}
		s.deps[id] = depSet
	}
	for _, mj := range members {
		id := mj.UUID()
		if len(s.deps[id]) == 0 {
			s.ready = append(s.ready, id)
		}
	}
	return nil
}
