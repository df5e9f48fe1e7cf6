package manager_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/flow"
	"github.com/nuulab/jobflow/pkg/job"
	"github.com/nuulab/jobflow/pkg/manager"
	"github.com/nuulab/jobflow/pkg/response"
)

// memStore is a minimal job.Store used only to exercise the Manager in
// isolation, without pulling in pkg/store.
type memStore struct {
	docs map[uuid.UUID][]job.OutputDoc
}

func newMemStore() *memStore {
	return &memStore{docs: map[uuid.UUID][]job.OutputDoc{}}
}

func (s *memStore) PutOutput(ctx context.Context, doc job.OutputDoc) error {
	s.docs[doc.UUID] = append(s.docs[doc.UUID], doc)
	return nil
}

func (s *memStore) GetOutput(ctx context.Context, id uuid.UUID, index int) (any, bool, error) {
	docs := s.docs[id]
	if len(docs) == 0 {
		return nil, false, nil
	}
	if index == 0 {
		return docs[len(docs)-1].Output, true, nil
	}
	for _, d := range docs {
		if d.Index == index {
			return d.Output, true, nil
		}
	}
	return nil, false, nil
}

func addFn(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	return args[0].(float64) + args[1].(float64), nil
}

func TestManagerTwoStepAddition(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	j1 := job.New("j1", job.FuncToken{Name: "add"}, addFn, []any{1.0, 2.0})
	j2 := job.New("j2", job.FuncToken{Name: "add"}, addFn, []any{j1.Output(), 3.0})

	f, err := flow.New("main", []flow.Member{j1, j2}, nil, flow.Auto)
	if err != nil {
		t.Fatalf("flow.New: %v", err)
	}

	mgr := manager.New(store)
	results, err := mgr.Run(ctx, f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if results[j1.UUID()][1].Output != 3.0 {
		t.Errorf("j1 output = %v, want 3", results[j1.UUID()][1].Output)
	}
	if results[j2.UUID()][1].Output != 6.0 {
		t.Errorf("j2 output = %v, want 6", results[j2.UUID()][1].Output)
	}

	started := mgr.Events().All()
	var order []uuid.UUID
	for _, e := range started {
		if e.Type == manager.EventJobStarted {
			order = append(order, e.UUID)
		}
	}
	if len(order) != 2 || order[0] != j1.UUID() || order[1] != j2.UUID() {
		t.Errorf("execution order = %v, want [j1, j2]", order)
	}
}

func TestManagerReplace(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	makeList := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return []any{2.0, 2.0, 2.0}, nil
	}
	j := job.New("make_list", job.FuncToken{Name: "make_list"}, makeList, nil)

	add1 := job.New("r1", job.FuncToken{Name: "add"}, addFn, []any{2.0, 1.0})
	add2 := job.New("r2", job.FuncToken{Name: "add"}, addFn, []any{2.0, 1.0})
	add3 := job.New("r3", job.FuncToken{Name: "add"}, addFn, []any{2.0, 1.0})

	expandFn := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		replacement, err := flow.New("replace-k", []flow.Member{add1, add2, add3}, nil, flow.Auto)
		if err != nil {
			return nil, err
		}
		return response.Response{Replace: replacement}, nil
	}
	k := job.New("expand", job.FuncToken{Name: "expand"}, expandFn, []any{j.Output()})

	f, err := flow.New("main", []flow.Member{j, k}, nil, flow.Auto)
	if err != nil {
		t.Fatalf("flow.New: %v", err)
	}

	mgr := manager.New(store)
	results, err := mgr.Run(ctx, f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if v, _, _ := store.GetOutput(ctx, add1.UUID(), 0); v != 3.0 {
		t.Errorf("add1 output = %v, want 3", v)
	}
	if v, _, _ := store.GetOutput(ctx, add2.UUID(), 0); v != 3.0 {
		t.Errorf("add2 output = %v, want 3", v)
	}

	leafVal, found, _ := store.GetOutput(ctx, k.UUID(), 0)
	if !found || leafVal != 3.0 {
		t.Fatalf("k's latest output = (%v, %v), want (3, true)", leafVal, found)
	}
	if _, ok := results[k.UUID()][2]; !ok {
		t.Errorf("expected k to have an iteration-2 result from the grafted leaf")
	}
	if v, found, _ := store.GetOutput(ctx, add3.UUID(), 0); found {
		t.Errorf("add3's own uuid should never have run directly, got %v", v)
	}
}

func TestManagerDetour(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	j1 := job.New("j1", job.FuncToken{Name: "const"}, func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return 3.0, nil
	}, nil)

	detour := job.New("detour", job.FuncToken{Name: "add"}, addFn, []any{3.0, 4.0})

	j2Fn := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return response.Response{Detour: detour}, nil
	}
	j2 := job.New("j2", job.FuncToken{Name: "inspect"}, j2Fn, []any{j1.Output()})

	identity := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return args[0], nil
	}
	j3 := job.New("j3", job.FuncToken{Name: "identity"}, identity, []any{j2.Output()})

	f, err := flow.New("main", []flow.Member{j1, j2, j3}, nil, flow.Auto)
	if err != nil {
		t.Fatalf("flow.New: %v", err)
	}

	mgr := manager.New(store)
	results, err := mgr.Run(ctx, f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := results[j3.UUID()][1].Output; got != 7.0 {
		t.Errorf("j3 observed %v, want 7 (the detour's output)", got)
	}

	var order []uuid.UUID
	for _, e := range mgr.Events().All() {
		if e.Type == manager.EventJobStarted {
			order = append(order, e.UUID)
		}
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 job starts (j1, j2, detour, j3), got %d", len(order))
	}
	if order[0] != j1.UUID() || order[1] != j2.UUID() || order[3] != j3.UUID() {
		t.Errorf("unexpected execution order: %v", order)
	}
}

func TestManagerStopChildren(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	j1 := job.New("j1", job.FuncToken{Name: "const"}, func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return 1.0, nil
	}, nil)

	j2Fn := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return response.Response{Output: 2.0, StopChildren: true}, nil
	}
	j2 := job.New("j2", job.FuncToken{Name: "stop"}, j2Fn, []any{j1.Output()})

	j3 := job.New("j3", job.FuncToken{Name: "add"}, addFn, []any{j2.Output(), 1.0})

	f, err := flow.New("main", []flow.Member{j1, j2, j3}, nil, flow.Auto)
	if err != nil {
		t.Fatalf("flow.New: %v", err)
	}

	mgr := manager.New(store)
	results, err := mgr.Run(ctx, f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, ok := results[j3.UUID()]; ok {
		t.Errorf("j3 should not have run, but has results %v", results[j3.UUID()])
	}
	if _, found, _ := store.GetOutput(ctx, j3.UUID(), 0); found {
		t.Errorf("j3's uuid should be absent from the store")
	}
}

func TestManagerAtMostOnceExecution(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	calls := 0
	j1 := job.New("j1", job.FuncToken{Name: "counted"}, func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		calls++
		return float64(calls), nil
	}, nil)
	j2 := job.New("j2", job.FuncToken{Name: "add"}, addFn, []any{j1.Output(), 1.0})

	f, err := flow.New("main", []flow.Member{j1, j2}, nil, flow.Auto)
	if err != nil {
		t.Fatalf("flow.New: %v", err)
	}

	mgr := manager.New(store)
	if _, err := mgr.Run(ctx, f); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Errorf("j1 ran %d times, want exactly 1", calls)
	}
}

func TestManagerFailurePropagatesAndSkipsDependents(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	boom := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return nil, errBoom
	}
	j1 := job.New("j1", job.FuncToken{Name: "boom"}, boom, nil)
	j2 := job.New("j2", job.FuncToken{Name: "add"}, addFn, []any{j1.Output(), 1.0})
	j3 := job.New("j3", job.FuncToken{Name: "const"}, func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return 9.0, nil
	}, nil)

	f, err := flow.New("main", []flow.Member{j1, j2, j3}, nil, flow.Auto)
	if err != nil {
		t.Fatalf("flow.New: %v", err)
	}

	mgr := manager.New(store)
	results, err := mgr.Run(ctx, f)
	if err == nil {
		t.Fatal("expected the first error to be returned")
	}
	if _, ok := results[j2.UUID()]; ok {
		t.Errorf("j2 depends on the failed j1 and should not have run")
	}
	if got := results[j3.UUID()][1].Output; got != 9.0 {
		t.Errorf("j3 is independent of j1 and should still have run, got %v", got)
	}
	if mgr.Failures().Len() != 1 {
		t.Errorf("expected 1 recorded failure, got %d", mgr.Failures().Len())
	}
}

var errBoom = boomError{}

type boomError struct{}

func (boomError) Error() string { return "boom" }
