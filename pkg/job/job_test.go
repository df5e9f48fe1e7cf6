package job_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/job"
	"github.com/nuulab/jobflow/pkg/ref"
)

// memStore is a minimal job.Store used only to exercise Job.Run in
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

func TestJobOutputIsStableReference(t *testing.T) {
	j := job.New("add", job.FuncToken{Name: "add"}, addFn, []any{1.0, 2.0})

	out1 := j.Output()
	out2 := j.Output()
	if !out1.Equal(out2) {
		t.Fatalf("Output() not stable: %v != %v", out1, out2)
	}
	if out1.UUID != j.UUID() || out1.Iteration != j.Iteration() {
		t.Errorf("Output() = %v, want uuid=%v iteration=%d", out1, j.UUID(), j.Iteration())
	}
}

func TestJobRunTwoStepAddition(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	cache := ref.NewCache()

	j1 := job.New("j1", job.FuncToken{Name: "add"}, addFn, []any{1.0, 2.0})
	resp, err := j1.Run(ctx, store, cache)
	if err != nil {
		t.Fatalf("j1.Run: %v", err)
	}
	if resp.Output != 3.0 {
		t.Fatalf("j1 output = %v, want 3", resp.Output)
	}

	j2 := job.New("j2", job.FuncToken{Name: "add"}, addFn, []any{j1.Output(), 3.0})
	resp2, err := j2.Run(ctx, store, cache)
	if err != nil {
		t.Fatalf("j2.Run: %v", err)
	}
	if resp2.Output != 6.0 {
		t.Fatalf("j2 output = %v, want 6", resp2.Output)
	}

	if v, _, _ := store.GetOutput(ctx, j1.UUID(), 1); v != 3.0 {
		t.Errorf("stored j1 output = %v, want 3", v)
	}
	if v, _, _ := store.GetOutput(ctx, j2.UUID(), 1); v != 6.0 {
		t.Errorf("stored j2 output = %v, want 6", v)
	}
}

func TestJobRunOutputSelector(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	cache := ref.NewCache()

	makeDict := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return map[string]any{"x": 4.0, "y": 5.0}, nil
	}
	sq := func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		v := args[0].(float64)
		return v * v, nil
	}

	j1 := job.New("j1", job.FuncToken{Name: "make_dict"}, makeDict, nil)
	if _, err := j1.Run(ctx, store, cache); err != nil {
		t.Fatalf("j1.Run: %v", err)
	}

	j2 := job.New("j2", job.FuncToken{Name: "sq"}, sq, []any{j1.Output().Attr("x")})
	resp, err := j2.Run(ctx, store, cache)
	if err != nil {
		t.Fatalf("j2.Run: %v", err)
	}
	if resp.Output != 16.0 {
		t.Fatalf("j2 output = %v, want 16", resp.Output)
	}
}

func TestJobRunMissingReferenceFails(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	missing := ref.New(uuid.New(), 1)
	j := job.New("j", job.FuncToken{Name: "add"}, addFn, []any{missing, 1.0})

	_, err := j.Run(ctx, store, nil)
	if err == nil {
		t.Fatal("expected resolution failure")
	}
	var resErr *job.ResolutionFailedError
	if !asResolutionFailed(err, &resErr) {
		t.Errorf("expected *job.ResolutionFailedError, got %T: %v", err, err)
	}
}

func asResolutionFailed(err error, target **job.ResolutionFailedError) bool {
	if e, ok := err.(*job.ResolutionFailedError); ok {
		*target = e
		return true
	}
	return false
}

func TestJobReferencesCollectsNested(t *testing.T) {
	id := uuid.New()
	r := ref.New(id, 1)

	j := job.New("j", job.FuncToken{Name: "f"}, addFn, []any{
		map[string]any{"nested": []any{r}},
	}, job.WithKwargs(map[string]any{"direct": r.Attr("x")}))

	refs := j.References()
	if len(refs) != 2 {
		t.Fatalf("References() = %d entries, want 2", len(refs))
	}
}

func TestUUIDStableAcrossRetry(t *testing.T) {
	j := job.New("j", job.FuncToken{Name: "f"}, addFn, nil)
	id := j.UUID()

	retried := j.Retry()
	if retried.UUID() != id {
		t.Errorf("Retry() changed uuid: %v != %v", retried.UUID(), id)
	}
	if retried.Iteration() != j.Iteration()+1 {
		t.Errorf("Retry() iteration = %d, want %d", retried.Iteration(), j.Iteration()+1)
	}
}
