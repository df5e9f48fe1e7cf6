package ref_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/ref"
)

type fakeStore map[ref.CacheKey]any

func (f fakeStore) GetOutput(ctx context.Context, id uuid.UUID, index int) (any, bool, error) {
	// Resolve always requests index 0 ("latest"); the fake store is
	// indexed by uuid alone.
	key := ref.CacheKey{UUID: id}
	v, ok := f[key]
	return v, ok, nil
}

func TestReferencePurity(t *testing.T) {
	id := uuid.New()
	r := ref.New(id, 1)

	extended := r.Attr("a").Item(0)

	want := []ref.Selector{
		{Kind: ref.Attr, Name: "a"},
		{Kind: ref.Item, Key: 0},
	}

	if len(extended.Path) != len(want) {
		t.Fatalf("path length = %d, want %d", len(extended.Path), len(want))
	}
	for i := range want {
		if extended.Path[i].Kind != want[i].Kind || extended.Path[i].Name != want[i].Name {
			t.Errorf("path[%d] = %+v, want %+v", i, extended.Path[i], want[i])
		}
	}

	// r itself must be untouched (purity / immutability).
	if len(r.Path) != 0 {
		t.Errorf("original reference mutated: %+v", r)
	}
}

func TestReferenceResolveSelector(t *testing.T) {
	id := uuid.New()
	store := fakeStore{
		{UUID: id}: map[string]any{"x": 4.0, "y": 5.0},
	}

	r := ref.New(id, 1).Attr("x")

	v, err := r.Resolve(context.Background(), store, ref.OnMissingFail, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v != 4.0 {
		t.Errorf("Resolve = %v, want 4.0", v)
	}
}

func TestReferenceResolveMissing(t *testing.T) {
	id := uuid.New()
	store := fakeStore{}
	r := ref.New(id, 1)

	if _, err := r.Resolve(context.Background(), store, ref.OnMissingFail, nil); err == nil {
		t.Fatal("expected ResolutionError, got nil")
	}

	v, err := r.Resolve(context.Background(), store, ref.OnMissingNone, nil)
	if err != nil || v != nil {
		t.Errorf("OnMissingNone: got (%v, %v), want (nil, nil)", v, err)
	}

	v, err = r.Resolve(context.Background(), store, ref.OnMissingPassThrough, nil)
	if err != nil {
		t.Fatalf("OnMissingPassThrough: %v", err)
	}
	if got, ok := v.(ref.Reference); !ok || !got.Equal(r) {
		t.Errorf("OnMissingPassThrough = %v, want %v", v, r)
	}
}

func TestReferenceEqual(t *testing.T) {
	id := uuid.New()
	a := ref.New(id, 1).Attr("x").Item(2)
	b := ref.New(id, 1).Attr("x").Item(2)
	c := ref.New(id, 1).Attr("x").Item(3)

	if !a.Equal(b) {
		t.Error("expected a.Equal(b)")
	}
	if a.Equal(c) {
		t.Error("expected !a.Equal(c)")
	}
}

func TestReferenceSetUUID(t *testing.T) {
	original := uuid.New()
	replacement := uuid.New()

	r := ref.New(original, 1).Attr("out")
	renamed := r.SetUUID(replacement)

	if renamed.UUID != replacement {
		t.Errorf("renamed.UUID = %v, want %v", renamed.UUID, replacement)
	}
	if r.UUID != original {
		t.Error("SetUUID mutated the receiver")
	}
	if len(renamed.Path) != 1 || renamed.Path[0].Name != "out" {
		t.Errorf("SetUUID dropped the path: %+v", renamed.Path)
	}
}
