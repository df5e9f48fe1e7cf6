package flowfile_test

import (
	"context"
	"testing"

	"github.com/nuulab/jobflow/pkg/flowfile"
	"github.com/nuulab/jobflow/pkg/manager"
	"github.com/nuulab/jobflow/pkg/registry"
	"github.com/nuulab/jobflow/pkg/store"
)

func TestParseAndRun(t *testing.T) {
	raw := []byte(`{
		"name": "main",
		"jobs": [
			{"name": "a", "function": "add", "args": [1, 2]},
			{"name": "b", "function": "add", "args": [{"$ref": "a"}, 10]}
		],
		"output": "b"
	}`)

	f, err := flowfile.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Name() != "main" {
		t.Errorf("Name() = %q, want main", f.Name())
	}

	backing := store.NewMemoryStore()
	mgr := manager.New(store.NewJobStoreAdapter(backing))

	results, err := mgr.Run(context.Background(), f)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var got float64
	for _, iterations := range results {
		for _, r := range iterations {
			if v, ok := r.Output.(float64); ok && v == 13.0 {
				got = v
			}
		}
	}
	if got != 13.0 {
		t.Errorf("expected an output of 13, got %v across %d jobs", got, len(results))
	}
}

func TestParseUnknownFunction(t *testing.T) {
	raw := []byte(`{"name": "main", "jobs": [{"name": "a", "function": "does_not_exist"}]}`)
	if _, err := flowfile.Parse(raw); err == nil {
		t.Fatal("expected an error for an unregistered function")
	}
}

func TestParseDuplicateJobName(t *testing.T) {
	raw := []byte(`{
		"name": "main",
		"jobs": [
			{"name": "a", "function": "const", "args": [1]},
			{"name": "a", "function": "const", "args": [2]}
		]
	}`)
	if _, err := flowfile.Parse(raw); err == nil {
		t.Fatal("expected an error for a duplicate job name")
	}
}

func TestRegistryHasBuiltins(t *testing.T) {
	for _, name := range []string{"const", "add", "multiply", "concat", "identity"} {
		if _, ok := registry.Lookup(name); !ok {
			t.Errorf("expected %q to be a registered builtin", name)
		}
	}
}
