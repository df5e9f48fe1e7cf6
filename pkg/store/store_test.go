package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/job"
	"github.com/nuulab/jobflow/pkg/store"
)

func TestMemoryStorePutGetOneLatest(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	id := uuid.New()

	if err := s.Put(ctx, store.Document{UUID: id, Index: 1, Output: "v1"}, store.OutputsCollection); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, store.Document{UUID: id, Index: 2, Output: "v2"}, store.OutputsCollection); err != nil {
		t.Fatalf("Put: %v", err)
	}

	doc, found, err := s.GetOne(ctx, store.ForUUID(id), store.OutputsCollection)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if !found {
		t.Fatal("expected a document")
	}
	if doc.Index != 2 || doc.Output != "v2" {
		t.Errorf("GetOne returned %+v, want index=2 output=v2", doc)
	}
}

func TestMemoryStoreGetOutputReadsStoredValue(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	adapter := store.NewJobStoreAdapter(s)

	leaf := uuid.New()
	if err := s.Put(ctx, store.Document{UUID: leaf, Index: 1, Output: 42.0}, store.OutputsCollection); err != nil {
		t.Fatalf("Put: %v", err)
	}

	v, found, err := adapter.GetOutput(ctx, leaf, 0)
	if err != nil {
		t.Fatalf("GetOutput: %v", err)
	}
	if !found || v != 42.0 {
		t.Errorf("GetOutput = (%v, %v), want (42, true)", v, found)
	}
}

func TestCompositeStoreSplitsAndHydrates(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemoryStore()
	aux := store.NewMemoryStore()

	composite := store.NewCompositeStore(docs, map[string]store.Store{"aux_store": aux}).
		WithRoute("aux_store", "data")

	adapter := store.NewJobStoreAdapter(composite)
	id := uuid.New()

	output := map[string]any{"small": 1.0, "data": map[string]any{"big": "payload"}}
	if err := adapter.PutOutput(ctx, job.OutputDoc{UUID: id, Index: 1, Output: output}); err != nil {
		t.Fatalf("PutOutput: %v", err)
	}

	// The outputs collection holds a sentinel, not the raw payload.
	raw, found, err := docs.GetOne(ctx, store.Query{UUID: &id}, store.OutputsCollection)
	if err != nil || !found {
		t.Fatalf("GetOne on docs: found=%v err=%v", found, err)
	}
	m, ok := raw.Output.(map[string]any)
	if !ok {
		t.Fatalf("raw output = %T, want map[string]any", raw.Output)
	}
	dataField, ok := m["data"].(map[string]any)
	if !ok {
		t.Fatalf("data field = %T, want sentinel map", m["data"])
	}
	if dataField["@class"] != store.MontyDictClass {
		t.Errorf("data field @class = %v, want %v", dataField["@class"], store.MontyDictClass)
	}

	// A load=true GetOutput reconstructs the original dict.
	v, found, err := adapter.GetOutput(ctx, id, 0)
	if err != nil || !found {
		t.Fatalf("GetOutput: found=%v err=%v", found, err)
	}
	decoded, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("GetOutput = %T, want map[string]any", v)
	}
	dataValue, ok := decoded["data"].(map[string]any)
	if !ok || dataValue["big"] != "payload" {
		t.Errorf("decoded data = %v, want {big: payload}", decoded["data"])
	}
	if decoded["small"] != 1.0 {
		t.Errorf("decoded small = %v, want 1", decoded["small"])
	}
}
