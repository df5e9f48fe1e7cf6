package codec_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/codec"
	"github.com/nuulab/jobflow/pkg/ref"
)

func TestRoundTripPrimitives(t *testing.T) {
	cases := []any{
		nil,
		true,
		"hello",
		3.5,
		[]any{1.0, "two", nil},
		map[string]any{"a": 1.0, "b": []any{true, false}},
	}

	for _, v := range cases {
		got, err := codec.RoundTrip(v)
		if err != nil {
			t.Fatalf("RoundTrip(%v): %v", v, err)
		}
		if mapsOrSlicesDiffer(got, v) {
			t.Errorf("RoundTrip(%v) = %v", v, got)
		}
	}
}

func TestRoundTripTime(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	got, err := codec.RoundTrip(now)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	gotTime, ok := got.(time.Time)
	if !ok {
		t.Fatalf("RoundTrip returned %T, want time.Time", got)
	}
	if !gotTime.Equal(now) {
		t.Errorf("RoundTrip(%v) = %v", now, gotTime)
	}
}

func TestRoundTripReference(t *testing.T) {
	id := uuid.New()
	r := ref.New(id, 3).Attr("a").Item(2)

	got, err := codec.RoundTrip(r)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}

	decoded, ok := got.(ref.Reference)
	if !ok {
		t.Fatalf("RoundTrip returned %T, want ref.Reference", got)
	}
	if !decoded.Equal(r) {
		t.Errorf("RoundTrip(%v) = %v", r, decoded)
	}
}

func TestRoundTripNestedReference(t *testing.T) {
	id := uuid.New()
	r := ref.New(id, 1)

	got, err := codec.RoundTrip(map[string]any{"output": r, "small": 1.0})
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("RoundTrip returned %T, want map[string]any", got)
	}
	decoded, ok := m["output"].(ref.Reference)
	if !ok {
		t.Fatalf("m[\"output\"] = %T, want ref.Reference", m["output"])
	}
	if !decoded.Equal(r) {
		t.Errorf("decoded = %v, want %v", decoded, r)
	}
}

func mapsOrSlicesDiffer(a, b any) bool {
	switch bv := b.(type) {
	case []any:
		av, ok := a.([]any)
		if !ok || len(av) != len(bv) {
			return true
		}
		for i := range bv {
			if mapsOrSlicesDiffer(av[i], bv[i]) {
				return true
			}
		}
		return false
	case map[string]any:
		av, ok := a.(map[string]any)
		if !ok || len(av) != len(bv) {
			return true
		}
		for k, v := range bv {
			if mapsOrSlicesDiffer(av[k], v) {
				return true
			}
		}
		return false
	default:
		return a != b
	}
}
