// Package store implements JobStore: the document store the engine uses to
// persist job outputs and resolve References, plus a composite store that
// transparently routes configured output sub-fields to auxiliary stores.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/codec"
	"github.com/nuulab/jobflow/pkg/ref"
)

// OutputsCollection is the default collection name output documents are
// written to.
const OutputsCollection = "outputs"

// Document is the record persisted per (uuid, index): {uuid, index, output,
// completed_at, metadata, hosts, name, stored_data}.
type Document struct {
	UUID        uuid.UUID
	Index       int
	Output      any
	CompletedAt time.Time
	Metadata    map[string]any
	Hosts       []uuid.UUID
	Name        string
	StoredData  map[string]any
}

// Query selects documents. A nil UUID matches any document; Fields, when
// non-empty, additionally requires an exact match on each named top-level
// metadata key.
type Query struct {
	UUID   *uuid.UUID
	Fields map[string]any
	// Load controls whether auxiliary-store sentinels are hydrated. Only
	// consulted by CompositeStore; ignored by bare backends.
	Load bool
}

// ForUUID builds the common "find by uuid" query.
func ForUUID(id uuid.UUID) Query {
	return Query{UUID: &id, Load: true}
}

// SortField names the document field to sort by. Only Index is meaningful
// today, matching the spec's "(uuid, -index)" primary sort key.
type SortField string

// ByIndexDescending is the store's primary sort order.
const ByIndexDescending SortField = "-index"

// Store is the abstract document store contract the core consumes: put,
// get_one, query, ensure_index, connect/close.
type Store interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	Put(ctx context.Context, doc Document, collection string) error
	GetOne(ctx context.Context, q Query, collection string) (Document, bool, error)
	Query(ctx context.Context, q Query, sort SortField, limit int, collection string) ([]Document, error)
	EnsureIndex(ctx context.Context, field string, collection string) error
}

// latestQuery is the query GetOutput issues: "the document with the
// greatest index for this uuid".
func latestQuery(id uuid.UUID) Query {
	return Query{UUID: &id, Load: true}
}

// GetOutput resolves "the latest output" for id (or the exact iteration, if
// index > 0), and recurses: if the resolved output itself embeds References
// (aggregation jobs may return references to further outputs), those are
// resolved too. When cache is non-nil, a latest-output lookup (index == 0)
// is memoised under the uuid, as ref.CacheKey describes; exact-iteration
// lookups are not memoised.
func GetOutput(ctx context.Context, s Store, id uuid.UUID, index int, cache ref.Cache) (any, bool, error) {
	var doc Document
	var found bool
	var err error

	if index > 0 {
		doc, found, err = s.GetOne(ctx, Query{UUID: &id, Load: true}, OutputsCollection)
		if found && doc.Index != index {
			// Fall through: a store that doesn't support exact-index
			// lookups returned the latest; filter by listing instead.
			docs, qerr := s.Query(ctx, Query{UUID: &id, Load: true}, ByIndexDescending, 0, OutputsCollection)
			if qerr != nil {
				return nil, false, qerr
			}
			found = false
			for _, d := range docs {
				if d.Index == index {
					doc, found = d, true
					break
				}
			}
		}
	} else {
		doc, found, err = s.GetOne(ctx, latestQuery(id), OutputsCollection)
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get output %s: %w", id, err)
	}
	if !found {
		return nil, false, nil
	}

	decoded, err := codec.Decode(doc.Output)
	if err != nil {
		return nil, false, fmt.Errorf("store: decode output %s: %w", id, err)
	}

	resolved, err := resolveEmbeddedRefs(ctx, s, decoded, cache)
	if err != nil {
		return nil, false, err
	}
	if cache != nil && index == 0 {
		cache[ref.CacheKey{UUID: id}] = resolved
	}
	return resolved, true, nil
}

// resolveEmbeddedRefs walks a decoded output value and resolves any
// ref.Reference it finds, so aggregation jobs that return references to
// other outputs are transparently dereferenced. Resolution depth is finite
// because References form a DAG.
func resolveEmbeddedRefs(ctx context.Context, s Store, v any, cache ref.Cache) (any, error) {
	switch t := v.(type) {
	case ref.Reference:
		return t.Resolve(ctx, outputStoreAdapter{s}, ref.OnMissingFail, cache)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			rv, err := resolveEmbeddedRefs(ctx, s, v, cache)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			rv, err := resolveEmbeddedRefs(ctx, s, v, cache)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// outputStoreAdapter lets a Store satisfy ref.OutputStore without an import
// cycle (ref never imports store).
type outputStoreAdapter struct{ s Store }

func (a outputStoreAdapter) GetOutput(ctx context.Context, id uuid.UUID, index int) (any, bool, error) {
	return GetOutput(ctx, a.s, id, index, nil)
}

// PutOutput adapts a job.OutputDoc-shaped write into a Document and Put,
// running it through the codec so stored values are the plain JSON-shaped
// encoding. It is exported as a package-level helper (rather than a method)
// so callers in pkg/job can use it via the small job.Store interface without
// pkg/job depending on this package's concrete types.
func PutOutput(ctx context.Context, s Store, doc Document) error {
	encoded, err := codec.Encode(doc.Output)
	if err != nil {
		return fmt.Errorf("store: encode output: %w", err)
	}
	doc.Output = encoded
	doc.CompletedAt = time.Now().UTC()
	return s.Put(ctx, doc, OutputsCollection)
}
