package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/codec"
)

// BlobsCollection is the collection auxiliary stores keep split-out
// sub-trees in.
const BlobsCollection = "blobs"

// MontyDictClass is the @class identifier used on an auxiliary-store
// sentinel: {@class: MontyDict, blob_uuid, store}.
const MontyDictClass = "MontyDict"

// FieldRoute names one output sub-field that should be routed to an
// auxiliary store instead of being written inline.
type FieldRoute struct {
	// Path is the sequence of map keys leading to the sub-field, e.g.
	// []string{"data"} or []string{"result", "payload"}.
	Path []string
	// StoreName is the key into CompositeStore.Aux this field routes to.
	StoreName string
}

// CompositeStore is a Store wrapping one primary "docs" store plus a
// {field_path -> auxiliary store} mapping. On write it walks a document's
// Output subtree; for each configured Path it finds, it replaces the
// matched subtree with a {@class: MontyDict, blob_uuid, store} sentinel and
// writes the original subtree to the named auxiliary store. On read it
// reverses this, unless the query disables hydration.
type CompositeStore struct {
	Docs   Store
	Aux    map[string]Store
	Routes []FieldRoute
}

// NewCompositeStore builds a CompositeStore with no routes configured; add
// routes by appending to the returned value's Routes field or by using
// WithRoute.
func NewCompositeStore(docs Store, aux map[string]Store) *CompositeStore {
	if aux == nil {
		aux = map[string]Store{}
	}
	return &CompositeStore{Docs: docs, Aux: aux}
}

// WithRoute registers a field-routing rule and returns the receiver for
// chaining.
func (c *CompositeStore) WithRoute(storeName string, path ...string) *CompositeStore {
	c.Routes = append(c.Routes, FieldRoute{Path: path, StoreName: storeName})
	return c
}

func (c *CompositeStore) Connect(ctx context.Context) error {
	if err := c.Docs.Connect(ctx); err != nil {
		return err
	}
	for name, s := range c.Aux {
		if err := s.Connect(ctx); err != nil {
			return fmt.Errorf("store: connect auxiliary store %q: %w", name, err)
		}
	}
	return nil
}

func (c *CompositeStore) Close(ctx context.Context) error {
	if err := c.Docs.Close(ctx); err != nil {
		return err
	}
	for _, s := range c.Aux {
		_ = s.Close(ctx)
	}
	return nil
}

func (c *CompositeStore) EnsureIndex(ctx context.Context, field string, collection string) error {
	return c.Docs.EnsureIndex(ctx, field, collection)
}

// Put splits configured fields out of doc.Output into their auxiliary
// stores before delegating to Docs.Put.
func (c *CompositeStore) Put(ctx context.Context, doc Document, collection string) error {
	out := doc.Output
	for _, route := range c.Routes {
		subtree, ok := extractPath(out, route.Path)
		if !ok {
			continue
		}
		auxStore, ok := c.Aux[route.StoreName]
		if !ok {
			return fmt.Errorf("store: no auxiliary store named %q", route.StoreName)
		}
		blobID := uuid.New()
		blobDoc := Document{UUID: blobID, Index: 1, Output: subtree, CompletedAt: time.Now().UTC()}
		if err := auxStore.Put(ctx, blobDoc, BlobsCollection); err != nil {
			return fmt.Errorf("store: write auxiliary field %v: %w", route.Path, err)
		}
		sentinel := map[string]any{
			codec.ClassField: MontyDictClass,
			"blob_uuid":      blobID.String(),
			"store":          route.StoreName,
		}
		newOut, err := setPath(out, route.Path, sentinel)
		if err != nil {
			return fmt.Errorf("store: splice auxiliary sentinel at %v: %w", route.Path, err)
		}
		out = newOut
	}
	doc.Output = out
	return c.Docs.Put(ctx, doc, collection)
}

func (c *CompositeStore) GetOne(ctx context.Context, q Query, collection string) (Document, bool, error) {
	doc, found, err := c.Docs.GetOne(ctx, q, collection)
	if err != nil || !found {
		return doc, found, err
	}
	if !q.Load {
		return doc, true, nil
	}
	hydrated, err := c.hydrate(ctx, doc.Output)
	if err != nil {
		return Document{}, false, err
	}
	doc.Output = hydrated
	return doc, true, nil
}

func (c *CompositeStore) Query(ctx context.Context, q Query, sortField SortField, limit int, collection string) ([]Document, error) {
	docs, err := c.Docs.Query(ctx, q, sortField, limit, collection)
	if err != nil || !q.Load {
		return docs, err
	}
	for i := range docs {
		hydrated, err := c.hydrate(ctx, docs[i].Output)
		if err != nil {
			return nil, err
		}
		docs[i].Output = hydrated
	}
	return docs, nil
}

// hydrate walks v and replaces every MontyDict sentinel with the subtree it
// points to, fetched from the named auxiliary store.
func (c *CompositeStore) hydrate(ctx context.Context, v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if cls, ok := t[codec.ClassField].(string); ok && cls == MontyDictClass {
			storeName, _ := t["store"].(string)
			blobIDStr, _ := t["blob_uuid"].(string)
			blobID, err := uuid.Parse(blobIDStr)
			if err != nil {
				return nil, fmt.Errorf("store: invalid blob_uuid %q: %w", blobIDStr, err)
			}
			auxStore, ok := c.Aux[storeName]
			if !ok {
				return nil, fmt.Errorf("store: no auxiliary store named %q", storeName)
			}
			blobDoc, found, err := auxStore.GetOne(ctx, ForUUID(blobID), BlobsCollection)
			if err != nil {
				return nil, fmt.Errorf("store: hydrate blob %s: %w", blobID, err)
			}
			if !found {
				return nil, fmt.Errorf("store: blob %s not found in %q", blobID, storeName)
			}
			return c.hydrate(ctx, blobDoc.Output)
		}
		out := make(map[string]any, len(t))
		for k, v := range t {
			hv, err := c.hydrate(ctx, v)
			if err != nil {
				return nil, err
			}
			out[k] = hv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			hv, err := c.hydrate(ctx, v)
			if err != nil {
				return nil, err
			}
			out[i] = hv
		}
		return out, nil
	default:
		return v, nil
	}
}

func extractPath(v any, path []string) (any, bool) {
	cur := v
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath returns a copy of v with the value at path replaced by
// replacement, rebuilding only the maps along the path.
func setPath(v any, path []string, replacement any) (any, error) {
	if len(path) == 0 {
		return replacement, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("store: cannot descend into %T at %q", v, path[0])
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}
	child, err := setPath(out[path[0]], path[1:], replacement)
	if err != nil {
		return nil, err
	}
	out[path[0]] = child
	return out, nil
}
