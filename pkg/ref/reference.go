// Package ref implements Reference, the symbolic placeholder for a future
// (or already-produced) job output. References are immutable, acyclic
// tuples of (uuid, iteration, path); applying a selector always returns a
// new Reference and never triggers a lookup.
package ref

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/codec"
)

// Class is the @class identifier References are encoded under.
const Class = "OutputReference"

// OnMissing controls what Resolve does when the referenced output is absent
// from the store.
type OnMissing string

const (
	// OnMissingFail raises a ResolutionError.
	OnMissingFail OnMissing = "fail"
	// OnMissingPassThrough returns the Reference itself, unresolved.
	OnMissingPassThrough OnMissing = "pass_through"
	// OnMissingNone returns a nil sentinel.
	OnMissingNone OnMissing = "none"
)

// SelectorKind distinguishes an attribute selector from an index selector.
type SelectorKind int

const (
	// Attr selects a named field, trying a map key first, then a struct field.
	Attr SelectorKind = iota
	// Item selects by integer (ordered-sequence) or hashable-key (mapping) index.
	Item
)

// Selector is one step of a Reference's path.
type Selector struct {
	Kind SelectorKind
	// Name is used when Kind == Attr.
	Name string
	// Key is used when Kind == Item; it is an int (sequence index, negative
	// allowed) or a string (mapping key).
	Key any
}

func (s Selector) String() string {
	switch s.Kind {
	case Attr:
		return "." + s.Name
	default:
		return fmt.Sprintf("[%v]", s.Key)
	}
}

// Reference is a symbolic handle to the output of a specific (uuid,
// iteration), optionally narrowed by a selector path into that output.
type Reference struct {
	UUID      uuid.UUID
	Iteration int
	Path      []Selector
}

// New builds the canonical top-level Reference for a job's output.
func New(id uuid.UUID, iteration int) Reference {
	return Reference{UUID: id, Iteration: iteration}
}

// Attr returns a new Reference with an attribute selector appended.
// r.Attr("a") means "take field/key a from the stored document".
func (r Reference) Attr(name string) Reference {
	return r.extend(Selector{Kind: Attr, Name: name})
}

// Item returns a new Reference with an index/key selector appended.
// r.Item(0) means "take element 0 of the stored document".
func (r Reference) Item(key any) Reference {
	return r.extend(Selector{Kind: Item, Key: key})
}

func (r Reference) extend(s Selector) Reference {
	path := make([]Selector, len(r.Path)+1)
	copy(path, r.Path)
	path[len(path)-1] = s
	return Reference{UUID: r.UUID, Iteration: r.Iteration, Path: path}
}

// SetUUID returns a copy of r with its uuid replaced, leaving the receiver
// and its path untouched. The Manager's graft does not use it: it renames
// the leaf job itself via job.Job.WithIdentity.
func (r Reference) SetUUID(newUUID uuid.UUID) Reference {
	path := make([]Selector, len(r.Path))
	copy(path, r.Path)
	return Reference{UUID: newUUID, Iteration: r.Iteration, Path: path}
}

// Equal reports whether two References are identical in uuid, iteration and
// path.
func (r Reference) Equal(other Reference) bool {
	if r.UUID != other.UUID || r.Iteration != other.Iteration || len(r.Path) != len(other.Path) {
		return false
	}
	for i := range r.Path {
		a, b := r.Path[i], other.Path[i]
		if a.Kind != b.Kind || a.Name != b.Name {
			return false
		}
		if fmt.Sprint(a.Key) != fmt.Sprint(b.Key) {
			return false
		}
	}
	return true
}

func (r Reference) String() string {
	s := r.UUID.String()
	for _, sel := range r.Path {
		s += sel.String()
	}
	return s
}

// ResolutionError is returned by Resolve (under OnMissingFail) when the
// referenced (uuid, *) is absent from the store.
type ResolutionError struct {
	Ref Reference
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("ref: resolve %s: %v", e.Ref, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ErrMissing is wrapped by ResolutionError when the store genuinely has no
// matching document, as opposed to some other backend failure.
var ErrMissing = fmt.Errorf("no output found")

// OutputStore is the minimal contract Reference needs in order to resolve
// itself: fetch the latest output document for (uuid, index). index == 0
// means "the document with the greatest index for this uuid". Defined here,
// rather than imported from the store package, so pkg/ref has no dependency
// on pkg/store; any store implementation satisfies this structurally.
type OutputStore interface {
	GetOutput(ctx context.Context, id uuid.UUID, index int) (any, bool, error)
}

// CacheKey identifies one resolved uuid's latest output in a run-scoped
// cache. Resolution always targets the latest output for a uuid (see
// Resolve), so the key need not carry an iteration: every Reference to the
// same uuid, however it was constructed, converges on the same cached
// value once that uuid reaches a terminal completion.
type CacheKey struct {
	UUID uuid.UUID
}

// Cache memoises resolved outputs within a single Manager run. The zero
// value is not usable; use NewCache.
type Cache map[CacheKey]any

// NewCache returns an empty resolution cache.
func NewCache() Cache { return make(Cache) }

// Resolve looks up the latest output document for r.UUID — regardless of
// the iteration r was constructed under, so that a Reference captured
// before a replace or detour still observes the graft's leaf output once it
// completes — applies each selector in r.Path in order, and returns the
// result. cache may be nil, in which case no memoisation happens.
func (r Reference) Resolve(ctx context.Context, store OutputStore, onMissing OnMissing, cache Cache) (any, error) {
	key := CacheKey{UUID: r.UUID}

	base, cached := lookupCache(cache, key)
	if !cached {
		v, found, err := store.GetOutput(ctx, r.UUID, 0)
		if err != nil {
			return nil, &ResolutionError{Ref: r, Err: err}
		}
		if !found {
			switch onMissing {
			case OnMissingPassThrough:
				return r, nil
			case OnMissingNone:
				return nil, nil
			default:
				return nil, &ResolutionError{Ref: r, Err: ErrMissing}
			}
		}
		base = v
		if cache != nil {
			cache[key] = base
		}
	}
	return applyPath(base, r.Path)
}

func lookupCache(cache Cache, key CacheKey) (any, bool) {
	if cache == nil {
		return nil, false
	}
	v, ok := cache[key]
	return v, ok
}

func applyPath(v any, path []Selector) (any, error) {
	cur := v
	for _, sel := range path {
		next, err := applySelector(cur, sel)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func applySelector(v any, sel Selector) (any, error) {
	switch sel.Kind {
	case Attr:
		if m, ok := v.(map[string]any); ok {
			if val, ok := m[sel.Name]; ok {
				return val, nil
			}
			return nil, fmt.Errorf("ref: attribute %q not found", sel.Name)
		}
		if rv := reflect.Indirect(reflect.ValueOf(v)); rv.Kind() == reflect.Struct {
			if f := rv.FieldByName(sel.Name); f.IsValid() && f.CanInterface() {
				return f.Interface(), nil
			}
			return nil, fmt.Errorf("ref: field %q not found on %T", sel.Name, v)
		}
		return nil, fmt.Errorf("ref: cannot select attribute %q from %T", sel.Name, v)
	case Item:
		switch list := v.(type) {
		case []any:
			idx, ok := sel.Key.(int)
			if !ok {
				return nil, fmt.Errorf("ref: index %v is not an int", sel.Key)
			}
			if idx < 0 {
				idx += len(list)
			}
			if idx < 0 || idx >= len(list) {
				return nil, fmt.Errorf("ref: index %d out of range (len %d)", idx, len(list))
			}
			return list[idx], nil
		case map[string]any:
			key := fmt.Sprint(sel.Key)
			val, ok := list[key]
			if !ok {
				return nil, fmt.Errorf("ref: key %q not found", key)
			}
			return val, nil
		default:
			return nil, fmt.Errorf("ref: cannot index %T", v)
		}
	default:
		return nil, fmt.Errorf("ref: unknown selector kind %d", sel.Kind)
	}
}

// ClassName implements codec.Encodable.
func (r Reference) ClassName() string { return Class }

// ToDict implements codec.Encodable, matching the serialized form
// {@class: OutputReference, uuid, index, attributes: [...]}.
func (r Reference) ToDict() (map[string]any, error) {
	attrs := make([]any, len(r.Path))
	for i, sel := range r.Path {
		switch sel.Kind {
		case Attr:
			attrs[i] = map[string]any{"kind": "attr", "name": sel.Name}
		default:
			attrs[i] = map[string]any{"kind": "item", "key": sel.Key}
		}
	}
	return map[string]any{
		"uuid":       r.UUID.String(),
		"index":      r.Iteration,
		"attributes": attrs,
	}, nil
}

func init() {
	codec.RegisterDecoder(Class, func(fields map[string]any) (any, error) {
		idStr, _ := fields["uuid"].(string)
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("ref: decode uuid: %w", err)
		}
		idx := 0
		switch v := fields["index"].(type) {
		case int:
			idx = v
		case float64:
			idx = int(v)
		}
		var path []Selector
		if rawAttrs, ok := fields["attributes"].([]any); ok {
			path = make([]Selector, 0, len(rawAttrs))
			for _, raw := range rawAttrs {
				m, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				switch m["kind"] {
				case "attr":
					name, _ := m["name"].(string)
					path = append(path, Selector{Kind: Attr, Name: name})
				case "item":
					key := m["key"]
					if f, ok := key.(float64); ok && f == math.Trunc(f) {
						key = int(f)
					}
					path = append(path, Selector{Kind: Item, Key: key})
				}
			}
		}
		return Reference{UUID: id, Iteration: idx, Path: path}, nil
	})
}
