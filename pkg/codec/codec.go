// Package codec provides the canonical, JSON-like encoding used for every
// value a job writes to or reads from a JobStore. It extends plain JSON with
// date/time values and a registry of self-describing classes, so that
// function arguments and outputs round-trip through the store.
package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ClassField is the reserved key that carries a registered class identifier
// on every encoded self-describing object.
const ClassField = "@class"

// timeClass is the built-in class identifier used to encode time.Time.
const timeClass = "time.Time"

// Encodable is implemented by values that know how to turn themselves into a
// plain map for storage. ClassName must be stable across versions of the
// program and match the name passed to RegisterDecoder.
type Encodable interface {
	ClassName() string
	ToDict() (map[string]any, error)
}

// Decoder reconstructs a value of a registered class from its encoded dict.
// The dict does not include the @class field.
type Decoder func(fields map[string]any) (any, error)

var decoders = map[string]Decoder{}

// RegisterDecoder registers the decode half of a self-describing class.
// Registration is compile-time: callers register from an init() function,
// matching the static registry style used throughout this module.
func RegisterDecoder(class string, d Decoder) {
	decoders[class] = d
}

// Encode converts v into a JSON-compatible value (nil, bool, float64/int,
// string, []any, map[string]any) suitable for json.Marshal, expanding any
// Encodable and time.Time values it finds along the way.
func Encode(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return map[string]any{
			ClassField: timeClass,
			"value":    t.UTC().Format(time.RFC3339Nano),
		}, nil
	case Encodable:
		dict, err := t.ToDict()
		if err != nil {
			return nil, fmt.Errorf("codec: encode %s: %w", t.ClassName(), err)
		}
		out := make(map[string]any, len(dict)+1)
		for k, v := range dict {
			ev, err := Encode(v)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		out[ClassField] = t.ClassName()
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			ev, err := Encode(v)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			ev, err := Encode(v)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	default:
		return v, nil
	}
}

// Decode inverts Encode: it walks a JSON-shaped value and, whenever it finds
// a map carrying a registered @class, reconstructs the original value via
// that class's Decoder. Maps with an unregistered or absent @class, and
// plain slices, are walked recursively but left as maps/slices.
func Decode(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if cls, ok := t[ClassField].(string); ok {
			fields := make(map[string]any, len(t))
			for k, fv := range t {
				if k == ClassField {
					continue
				}
				dv, err := Decode(fv)
				if err != nil {
					return nil, err
				}
				fields[k] = dv
			}
			if cls == timeClass {
				return decodeTime(fields)
			}
			if dec, ok := decoders[cls]; ok {
				return dec(fields)
			}
			fields[ClassField] = cls
			return fields, nil
		}
		out := make(map[string]any, len(t))
		for k, fv := range t {
			dv, err := Decode(fv)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, fv := range t {
			dv, err := Decode(fv)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	default:
		return v, nil
	}
}

func decodeTime(fields map[string]any) (any, error) {
	s, _ := fields["value"].(string)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("codec: decode time.Time: %w", err)
	}
	return t, nil
}

// RoundTrip encodes v, marshals to JSON, then immediately unmarshals and
// decodes it back, exercising the same path a put-then-get through a
// byte-oriented backend (e.g. Redis) would take. The stores themselves do
// not call it.
func RoundTrip(v any) (any, error) {
	encoded, err := Encode(v)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("codec: unmarshal: %w", err)
	}
	return Decode(generic)
}

// SortedClassNames returns the registered class names in sorted order. It is
// not on the encode/decode path.
func SortedClassNames() []string {
	names := make([]string, 0, len(decoders))
	for name := range decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
