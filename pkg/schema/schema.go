// Package schema infers a job.OutputSchema from a Go type via reflection, so
// a Job's declared return shape can be attached with job.WithOutputSchema
// without hand-writing the description.
package schema

import (
	"reflect"

	"github.com/nuulab/jobflow/pkg/job"
)

// Infer builds a job.OutputSchema describing T by walking its fields with
// reflection. It is purely informational, matching job.OutputSchema's
// contract: nothing validates a job's actual return value against it.
func Infer[T any]() job.OutputSchema {
	var zero T
	return describe(reflect.TypeOf(zero))
}

func describe(t reflect.Type) job.OutputSchema {
	if t == nil {
		return job.OutputSchema{Type: "null"}
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		props := make(map[string]job.OutputSchema, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			name := field.Tag.Get("json")
			if name == "" || name == "-" {
				name = field.Name
			}
			props[name] = describe(field.Type)
		}
		return job.OutputSchema{Type: "object", Properties: props}
	case reflect.Slice, reflect.Array:
		items := describe(t.Elem())
		return job.OutputSchema{Type: "array", Items: &items}
	case reflect.Map:
		return job.OutputSchema{Type: "object"}
	case reflect.String:
		return job.OutputSchema{Type: "string"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return job.OutputSchema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return job.OutputSchema{Type: "number"}
	case reflect.Bool:
		return job.OutputSchema{Type: "boolean"}
	default:
		return job.OutputSchema{Type: "string"}
	}
}
