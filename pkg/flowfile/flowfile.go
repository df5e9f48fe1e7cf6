// Package flowfile builds a *flow.Flow from a declarative JSON description,
// so cmd/jobflow can drive the Manager from a file on disk instead of a Go
// program. Jobs name the registered function (pkg/registry) they run and may
// reference a sibling job's output by name; the function bodies themselves
// are always Go code, registered ahead of time — nothing here deserializes
// behavior, only wiring.
package flowfile

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/flow"
	"github.com/nuulab/jobflow/pkg/job"
	"github.com/nuulab/jobflow/pkg/ref"
	"github.com/nuulab/jobflow/pkg/registry"
)

// JobSpec describes one job in a flow file.
type JobSpec struct {
	Name     string         `json:"name"`
	Function string         `json:"function"`
	Args     []any          `json:"args,omitempty"`
	Kwargs   map[string]any `json:"kwargs,omitempty"`
}

// Spec is the top-level shape of a flow file.
type Spec struct {
	Name  string    `json:"name"`
	Order string    `json:"order,omitempty"`
	Jobs  []JobSpec `json:"jobs"`
	// Output, if set, names the job whose output becomes the Flow's output
	// expression.
	Output string `json:"output,omitempty"`
}

// Parse decodes raw JSON into a ready-to-run *flow.Flow. A {"$ref": "name"}
// object anywhere in a job's args/kwargs is replaced with a Reference to the
// named sibling job's output.
func Parse(raw []byte) (*flow.Flow, error) {
	var spec Spec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("flowfile: parse: %w", err)
	}
	return Build(spec)
}

// Build turns a decoded Spec into a *flow.Flow.
func Build(spec Spec) (*flow.Flow, error) {
	if len(spec.Jobs) == 0 {
		return nil, fmt.Errorf("flowfile: %q declares no jobs", spec.Name)
	}

	ids := make(map[string]uuid.UUID, len(spec.Jobs))
	for _, js := range spec.Jobs {
		if _, dup := ids[js.Name]; dup {
			return nil, fmt.Errorf("flowfile: duplicate job name %q", js.Name)
		}
		ids[js.Name] = uuid.New()
	}

	members := make([]flow.Member, 0, len(spec.Jobs))
	for _, js := range spec.Jobs {
		fn, ok := registry.Lookup(js.Function)
		if !ok {
			return nil, fmt.Errorf("flowfile: job %q: unknown function %q (known: %v)", js.Name, js.Function, registry.Names())
		}

		args, err := resolveRefs(js.Args, ids)
		if err != nil {
			return nil, fmt.Errorf("flowfile: job %q: %w", js.Name, err)
		}
		kwargs, err := resolveRefs(js.Kwargs, ids)
		if err != nil {
			return nil, fmt.Errorf("flowfile: job %q: %w", js.Name, err)
		}

		argSlice, _ := args.([]any)
		kwargMap, _ := kwargs.(map[string]any)

		j := job.New(js.Name, job.FuncToken{Name: js.Function}, fn, argSlice, job.WithKwargs(kwargMap)).WithIdentity(ids[js.Name], 1)
		members = append(members, j)
	}

	var output any
	if spec.Output != "" {
		id, ok := ids[spec.Output]
		if !ok {
			return nil, fmt.Errorf("flowfile: output names unknown job %q", spec.Output)
		}
		output = ref.New(id, 1)
	}

	order := flow.Auto
	if spec.Order == string(flow.Linear) {
		order = flow.Linear
	}

	return flow.New(spec.Name, members, output, order)
}

// resolveRefs walks v, replacing every {"$ref": "name"} object with a
// Reference to that name's job uuid.
func resolveRefs(v any, ids map[string]uuid.UUID) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if name, ok := t["$ref"].(string); ok && len(t) == 1 {
			id, ok := ids[name]
			if !ok {
				return nil, fmt.Errorf("$ref to unknown job %q", name)
			}
			return ref.New(id, 1), nil
		}
		out := make(map[string]any, len(t))
		for k, v := range t {
			rv, err := resolveRefs(v, ids)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			rv, err := resolveRefs(v, ids)
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
