// Package job implements Job, a deferred call to a function whose captured
// arguments may embed References to other jobs' future outputs.
package job

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nuulab/jobflow/pkg/ref"
	"github.com/nuulab/jobflow/pkg/response"
)

// OnMissing controls how Run treats a Reference whose target is absent from
// the store at resolution time.
type OnMissing = ref.OnMissing

// Re-export the ref.OnMissing* constants under the job package so callers
// configuring a Job don't need to import pkg/ref for the common case.
const (
	OnMissingFail        = ref.OnMissingFail
	OnMissingPassThrough = ref.OnMissingPassThrough
	OnMissingNone        = ref.OnMissingNone
)

// Config is the tagged record of optional directives the Manager honours
// for a given Job.
type Config struct {
	// ResolveReferences toggles whether References in Args/Kwargs are
	// resolved before Function is invoked. Default true.
	ResolveReferences bool
	// OnMissingReferences governs resolution failure policy.
	OnMissingReferences OnMissing
	// ManagerConfig is opaque configuration forwarded to external
	// executors; the core does not interpret it.
	ManagerConfig map[string]any
	// ExposeStoreInFunction injects the JobStore into Kwargs under
	// StoreKwarg before invocation.
	ExposeStoreInFunction bool
}

// StoreKwarg is the reserved kwargs key under which the JobStore is
// injected when Config.ExposeStoreInFunction is set.
const StoreKwarg = "__store__"

// DefaultConfig returns the Manager's default directives: resolve
// references and fail hard if one is missing.
func DefaultConfig() Config {
	return Config{
		ResolveReferences:   true,
		OnMissingReferences: OnMissingFail,
	}
}

// FuncToken is a function's serializable identity: package path plus
// qualified name. Anonymous closures cannot be re-located after
// serialization and so cannot back a Job.
type FuncToken struct {
	Package string
	Name    string
}

func (t FuncToken) String() string {
	if t.Package == "" {
		return t.Name
	}
	return t.Package + "." + t.Name
}

// Function is the shape every job body must have: it receives the
// (already-resolved) positional and keyword arguments and returns either a
// bare value, a response.Response, or an error.
type Function func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// OutputSchema is a declarative, JSON-schema-shaped description of a job's
// return type. It is optional and purely informational to the core; nothing
// here validates a job's actual return value against it.
type OutputSchema struct {
	Type       string                  `json:"type"`
	Properties map[string]OutputSchema `json:"properties,omitempty"`
	Items      *OutputSchema           `json:"items,omitempty"`
}

// Job is a deferred call: identity, a function token plus the live function
// it resolves to, captured arguments (which may embed References to any
// depth), configuration, and metadata.
type Job struct {
	uuid      uuid.UUID
	iteration int
	name      string
	token     FuncToken
	fn        Function
	args      []any
	kwargs    map[string]any
	schema    *OutputSchema
	config    Config
	metadata  map[string]any
	hosts     []uuid.UUID
}

// Option configures a Job at construction time.
type Option func(*Job)

// WithKwargs sets the job's keyword arguments.
func WithKwargs(kwargs map[string]any) Option {
	return func(j *Job) { j.kwargs = kwargs }
}

// WithConfig overrides the default Config.
func WithConfig(cfg Config) Option {
	return func(j *Job) { j.config = cfg }
}

// WithMetadata attaches arbitrary metadata to the job.
func WithMetadata(metadata map[string]any) Option {
	return func(j *Job) { j.metadata = metadata }
}

// WithOutputSchema attaches a declarative description of the job's return
// shape.
func WithOutputSchema(schema OutputSchema) Option {
	return func(j *Job) { j.schema = &schema }
}

// New constructs a Job wrapping a deferred call to fn, identified for
// serialization purposes by token. args/kwargs are stored verbatim and may
// contain References to any depth. Construction never invokes fn.
func New(name string, token FuncToken, fn Function, args []any, opts ...Option) *Job {
	j := &Job{
		uuid:      uuid.New(),
		iteration: 1,
		name:      name,
		token:     token,
		fn:        fn,
		args:      args,
		kwargs:    map[string]any{},
		config:    DefaultConfig(),
		metadata:  map[string]any{},
		hosts:     nil,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Job) isJobflowNode() {}

// UUID returns the job's identity, stable across the job's lifetime even
// through replacement (only Iteration changes).
func (j *Job) UUID() uuid.UUID { return j.uuid }

// Iteration returns the job's current iteration, starting at 1 and
// incrementing each time the job is replaced.
func (j *Job) Iteration() int { return j.iteration }

// Name returns the job's declared name.
func (j *Job) Name() string { return j.name }

// Token returns the job's serializable function identity.
func (j *Job) Token() FuncToken { return j.token }

// Config returns the job's configuration record.
func (j *Job) Config() Config { return j.config }

// Metadata returns the job's metadata map.
func (j *Job) Metadata() map[string]any { return j.metadata }

// Schema returns the job's declared output shape, or nil if none was
// attached via WithOutputSchema.
func (j *Job) Schema() *OutputSchema { return j.schema }

// Hosts returns the ordered list of enclosing Flow uuids, outermost last.
func (j *Job) Hosts() []uuid.UUID { return j.hosts }

// AddHost appends a Flow uuid to this job's hosts list. Used by Flow
// construction to stamp every transitively-nested member with each
// enclosing Flow's identity.
func (j *Job) AddHost(flowUUID uuid.UUID) {
	j.hosts = append(j.hosts, flowUUID)
}

// Output returns the canonical Reference for the job's top-level result.
// Deeper References are obtained via Reference operations, e.g.
// job.Output().Attr("x").
func (j *Job) Output() ref.Reference {
	return ref.New(j.uuid, j.iteration)
}

// References walks Args/Kwargs and returns every embedded Reference,
// used by Flow to compute the dependency graph.
func (j *Job) References() []ref.Reference {
	var out []ref.Reference
	for _, a := range j.args {
		collectRefs(a, &out)
	}
	collectRefs(j.kwargs, &out)
	return out
}

func collectRefs(v any, out *[]ref.Reference) {
	switch t := v.(type) {
	case ref.Reference:
		*out = append(*out, t)
	case map[string]any:
		for _, v := range t {
			collectRefs(v, out)
		}
	case []any:
		for _, v := range t {
			collectRefs(v, out)
		}
	}
}

// UpdateKwargs deep-updates the job's kwargs. When dictMod is true, maps are
// merged key-by-key recursively; otherwise update fully replaces the prior
// value at each key it names. It takes no name or function filter: the
// update is always applied to j.
func (j *Job) UpdateKwargs(update map[string]any, dictMod bool) {
	if j.kwargs == nil {
		j.kwargs = map[string]any{}
	}
	if !dictMod {
		for k, v := range update {
			j.kwargs[k] = v
		}
		return
	}
	j.kwargs = mergeDeep(j.kwargs, update)
}

func mergeDeep(base, update map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(update))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range update {
		if existing, ok := out[k].(map[string]any); ok {
			if incoming, ok := v.(map[string]any); ok {
				out[k] = mergeDeep(existing, incoming)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// Store is the minimal contract Run needs from a JobStore: resolving
// References in inputs and persisting the job's output document.
type Store interface {
	ref.OutputStore
	PutOutput(ctx context.Context, doc OutputDoc) error
}

// OutputDoc is the document Run writes to the store on completion.
type OutputDoc struct {
	UUID       uuid.UUID
	Index      int
	Output     any
	Metadata   map[string]any
	Hosts      []uuid.UUID
	Name       string
	StoredData map[string]any
}

// ResolutionFailedError distinguishes a failure while resolving a Job's
// inputs from a failure raised by the job's own function.
type ResolutionFailedError struct {
	Err error
}

func (e *ResolutionFailedError) Error() string { return fmt.Sprintf("job: resolve inputs: %v", e.Err) }
func (e *ResolutionFailedError) Unwrap() error  { return e.Err }

// ExecutionFailedError wraps an error raised by the job's function.
type ExecutionFailedError struct {
	UUID  uuid.UUID
	Index int
	Err   error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("job: %s@%d: %v", e.UUID, e.Index, e.Err)
}
func (e *ExecutionFailedError) Unwrap() error { return e.Err }

// Run resolves References in Args/Kwargs, invokes Function, normalises the
// result to a Response, persists the output document, and returns the
// Response.
func (j *Job) Run(ctx context.Context, store Store, cache ref.Cache) (response.Response, error) {
	args := j.args
	kwargs := j.kwargs

	if j.config.ResolveReferences {
		resolvedArgs := make([]any, len(j.args))
		for i, a := range j.args {
			rv, err := resolveValue(ctx, a, store, j.config.OnMissingReferences, cache)
			if err != nil {
				return response.Response{}, &ResolutionFailedError{Err: err}
			}
			resolvedArgs[i] = rv
		}
		args = resolvedArgs

		resolvedKwargs := make(map[string]any, len(j.kwargs))
		for k, v := range j.kwargs {
			rv, err := resolveValue(ctx, v, store, j.config.OnMissingReferences, cache)
			if err != nil {
				return response.Response{}, &ResolutionFailedError{Err: err}
			}
			resolvedKwargs[k] = rv
		}
		kwargs = resolvedKwargs
	}

	if j.config.ExposeStoreInFunction {
		if kwargs == nil {
			kwargs = map[string]any{}
		}
		kwargs[StoreKwarg] = store
	}

	result, err := j.fn(ctx, args, kwargs)
	if err != nil {
		return response.Response{}, &ExecutionFailedError{UUID: j.uuid, Index: j.iteration, Err: err}
	}

	resp := normalize(result)

	doc := OutputDoc{
		UUID:       j.uuid,
		Index:      j.iteration,
		Output:     resp.Output,
		Metadata:   j.metadata,
		Hosts:      j.hosts,
		Name:       j.name,
		StoredData: resp.StoredData,
	}
	if err := store.PutOutput(ctx, doc); err != nil {
		return response.Response{}, fmt.Errorf("job: put output: %w", err)
	}

	return resp, nil
}

func normalize(v any) response.Response {
	if resp, ok := v.(response.Response); ok {
		return resp
	}
	if resp, ok := v.(*response.Response); ok && resp != nil {
		return *resp
	}
	return response.Of(v)
}

func resolveValue(ctx context.Context, v any, store Store, onMissing OnMissing, cache ref.Cache) (any, error) {
	switch t := v.(type) {
	case ref.Reference:
		return t.Resolve(ctx, store, onMissing, cache)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			rv, err := resolveValue(ctx, v, store, onMissing, cache)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			rv, err := resolveValue(ctx, v, store, onMissing, cache)
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

// WithIdentity returns a shallow clone of j with a new uuid/iteration. It is
// used by the Manager to rewire a replacement or detour's leaf job so it
// takes over the identity of the job it is grafted under.
func (j *Job) WithIdentity(newUUID uuid.UUID, newIteration int) *Job {
	clone := *j
	clone.uuid = newUUID
	clone.iteration = newIteration
	return &clone
}

// Retry returns a copy of j configured to be resubmitted as a Response's
// Replace directive with its iteration incremented — the pattern the spec
// names for opt-in retry: `Response{Replace: j.Retry()}`.
func (j *Job) Retry() *Job {
	return j.WithIdentity(j.uuid, j.iteration+1)
}
