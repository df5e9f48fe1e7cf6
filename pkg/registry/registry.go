// Package registry maps a job.FuncToken name to a live job.Function, the way
// the codec package maps a serialized @class to a decoder. It exists so a
// flow can be described declaratively (by a file naming jobs and the
// function each should run) and then rebuilt into real job.Job values by a
// driver such as cmd/jobflow, without the core itself knowing anything about
// files or names.
package registry

import (
	"fmt"
	"sync"

	"github.com/nuulab/jobflow/pkg/job"
)

var (
	mu        sync.RWMutex
	functions = map[string]job.Function{}
)

// Register associates name with fn. Call from an init() in the package that
// defines fn, mirroring pkg/codec.RegisterDecoder's registration discipline.
func Register(name string, fn job.Function) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := functions[name]; exists {
		panic(fmt.Sprintf("registry: function %q already registered", name))
	}
	functions[name] = fn
}

// Lookup returns the function registered under name.
func Lookup(name string) (job.Function, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := functions[name]
	return fn, ok
}

// Names returns every registered function name, for CLI help output.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	return names
}
