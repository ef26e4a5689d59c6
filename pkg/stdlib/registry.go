// Package stdlib implements the optional minic builtin functions.
package stdlib

import (
	"sort"

	"github.com/lemonberrylabs/minic/pkg/types"
)

// StdlibFunc is a builtin function signature.
type StdlibFunc func(args []float64) (float64, error)

// Registry holds builtin functions and serves as a runtime.FunctionRegistry.
type Registry struct {
	funcs map[string]StdlibFunc
}

// NewRegistry creates a registry with every builtin registered.
func NewRegistry() *Registry {
	r := &Registry{
		funcs: make(map[string]StdlibFunc),
	}
	r.registerMath()
	r.registerSys()
	return r
}

// HasFunction implements runtime.FunctionRegistry.
func (r *Registry) HasFunction(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// CallFunction implements runtime.FunctionRegistry.
func (r *Registry) CallFunction(name string, args []float64) (float64, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return 0, types.NewUndefinedFunction(name)
	}
	return fn(args)
}

// Register adds a function to the registry, replacing any existing one.
func (r *Registry) Register(name string, fn StdlibFunc) {
	r.funcs[name] = fn
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// requireArgs checks that exactly n args were supplied.
func requireArgs(name string, args []float64, n int) error {
	if len(args) != n {
		return types.NewArityMismatch(name, n, len(args))
	}
	return nil
}
