// Package runtime implements the minic tree-walking interpreter.
package runtime

import (
	"sort"

	"github.com/lemonberrylabs/minic/pkg/types"
)

// frame is one flat variable table: the globals, or the locals of a
// single active call.
type frame struct {
	vars map[string]float64
}

func newFrame() *frame {
	return &frame{vars: make(map[string]float64)}
}

func (f *frame) get(name string) (float64, bool) {
	v, ok := f.vars[name]
	return v, ok
}

// declare creates name (or resets it) with value v.
func (f *frame) declare(name string, v float64) {
	f.vars[name] = v
}

// set overwrites name if it already exists in this frame.
func (f *frame) set(name string, v float64) bool {
	if _, ok := f.vars[name]; !ok {
		return false
	}
	f.vars[name] = v
	return true
}

func (f *frame) names() []string {
	out := make([]string, 0, len(f.vars))
	for name := range f.vars {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// env is the two-tier lookup used during evaluation. locals is nil while
// top-level items run.
type env struct {
	globals *frame
	locals  *frame
}

// lookup resolves name local-then-global.
func (e env) lookup(name string) (float64, error) {
	if e.locals != nil {
		if v, ok := e.locals.get(name); ok {
			return v, nil
		}
	}
	if v, ok := e.globals.get(name); ok {
		return v, nil
	}
	return 0, types.NewUndeclaredVariable(name)
}

// assign stores v in the innermost frame that already holds name. At top
// level there is no local frame and a missing global is created.
func (e env) assign(name string, v float64) error {
	if e.locals == nil {
		e.globals.declare(name, v)
		return nil
	}
	if e.locals.set(name, v) || e.globals.set(name, v) {
		return nil
	}
	return types.NewUndeclaredVariable(name)
}

// declare adds a zero-initialized variable to the innermost frame.
func (e env) declare(name string) {
	if e.locals != nil {
		e.locals.declare(name, 0)
		return
	}
	e.globals.declare(name, 0)
}
