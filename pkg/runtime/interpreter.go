package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/lemonberrylabs/minic/pkg/ast"
	"github.com/lemonberrylabs/minic/pkg/types"
)

// DefaultMaxCallDepth is the default limit on nested function calls.
const DefaultMaxCallDepth = 1000

// FunctionRegistry provides host functions that programs may call when
// they do not define a function of the same name.
type FunctionRegistry interface {
	// HasFunction reports whether a host function is registered as name.
	HasFunction(name string) bool
	// CallFunction calls a named host function with the given arguments.
	CallFunction(name string, args []float64) (float64, error)
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithOutput sets where print statements write. The default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(in *Interpreter) { in.out = w }
}

// WithMaxCallDepth sets the nested call limit. Values below 1 keep the default.
func WithMaxCallDepth(n int) Option {
	return func(in *Interpreter) {
		if n > 0 {
			in.maxDepth = n
		}
	}
}

// WithFunctions makes host functions available to the program.
func WithFunctions(r FunctionRegistry) Option {
	return func(in *Interpreter) { in.host = r }
}

// Interpreter evaluates a parsed minic program. It owns the global
// variable table and the function table for its lifetime.
//
// An Interpreter is not safe for concurrent use.
type Interpreter struct {
	funcs   map[string]*ast.FuncDecl
	globals *frame
	host    FunctionRegistry
	out     io.Writer

	maxDepth int
	depth    int
}

// New builds an interpreter for prog, running its top-level items in
// source order: functions are registered (the last definition of a name
// wins), declarations create zeroed globals, and assignments, prints and
// expression statements are evaluated against the globals defined so far.
func New(prog *ast.Program, opts ...Option) (*Interpreter, error) {
	return NewContext(context.Background(), prog, opts...)
}

// NewContext is New with a context checked on every function call made by
// top-level statements.
func NewContext(ctx context.Context, prog *ast.Program, opts ...Option) (*Interpreter, error) {
	in := &Interpreter{
		funcs:    make(map[string]*ast.FuncDecl),
		globals:  newFrame(),
		out:      os.Stdout,
		maxDepth: DefaultMaxCallDepth,
	}
	for _, opt := range opts {
		opt(in)
	}

	top := env{globals: in.globals}
	for _, item := range prog.Items {
		if err := in.execTopLevel(ctx, item, top); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (in *Interpreter) execTopLevel(ctx context.Context, item ast.TopLevel, top env) error {
	switch n := item.(type) {
	case *ast.FuncDecl:
		in.funcs[n.Name] = n
		return nil
	case *ast.VarDecl:
		top.declare(n.Name)
		return nil
	case *ast.Assign:
		return in.execAssign(ctx, n, top)
	case *ast.Print:
		return in.execPrint(ctx, n, top)
	case *ast.ExprStmt:
		_, err := in.eval(ctx, n.X, top)
		return err
	case *ast.Return:
		return types.NewInvalidReturn()
	default:
		return fmt.Errorf("internal error: unknown top-level item %T", item)
	}
}

// Call invokes a function with positional arguments and returns its result.
func (in *Interpreter) Call(name string, args []float64) (float64, error) {
	return in.CallContext(context.Background(), name, args)
}

// CallContext is Call with cancellation. ctx is checked on entry to every
// nested call.
func (in *Interpreter) CallContext(ctx context.Context, name string, args []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fn, ok := in.funcs[name]
	if !ok {
		if in.host != nil && in.host.HasFunction(name) {
			return in.host.CallFunction(name, args)
		}
		return 0, types.NewUndefinedFunction(name)
	}
	if len(args) != len(fn.Params) {
		return 0, types.NewArityMismatch(name, len(fn.Params), len(args))
	}

	in.depth++
	defer func() { in.depth-- }()
	if in.depth > in.maxDepth {
		return 0, types.NewResourceExhausted(name, in.maxDepth)
	}

	locals := newFrame()
	for i, p := range fn.Params {
		locals.declare(p.Name, args[i])
	}

	res, err := in.execBlock(ctx, fn.Body, env{globals: in.globals, locals: locals})
	if err != nil {
		return 0, err
	}
	if res.flow == flowReturn {
		return res.value, nil
	}
	return 0, nil
}

// Global returns the value of a global variable.
func (in *Interpreter) Global(name string) (float64, bool) {
	return in.globals.get(name)
}

// Globals returns a copy of the global variable table.
func (in *Interpreter) Globals() map[string]float64 {
	out := make(map[string]float64, len(in.globals.vars))
	for _, name := range in.globals.names() {
		out[name] = in.globals.vars[name]
	}
	return out
}

// Function returns the declaration currently registered as name.
func (in *Interpreter) Function(name string) (*ast.FuncDecl, bool) {
	fn, ok := in.funcs[name]
	return fn, ok
}

// Functions returns the names of the program's functions, sorted.
func (in *Interpreter) Functions() []string {
	out := make([]string, 0, len(in.funcs))
	for name := range in.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
