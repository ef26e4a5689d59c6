// Package fixture runs YAML scenario files against the interpreter.
//
// A fixture holds one program and a list of calls. The calls share one
// interpreter, so globals assigned by one call are visible to the next.
package fixture

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/minic/pkg/parser"
	"github.com/lemonberrylabs/minic/pkg/runtime"
	"github.com/lemonberrylabs/minic/pkg/stdlib"
	"github.com/lemonberrylabs/minic/pkg/types"
)

// Fixture is one scenario file.
type Fixture struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Stdlib bool   `yaml:"stdlib"`

	// ParseError, when true, requires parsing to fail; no calls run.
	ParseError bool `yaml:"parse_error"`

	// SetupOutput lists the lines printed by top-level statements. Nil
	// means unchecked.
	SetupOutput []string `yaml:"setup_output"`

	// SetupError is the runtime error kind top-level statements must fail with.
	SetupError string `yaml:"setup_error"`

	Calls []Call `yaml:"calls"`
}

// Call is one function call and its expectations.
type Call struct {
	Function string    `yaml:"function"`
	Args     []float64 `yaml:"args"`

	Want   *float64 `yaml:"want"`
	Output []string `yaml:"output"` // nil means unchecked
	Error  string   `yaml:"error"`  // expected runtime error kind
}

// String renders the call as source, e.g. "add(3, 4)".
func (c Call) String() string {
	return c.Function + "(" + types.FormatNumbers(c.Args) + ")"
}

// Result reports how a fixture fared.
type Result struct {
	Name     string
	Passed   bool
	Failures []string
}

func (r *Result) failf(format string, args ...interface{}) {
	r.Passed = false
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// Load decodes the fixture at path. Unknown keys are rejected.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = path
	}
	return f, nil
}

// Decode decodes a fixture from YAML.
func Decode(data []byte) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	for _, kind := range append([]string{f.SetupError}, callErrors(f.Calls)...) {
		if kind == "" {
			continue
		}
		if _, ok := types.ParseKind(kind); !ok {
			return fmt.Errorf("unknown error kind %q", kind)
		}
	}
	for i, c := range f.Calls {
		if c.Function == "" {
			return fmt.Errorf("call %d: function is required", i+1)
		}
		if c.Want != nil && c.Error != "" {
			return fmt.Errorf("call %d: want and error are mutually exclusive", i+1)
		}
	}
	return nil
}

func callErrors(calls []Call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Error
	}
	return out
}

// Run executes f and checks every expectation. It stops at the first
// failure that leaves no interpreter to call.
func Run(f *Fixture) Result {
	res := Result{Name: f.Name, Passed: true}

	prog, err := parser.Parse(f.Source)
	if f.ParseError {
		if err == nil {
			res.failf("expected a parse error, program parsed")
		}
		return res
	}
	if err != nil {
		res.failf("parse: %v", err)
		return res
	}

	var out bytes.Buffer
	opts := []runtime.Option{runtime.WithOutput(&out)}
	if f.Stdlib {
		opts = append(opts, runtime.WithFunctions(stdlib.NewRegistry()))
	}

	in, err := runtime.New(prog, opts...)
	if f.SetupOutput != nil {
		if got := lines(&out); !equalLines(got, f.SetupOutput) {
			res.failf("setup output: got %q, want %q", got, f.SetupOutput)
		}
	}
	out.Reset()
	if !checkError(&res, "setup", err, f.SetupError) || err != nil {
		return res
	}

	for _, c := range f.Calls {
		v, err := in.Call(c.Function, c.Args)
		label := c.String()

		if c.Output != nil {
			if got := lines(&out); !equalLines(got, c.Output) {
				res.failf("%s: output: got %q, want %q", label, got, c.Output)
			}
		}
		out.Reset()

		if !checkError(&res, label, err, c.Error) || err != nil {
			continue
		}
		if c.Want != nil && !sameNumber(v, *c.Want) {
			res.failf("%s: got %s, want %s", label, types.FormatNumber(v), types.FormatNumber(*c.Want))
		}
	}
	return res
}

// checkError compares err against the expected kind and reports whether
// the expectation held.
func checkError(res *Result, label string, err error, want string) bool {
	switch {
	case want == "" && err != nil:
		res.failf("%s: unexpected error: %v", label, err)
		return false
	case want != "" && err == nil:
		res.failf("%s: expected %s, got no error", label, want)
		return false
	case want != "":
		if kind, _ := types.KindOf(err); string(kind) != want {
			res.failf("%s: expected %s, got %v", label, want, err)
			return false
		}
	}
	return true
}

func lines(buf *bytes.Buffer) []string {
	s := strings.TrimSuffix(buf.String(), "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sameNumber compares by formatted value so NaN matches NaN.
func sameNumber(a, b float64) bool {
	return types.FormatNumber(a) == types.FormatNumber(b)
}
