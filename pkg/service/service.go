// Package service compiles and runs stored minic programs. It is shared by
// the HTTP and gRPC servers.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/lemonberrylabs/minic/pkg/ast"
	"github.com/lemonberrylabs/minic/pkg/config"
	"github.com/lemonberrylabs/minic/pkg/lexer"
	"github.com/lemonberrylabs/minic/pkg/parser"
	"github.com/lemonberrylabs/minic/pkg/runtime"
	"github.com/lemonberrylabs/minic/pkg/stdlib"
	"github.com/lemonberrylabs/minic/pkg/store"
	"github.com/lemonberrylabs/minic/pkg/telemetry"
	"github.com/lemonberrylabs/minic/pkg/types"
)

// Error kinds for failures that are not interpreter runtime errors.
const (
	KindLexError         = "LexError"
	KindParseError       = "ParseError"
	KindDeadlineExceeded = "DeadlineExceeded"
	KindCancelled        = "Cancelled"
	KindInternal         = "InternalError"
)

// ErrInvalidName is returned for program names that are empty or contain
// characters other than letters, digits, '_' and '-'.
var ErrInvalidName = errors.New("invalid program name")

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]{0,127}$`)

// Service runs programs held in a store.
type Service struct {
	store  *store.Store
	cfg    config.InterpreterConfig
	tracer telemetry.Tracer
	host   runtime.FunctionRegistry

	mu     sync.Mutex
	parsed map[string]parsedProgram // by program id
}

type parsedProgram struct {
	revision int64
	prog     *ast.Program
}

// Option configures a Service.
type Option func(*Service)

// WithTracer traces compiles and calls.
func WithTracer(t telemetry.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New creates a service backed by st.
func New(st *store.Store, cfg config.InterpreterConfig, opts ...Option) *Service {
	s := &Service{
		store:  st,
		cfg:    cfg,
		tracer: telemetry.Noop(),
		parsed: make(map[string]parsedProgram),
	}
	if cfg.Stdlib {
		s.host = stdlib.NewRegistry()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() *store.Store {
	return s.store
}

// Compile parses source and stores it as a new program. Nothing is stored
// when parsing fails.
func (s *Service) Compile(ctx context.Context, name, source string) (prog *store.Program, err error) {
	_, span := s.tracer.Start(ctx, telemetry.SpanCompile, telemetry.ProgramName(name))
	defer func() { span.End(err) }()

	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w %q", ErrInvalidName, name)
	}
	tree, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	p, err := s.store.CreateProgram(name, source)
	if err != nil {
		return nil, err
	}
	s.cache(p, tree)
	return p, nil
}

// Update replaces a program's source after checking that it parses.
func (s *Service) Update(ctx context.Context, id, source string) (prog *store.Program, err error) {
	_, span := s.tracer.Start(ctx, telemetry.SpanCompile, telemetry.ProgramID(id))
	defer func() { span.End(err) }()

	tree, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	p, err := s.store.UpdateProgram(id, source)
	if err != nil {
		return nil, err
	}
	s.cache(p, tree)
	return p, nil
}

// Delete removes a program and its runs.
func (s *Service) Delete(id string) error {
	if err := s.store.DeleteProgram(id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.parsed, id)
	s.mu.Unlock()
	return nil
}

func (s *Service) cache(p *store.Program, tree *ast.Program) {
	s.mu.Lock()
	s.parsed[p.ID] = parsedProgram{revision: p.Revision, prog: tree}
	s.mu.Unlock()
}

// program returns the parsed tree of p, reusing the cached tree when the
// revision matches.
func (s *Service) program(p *store.Program) (*ast.Program, error) {
	s.mu.Lock()
	cached, ok := s.parsed[p.ID]
	s.mu.Unlock()
	if ok && cached.revision == p.Revision {
		return cached.prog, nil
	}

	tree, err := parser.Parse(p.Source)
	if err != nil {
		return nil, err
	}
	s.cache(p, tree)
	return tree, nil
}

// Call runs function in a fresh interpreter for the stored program and
// records the run. The returned run is non-nil whenever the program exists;
// err is the failure that ended the run, if any.
func (s *Service) Call(ctx context.Context, programID, function string, args []float64) (run *store.Run, err error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanCall,
		telemetry.ProgramID(programID), telemetry.Function(function), telemetry.Args(args))
	defer func() { span.End(err) }()

	p, err := s.store.GetProgram(programID)
	if err != nil {
		return nil, err
	}
	run, err = s.store.CreateRun(programID, function, args)
	if err != nil {
		return nil, err
	}

	tree, err := s.program(p)
	var res Result
	if err == nil {
		res, err = s.execute(ctx, tree, function, args)
	}
	if err != nil {
		failed, ferr := s.store.FailRun(run.ID, store.RunError{Kind: ErrorKind(err), Message: err.Error()}, res.Output)
		if ferr != nil {
			return run, fmt.Errorf("recording failed run: %w", ferr)
		}
		return failed, err
	}

	span.SetResult(res.Value)
	done, cerr := s.store.CompleteRun(run.ID, res.Value, res.Output)
	if cerr != nil {
		return run, fmt.Errorf("recording run: %w", cerr)
	}
	return done, nil
}

// Result is the outcome of running a program.
type Result struct {
	// Called reports whether a function was called; Value is only
	// meaningful when it was.
	Called bool
	Value  float64
	// Output holds every printed line, top-level prints first.
	Output []string
}

// Eval parses source and runs it without storing anything. An empty
// function only runs the top-level statements.
func (s *Service) Eval(ctx context.Context, source, function string, args []float64) (res Result, err error) {
	ctx, span := s.tracer.Start(ctx, telemetry.SpanCall, telemetry.Function(function), telemetry.Args(args))
	defer func() { span.End(err) }()

	tree, err := parser.Parse(source)
	if err != nil {
		return Result{}, err
	}
	res, err = s.execute(ctx, tree, function, args)
	if err == nil && res.Called {
		span.SetResult(res.Value)
	}
	return res, err
}

// execute builds an interpreter (running top-level statements) and calls
// function when it is not empty. Output printed before a failure is kept.
func (s *Service) execute(ctx context.Context, tree *ast.Program, function string, args []float64) (Result, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	var out bytes.Buffer
	opts := []runtime.Option{
		runtime.WithOutput(&out),
		runtime.WithMaxCallDepth(s.cfg.MaxCallDepth),
	}
	if s.host != nil {
		opts = append(opts, runtime.WithFunctions(s.host))
	}

	in, err := runtime.NewContext(ctx, tree, opts...)
	if err != nil {
		return Result{Output: splitLines(out.String())}, err
	}
	if function == "" {
		return Result{Output: splitLines(out.String())}, nil
	}

	v, err := in.CallContext(ctx, function, args)
	res := Result{Called: err == nil, Value: v, Output: splitLines(out.String())}
	return res, err
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

// ErrorKind classifies err for run records and API responses.
func ErrorKind(err error) string {
	if kind, ok := types.KindOf(err); ok {
		return string(kind)
	}
	var perr *parser.ParseError
	if errors.As(err, &perr) {
		return KindParseError
	}
	var lerr *lexer.Error
	if errors.As(err, &lerr) {
		return KindLexError
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}
	return KindInternal
}

// Position returns the source byte offset carried by a lex or parse error.
func Position(err error) (int, bool) {
	var perr *parser.ParseError
	if errors.As(err, &perr) {
		return perr.Pos, true
	}
	var lerr *lexer.Error
	if errors.As(err, &lerr) {
		return lerr.Pos, true
	}
	return 0, false
}

// IsSourceError reports whether err is a lex or parse failure.
func IsSourceError(err error) bool {
	switch ErrorKind(err) {
	case KindLexError, KindParseError:
		return true
	}
	return false
}

// LoadDir compiles every .mc file in dir. The file name without extension
// becomes the program name. Files that fail to load are logged and skipped.
func (s *Service) LoadDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading programs directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".mc" {
			continue
		}
		file := entry.Name()
		name := strings.TrimSuffix(file, ".mc")

		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			log.Printf("Warning: could not read %q: %v", file, err)
			continue
		}
		if _, err := s.Compile(ctx, name, string(data)); err != nil {
			log.Printf("Warning: could not load %q: %v", file, err)
			continue
		}
		loaded++
		log.Printf("Loaded program %q from %s", name, file)
	}

	log.Printf("Loaded %d program(s) from %s", loaded, dir)
	return loaded, nil
}
