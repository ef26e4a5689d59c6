// Package telemetry traces program compiles and function calls with
// OpenTelemetry. Without an endpoint it is a no-op.
package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/lemonberrylabs/minic/pkg/types"
)

const tracerName = "github.com/lemonberrylabs/minic/pkg/telemetry"

// Span names.
const (
	SpanCompile = "minic.compile"
	SpanCall    = "minic.call"
)

var (
	programIDKey   = attribute.Key("minic.program.id")
	programNameKey = attribute.Key("minic.program.name")
	functionKey    = attribute.Key("minic.function")
	argsKey        = attribute.Key("minic.args")
	resultKey      = attribute.Key("minic.result")
	errorKindKey   = attribute.Key("minic.error.kind")
)

// Config configures the OTLP exporter.
type Config struct {
	Endpoint    string            `yaml:"endpoint"`
	Insecure    bool              `yaml:"insecure"`
	ServiceName string            `yaml:"service_name"`
	Version     string            `yaml:"-"`
	DialTimeout time.Duration     `yaml:"dial_timeout"`
	Headers     map[string]string `yaml:"headers"`
}

// Enabled reports whether an exporter endpoint is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// Tracer starts spans for minic operations.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span)
	Shutdown(ctx context.Context) error
}

// Span is one traced operation.
type Span interface {
	SetResult(v float64)
	End(err error)
}

// ProgramID tags a span with the program id.
func ProgramID(id string) attribute.KeyValue { return programIDKey.String(id) }

// ProgramName tags a span with the program name.
func ProgramName(name string) attribute.KeyValue { return programNameKey.String(name) }

// Function tags a span with the called function.
func Function(name string) attribute.KeyValue { return functionKey.String(name) }

// Args tags a span with the call arguments, e.g. "3, 4".
func Args(args []float64) attribute.KeyValue { return argsKey.String(types.FormatNumbers(args)) }

type providerOptions struct {
	exporter       sdktrace.SpanExporter
	spanProcessors []sdktrace.SpanProcessor
}

// Option configures New.
type Option func(*providerOptions)

// WithSpanProcessor adds a span processor, e.g. a tracetest.SpanRecorder.
func WithSpanProcessor(proc sdktrace.SpanProcessor) Option {
	return func(opts *providerOptions) {
		if proc != nil {
			opts.spanProcessors = append(opts.spanProcessors, proc)
		}
	}
}

// WithExporter replaces the OTLP exporter.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(opts *providerOptions) {
		if exp != nil {
			opts.exporter = exp
		}
	}
}

type manager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	shutdown sync.Once
}

// New returns a Tracer exporting to cfg.Endpoint, or a no-op Tracer when
// neither an endpoint nor an exporter or processor is configured.
func New(cfg Config, opts ...Option) (Tracer, error) {
	builder := providerOptions{}
	for _, opt := range opts {
		opt(&builder)
	}

	if !cfg.Enabled() && builder.exporter == nil && len(builder.spanProcessors) == 0 {
		return Noop(), nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(resourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, err
	}

	exporter := builder.exporter
	if exporter == nil && cfg.Enabled() {
		exporter, err = newExporter(cfg)
		if err != nil {
			return nil, err
		}
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if exporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	for _, proc := range builder.spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(proc))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	return &manager{tracer: tp.Tracer(tracerName), provider: tp}, nil
}

func (m *manager) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	ctx, span := m.tracer.Start(
		ctx,
		name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	return ctx, &opSpan{span: span}
}

func (m *manager) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	var shutdownErr error
	m.shutdown.Do(func() {
		shutdownErr = m.provider.Shutdown(ctx)
	})
	return shutdownErr
}

type opSpan struct {
	span trace.Span
}

func (s *opSpan) SetResult(v float64) {
	s.span.SetAttributes(resultKey.String(types.FormatNumber(v)))
}

func (s *opSpan) End(err error) {
	if err != nil {
		if kind, ok := types.KindOf(err); ok {
			s.span.SetAttributes(errorKindKey.String(string(kind)))
		}
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "OK")
	}
	s.span.End()
}

// Noop returns a Tracer that records nothing.
func Noop() Tracer {
	return noopTracer{}
}

type noopTracer struct{}

type noopSpan struct{}

func (noopTracer) Start(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (noopTracer) Shutdown(context.Context) error { return nil }

func (noopSpan) SetResult(float64) {}

func (noopSpan) End(error) {}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("telemetry endpoint is required")
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		clientOpts = append(clientOpts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	client := otlptracegrpc.NewClient(clientOpts...)
	return otlptrace.New(ctx, client)
}

func resourceAttributes(cfg Config) []attribute.KeyValue {
	name := cfg.ServiceName
	if strings.TrimSpace(name) == "" {
		name = "minic"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if strings.TrimSpace(cfg.Version) != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.Version))
	}
	return attrs
}
