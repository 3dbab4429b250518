package tracing

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName is used when the config does not name the service.
const DefaultServiceName = "influencer-gifting-api"

// Config holds tracing configuration.
type Config struct {
	Enabled     bool
	Endpoint    string // Jaeger collector, e.g. "http://localhost:14268/api/traces"
	ServiceName string
	Version     string
	Environment string
	// SampleRatio is the fraction of new traces recorded. Zero or above one
	// samples everything; remote parents are always honored.
	SampleRatio float64
}

// Tracer starts spans for the service. The zero provider means tracing is off.
type Tracer struct {
	tracer   trace.Tracer
	provider *tracesdk.TracerProvider
}

var (
	mu     sync.RWMutex
	global *Tracer
)

func noopTracer() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(DefaultServiceName)}
}

// InitTracing installs the process-wide tracer. With tracing disabled every
// span is a no-op.
func InitTracing(cfg Config) (*Tracer, error) {
	if !cfg.Enabled {
		t := noopTracer()
		setGlobal(t)
		return t, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(sampler(cfg.SampleRatio)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Tracer{tracer: tp.Tracer(cfg.ServiceName), provider: tp}
	setGlobal(t)
	return t, nil
}

func sampler(ratio float64) tracesdk.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return tracesdk.ParentBased(tracesdk.AlwaysSample())
	}
	return tracesdk.ParentBased(tracesdk.TraceIDRatioBased(ratio))
}

func setGlobal(t *Tracer) {
	mu.Lock()
	global = t
	mu.Unlock()
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// GetTracer returns the process-wide tracer, or a no-op tracer before
// InitTracing ran.
func GetTracer() *Tracer {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return noopTracer()
	}
	return global
}

// RecordError marks the span failed. A nil error is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Shutdown flushes pending spans of the installed provider.
func Shutdown(ctx context.Context) error {
	t := GetTracer()
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
