// Package tracing exports sweep and search spans over OTLP and propagates
// W3C trace context to the search endpoint.
package tracing

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/torosent/vecsweep/internal/config"
)

const instrumentationName = "vecsweep"

// Sweep identifies the run every exported span belongs to.
type Sweep struct {
	RunID      string
	Target     string
	Collection string
}

func (s Sweep) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if s.RunID != "" {
		attrs = append(attrs, attribute.String("vecsweep.run_id", s.RunID))
	}
	if s.Target != "" {
		attrs = append(attrs, attribute.String("vecsweep.target", s.Target))
	}
	if s.Collection != "" {
		attrs = append(attrs, attribute.String("vecsweep.collection", s.Collection))
	}
	return attrs
}

// Provider hands out the sweep tracer. A nil or zero Provider is disabled.
type Provider struct {
	tp        *sdktrace.TracerProvider
	tracer    trace.Tracer
	propagate bool
}

// NewProvider wraps an SDK tracer provider, for callers that bring their own
// exporter.
func NewProvider(tp *sdktrace.TracerProvider, propagate bool) *Provider {
	return &Provider{
		tp:        tp,
		tracer:    tp.Tracer(instrumentationName),
		propagate: propagate,
	}
}

// Init sets up OTLP export for one sweep and installs it as the global
// provider. Without an endpoint it returns a disabled Provider.
func Init(ctx context.Context, cfg config.TracingConfig, sweep Sweep) (*Provider, error) {
	if !cfg.Enabled() {
		return &Provider{}, nil
	}

	sampler, err := newSampler(cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	res, err := NewResource(ctx, cfg.ServiceName, sweep)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return NewProvider(tp, cfg.ShouldPropagate()), nil
}

// NewResource describes the sweep process. The service name falls back to
// OTEL_SERVICE_NAME and then to "vecsweep"; OTEL_RESOURCE_ATTRIBUTES is
// honoured but cannot override the sweep attributes.
func NewResource(ctx context.Context, serviceName string, sweep Sweep) (*resource.Resource, error) {
	attrs := sweep.attributes()
	if serviceName != "" {
		attrs = append(attrs, semconv.ServiceName(serviceName))
	}
	return resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(instrumentationName)),
		resource.WithFromEnv(),
		resource.WithAttributes(attrs...),
	)
}

// newSampler keeps the caller's sampling decision and otherwise samples
// rate of new traces.
func newSampler(rate float64) (sdktrace.Sampler, error) {
	var root sdktrace.Sampler
	switch {
	case rate < 0 || rate > 1:
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", rate)
	case rate == 0:
		root = sdktrace.NeverSample()
	case rate == 1:
		root = sdktrace.AlwaysSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root), nil
}

func newExporter(ctx context.Context, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	switch protocol := strings.ToLower(cfg.Protocol); protocol {
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
	}
}

// Tracer returns the sweep tracer, or a no-op tracer when disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

// ShouldPropagate reports whether search requests carry traceparent headers.
func (p *Provider) ShouldPropagate() bool {
	return p != nil && p.propagate
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
