// Package telemetry wires core.Telemetry to OpenTelemetry: a
// stdout-exported tracer for span emission. A single-host process has
// no collector to ship OTLP to, so spans batch to stdout instead.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/localfirst/agentcore/core"
)

func newResource(serviceName string) *resource.Resource {
	return resource.NewWithAttributes(
		"https://opentelemetry.io/schemas/1.26.0",
		attribute.String("service.name", serviceName),
		attribute.String("service.version", "0.1.0"),
	)
}

// Provider implements core.Telemetry with an OpenTelemetry tracer
// batched to an stdout exporter, plus metric recording delegated to a
// MetricSink (the metrics package's Prometheus-backed implementation).
type Provider struct {
	tracer   trace.Tracer
	tp       *sdktrace.TracerProvider
	onMetric MetricSink
}

// MetricSink receives every RecordMetric call; the cmd/agentcore
// wiring passes metrics.Registry.Record so traces and metrics share
// one core.Telemetry implementation without this package depending on
// prometheus directly.
type MetricSink func(name string, value float64, labels map[string]string)

// New builds a Provider. serviceName tags every span's resource
// attributes. A nil sink makes RecordMetric a no-op.
func New(serviceName string, sink MetricSink) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, core.NewFrameworkError("telemetry.New", "telemetry", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(serviceName)),
	)
	otel.SetTracerProvider(tp)

	return &Provider{
		tracer:   tp.Tracer("agentcore"),
		tp:       tp,
		onMetric: sink,
	}, nil
}

// StartSpan opens a span named name, returning the context it attaches to.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric forwards to the configured sink, if any.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	if p.onMetric != nil {
		p.onMetric(name, value, labels)
	}
}

// Shutdown flushes pending spans and releases exporter resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

type otelSpan struct{ span trace.Span }

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) { s.span.RecordError(err) }
