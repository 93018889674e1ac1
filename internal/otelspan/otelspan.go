// Package otelspan wires OpenTelemetry tracing around ingest batches
// and queries, adapted from the teacher's pkg/tracing package: the
// same exporter-selection/resource/provider setup, trimmed to the
// spans this database actually emits (a batch span per
// beginEventBatch..endEventBatch cycle, a query span per query()
// call) instead of the teacher's per-log-pipeline-stage span tree.
package otelspan

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config configures the tracer provider. Endpoint and Exporter follow
// the teacher's TracingConfig naming ("jaeger", "otlp", "console").
type Config struct {
	Enabled     bool
	ServiceName string
	Exporter    string
	Endpoint    string
	SampleRatio float64
}

// Manager owns the tracer provider lifecycle. A disabled Manager hands
// out a no-op tracer so callers never need an enabled check at every
// call site.
type Manager struct {
	config   Config
	logger   *logrus.Logger
	provider *trace.TracerProvider
	tracer   oteltrace.Tracer
}

func New(cfg Config, logger *logrus.Logger) (*Manager, error) {
	if !cfg.Enabled {
		return &Manager{config: cfg, logger: logger, tracer: otel.Tracer("noop")}, nil
	}

	m := &Manager{config: cfg, logger: logger}
	if err := m.initialize(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) initialize() error {
	exporter, err := m.createExporter()
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(m.config.ServiceName),
	))
	if err != nil {
		return fmt.Errorf("create trace resource: %w", err)
	}

	m.provider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(m.config.SampleRatio)),
	)
	otel.SetTracerProvider(m.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	m.tracer = otel.Tracer(m.config.ServiceName)

	m.logger.WithFields(logrus.Fields{
		"service_name": m.config.ServiceName,
		"exporter":     m.config.Exporter,
		"endpoint":     m.config.Endpoint,
	}).Info("tracing initialized")
	return nil
}

func (m *Manager) createExporter() (trace.SpanExporter, error) {
	switch m.config.Exporter {
	case "jaeger":
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(m.config.Endpoint)))
	case "otlp", "":
		return otlptrace.New(context.Background(), otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(m.config.Endpoint),
		))
	case "console":
		return otlptrace.New(context.Background(), otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint("http://localhost:4318"),
			otlptracehttp.WithInsecure(),
		))
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", m.config.Exporter)
	}
}

func (m *Manager) Tracer() oteltrace.Tracer { return m.tracer }

func (m *Manager) Shutdown(ctx context.Context) error {
	if m.provider != nil {
		return m.provider.Shutdown(ctx)
	}
	return nil
}

// StartBatch opens a span around one beginEventBatch..endEventBatch
// cycle. Callers must call End (via the returned Span's End) from
// endEventBatch.
func (m *Manager) StartBatch(ctx context.Context) (context.Context, oteltrace.Span) {
	return m.tracer.Start(ctx, "ingest.batch")
}

// StartQuery opens a span around one query() evaluation, tagging it
// with the classified kind and the raw expression length (not the
// expression text itself, which may carry high-cardinality user
// input unsuited to a span attribute).
func (m *Manager) StartQuery(ctx context.Context, kind string, exprLen int) (context.Context, oteltrace.Span) {
	ctx, span := m.tracer.Start(ctx, "query.run")
	span.SetAttributes(
		attribute.String("query.kind", kind),
		attribute.Int("query.expr_len", exprLen),
	)
	return ctx, span
}

// RecordError marks span as failed, matching the teacher's
// TraceableContext.SetError helper.
func RecordError(span oteltrace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
