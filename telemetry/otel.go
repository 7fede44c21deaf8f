package telemetry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/giaosudau/sqlflow-go/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelProvider implements core.Telemetry with OpenTelemetry, exporting spans
// and metrics to stdout. It is attached to a run's observability surface
// (see the exec package's ExecutionContext) rather than to any long-running
// server, since the engine is invoked as a library or CLI, not as a service.
type OTelProvider struct {
	tracer         trace.Tracer
	meter          metric.Meter
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider
	counters       map[string]metric.Float64Counter
	histograms     map[string]metric.Float64Histogram
	instrumentMu   sync.Mutex
	shutdownOnce   sync.Once
	shutdown       bool
	mu             sync.RWMutex
}

// NewOTelProvider creates an OpenTelemetry provider for the named run. serviceName
// typically carries the pipeline name and run id so spans from concurrent runs
// are distinguishable in the trace stream.
func NewOTelProvider(serviceName string) (*OTelProvider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("service name cannot be empty")
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	traceExporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &OTelProvider{
		tracer:         tp.Tracer("sqlflow"),
		meter:          mp.Meter("sqlflow"),
		traceProvider:  tp,
		metricProvider: mp,
		counters:       make(map[string]metric.Float64Counter),
		histograms:     make(map[string]metric.Float64Histogram),
	}, nil
}

// StartSpan implements core.Telemetry.
func (o *OTelProvider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.shutdown || o.tracer == nil {
		return ctx, &noOpSpan{}
	}
	ctx, span := o.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry, routing by name suffix to the
// instrument kind that best fits: durations and latencies as histograms,
// everything else (counts, totals, errors) as monotonic counters.
func (o *OTelProvider) RecordMetric(name string, value float64, labels map[string]string) {
	o.mu.RLock()
	shutdown := o.shutdown
	o.mu.RUnlock()
	if shutdown {
		return
	}

	var attrs []attribute.KeyValue
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	ctx := context.Background()

	if isDurationMetric(name) {
		hist, err := o.histogramFor(name)
		if err == nil {
			hist.Record(ctx, value, metric.WithAttributes(attrs...))
		}
		return
	}

	counter, err := o.counterFor(name)
	if err == nil {
		counter.Add(ctx, value, metric.WithAttributes(attrs...))
	}
}

func isDurationMetric(name string) bool {
	for _, suffix := range []string{"duration", "duration_ms", "latency", "time"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func (o *OTelProvider) counterFor(name string) (metric.Float64Counter, error) {
	o.instrumentMu.Lock()
	defer o.instrumentMu.Unlock()
	if c, ok := o.counters[name]; ok {
		return c, nil
	}
	c, err := o.meter.Float64Counter(name)
	if err != nil {
		return nil, err
	}
	o.counters[name] = c
	return c, nil
}

func (o *OTelProvider) histogramFor(name string) (metric.Float64Histogram, error) {
	o.instrumentMu.Lock()
	defer o.instrumentMu.Unlock()
	if h, ok := o.histograms[name]; ok {
		return h, nil
	}
	h, err := o.meter.Float64Histogram(name)
	if err != nil {
		return nil, err
	}
	o.histograms[name] = h
	return h, nil
}

// Shutdown flushes pending spans and metrics and tears down the provider.
// Safe to call more than once.
func (o *OTelProvider) Shutdown(ctx context.Context) (shutdownErr error) {
	o.shutdownOnce.Do(func() {
		o.mu.Lock()
		o.shutdown = true
		o.mu.Unlock()

		var errs []error
		if o.metricProvider != nil {
			if err := o.metricProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown metric provider: %w", err))
			}
		}
		if o.traceProvider != nil {
			if err := o.traceProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown trace provider: %w", err))
			}
		}
		if len(errs) > 0 {
			shutdownErr = fmt.Errorf("telemetry shutdown errors: %v", errs)
		}
	})
	return shutdownErr
}

type noOpSpan struct{}

func (s *noOpSpan) End()                                       {}
func (s *noOpSpan) SetAttribute(key string, value interface{}) {}
func (s *noOpSpan) RecordError(err error)                      {}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

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

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}
