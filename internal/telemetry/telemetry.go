// Package telemetry собирает трассировку и метрики сервиса в один объект,
// который создаётся при старте процесса и передаётся в конструкторы компонентов.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/mmeshcher/paymesh"

// Названия инструментов совпадают с исходными сервисами.
const (
	MetricDuration      = "http.server.duration"
	MetricErrors        = "http.server.errors"
	MetricPaymentsTotal = "payments.amount.total"
)

// Options описывает параметры построения телеметрии процесса.
type Options struct {
	ServiceName string
	// CollectorEndpoint задаёт адрес OTLP/HTTP коллектора (host:port). Пустое значение отключает экспорт спанов.
	CollectorEndpoint string
}

// Telemetry содержит трейсер, инструменты метрик и пропагатор контекста.
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
	tracer         trace.Tracer

	duration      metric.Float64Histogram
	errors        metric.Int64Counter
	paymentsTotal metric.Float64Counter

	registry *prometheus.Registry
	shutdown []func(context.Context) error
}

// Setup строит телеметрию для рабочего процесса: пакетный экспорт спанов в коллектор
// и Prometheus-реестр для эндпоинта /metrics.
func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	res := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(opts.ServiceName))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if opts.CollectorEndpoint != "" {
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(opts.CollectorEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create span exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	registry := prometheus.NewRegistry()
	reader, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("create prometheus reader: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))

	t, err := New(tp, mp)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	t.registry = registry
	t.shutdown = append(t.shutdown, tp.Shutdown, mp.Shutdown)

	return t, nil
}

// New создаёт телеметрию поверх готовых провайдеров. Используется в тестах
// с tracetest.SpanRecorder и ручным читателем метрик.
func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)

	duration, err := meter.Float64Histogram(MetricDuration,
		metric.WithUnit("ms"),
		metric.WithDescription("Duration of successfully handled requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	errCounter, err := meter.Int64Counter(MetricErrors,
		metric.WithDescription("Failed requests by route"),
	)
	if err != nil {
		return nil, fmt.Errorf("create error counter: %w", err)
	}

	paymentsTotal, err := meter.Float64Counter(MetricPaymentsTotal,
		metric.WithDescription("Sum of processed payment amounts by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create payments counter: %w", err)
	}

	return &Telemetry{
		tracerProvider: tp,
		meterProvider:  mp,
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		tracer:        tp.Tracer(instrumentationName),
		duration:      duration,
		errors:        errCounter,
		paymentsTotal: paymentsTotal,
	}, nil
}

// Start открывает спан, дочерний по отношению к спану в ctx.
func (t *Telemetry) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Fail помечает спан ошибкой. Спан не закрывается.
func Fail(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordError увеличивает счётчик ошибок маршрута.
func (t *Telemetry) RecordError(ctx context.Context, route string) {
	t.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}

// RecordDuration записывает длительность обработки запроса в миллисекундах.
func (t *Telemetry) RecordDuration(ctx context.Context, route string, start time.Time) {
	ms := float64(time.Since(start)) / float64(time.Millisecond)
	t.duration.Record(ctx, ms, metric.WithAttributes(attribute.String("route", route)))
}

// AddPayment прибавляет сумму платежа к счётчику по статусу.
func (t *Telemetry) AddPayment(ctx context.Context, status string, amount float64) {
	t.paymentsTotal.Add(ctx, amount, metric.WithAttributes(attribute.String("status", status)))
}

// Transport оборачивает исходящий транспорт: создаёт клиентский спан и передаёт
// контекст трассировки в заголовке traceparent.
func (t *Telemetry) Transport(base http.RoundTripper) http.RoundTripper {
	return otelhttp.NewTransport(base,
		otelhttp.WithTracerProvider(t.tracerProvider),
		otelhttp.WithMeterProvider(t.meterProvider),
		otelhttp.WithPropagators(t.propagator),
	)
}

// Middleware извлекает контекст трассировки из входящего запроса и открывает серверный спан.
// После маршрутизации спан получает имя по шаблону маршрута chi, а не по фактическому пути,
// поэтому идентификаторы в URL не размножают имена спанов.
func (t *Telemetry) Middleware(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		named := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			nameByRoute(r)
		})
		return otelhttp.NewHandler(named, service,
			otelhttp.WithTracerProvider(t.tracerProvider),
			otelhttp.WithMeterProvider(t.meterProvider),
			otelhttp.WithPropagators(t.propagator),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method
			}),
		)
	}
}

// nameByRoute переименовывает серверный спан по шаблону сработавшего маршрута.
// Без совпадения (404, 405) спан остаётся с именем метода.
func nameByRoute(r *http.Request) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return
	}
	pattern := rctx.RoutePattern()
	if pattern == "" {
		return
	}
	span := trace.SpanFromContext(r.Context())
	span.SetName(r.Method + " " + pattern)
	span.SetAttributes(semconv.HTTPRoute(pattern))
}

// MetricsHandler отдаёт накопленные метрики в формате Prometheus.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{DisableCompression: true})
}

// Shutdown выгружает буферизованные спаны и останавливает провайдеры.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
