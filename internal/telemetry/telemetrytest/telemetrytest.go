// Package telemetrytest предоставляет телеметрию с записью спанов и метрик в память для тестов.
package telemetrytest

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mmeshcher/paymesh/internal/telemetry"
)

// Harness объединяет телеметрию и доступ к тому, что она записала.
type Harness struct {
	*telemetry.Telemetry

	Recorder *tracetest.SpanRecorder
	Reader   *sdkmetric.ManualReader
}

// New создаёт Harness и регистрирует остановку провайдеров по завершении теста.
func New(t *testing.T) *Harness {
	t.Helper()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tel, err := telemetry.New(tp, mp)
	if err != nil {
		t.Fatalf("new telemetry: %v", err)
	}

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	return &Harness{Telemetry: tel, Recorder: rec, Reader: reader}
}

// Span возвращает первый закрытый спан с указанным именем.
func (h *Harness) Span(name string) (sdktrace.ReadOnlySpan, bool) {
	for _, s := range h.Recorder.Ended() {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// SpanNames возвращает имена закрытых спанов в порядке закрытия.
func (h *Harness) SpanNames() []string {
	ended := h.Recorder.Ended()
	names := make([]string, 0, len(ended))
	for _, s := range ended {
		names = append(names, s.Name())
	}
	return names
}

// Attr возвращает значение атрибута спана.
func Attr(s sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range s.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func (h *Harness) collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := h.Reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}
	return rm
}

func (h *Harness) find(t *testing.T, name string) (metricdata.Metrics, bool) {
	t.Helper()

	for _, sm := range h.collect(t).ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func matches(set attribute.Set, key, value string) bool {
	v, ok := set.Value(attribute.Key(key))
	return ok && v.AsString() == value
}

// IntCounter возвращает значение целочисленного счётчика для метки key=value.
func (h *Harness) IntCounter(t *testing.T, name, key, value string) int64 {
	t.Helper()

	m, ok := h.find(t, name)
	if !ok {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is %T, want Sum[int64]", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if matches(dp.Attributes, key, value) {
			total += dp.Value
		}
	}
	return total
}

// FloatCounter возвращает значение вещественного счётчика для метки key=value.
func (h *Harness) FloatCounter(t *testing.T, name, key, value string) float64 {
	t.Helper()

	m, ok := h.find(t, name)
	if !ok {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[float64])
	if !ok {
		t.Fatalf("metric %s is %T, want Sum[float64]", name, m.Data)
	}
	var total float64
	for _, dp := range sum.DataPoints {
		if matches(dp.Attributes, key, value) {
			total += dp.Value
		}
	}
	return total
}

// HistogramCount возвращает количество записей гистограммы для метки key=value.
func (h *Harness) HistogramCount(t *testing.T, name, key, value string) uint64 {
	t.Helper()

	m, ok := h.find(t, name)
	if !ok {
		return 0
	}
	hist, ok := m.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %s is %T, want Histogram[float64]", name, m.Data)
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		if matches(dp.Attributes, key, value) {
			total += dp.Count
		}
	}
	return total
}
