package otel_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	toolotel "github.com/samerGMTM22/RealTime-Agent-LiveKit/otel"
	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func sumValue(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s type = %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, point := range sum.DataPoints {
		total += point.Value
	}
	return total
}

func TestDispatchObserverRecordsMetrics(t *testing.T) {
	reader, mp := newTestMeter()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	observer, err := toolotel.NewDispatchObserver(mp.Meter("test"), tp.Tracer("test"))
	if err != nil {
		t.Fatalf("NewDispatchObserver() error = %v", err)
	}

	observer.ObserveExecute(tool.ExecuteObservation{
		Server: "beta", Tool: "search", Protocol: tool.ProtocolSSEPoll,
		Polls: 3, DurationMS: 150, Success: true,
	})
	observer.ObserveExecute(tool.ExecuteObservation{
		Server: "beta", Tool: "search", Protocol: tool.ProtocolSSEPoll,
		DurationMS: 30000, ErrorCode: tool.ErrorCodeTimeout,
	})
	observer.ObservePoll(tool.PollObservation{Server: "beta", Tool: "search", JobID: "j1", Attempt: 1, Status: tool.JobProcessing})
	observer.ObservePoll(tool.PollObservation{Server: "beta", Tool: "search", JobID: "j1", Attempt: 2, ErrorMsg: "connection refused"})
	observer.ObserveDiscovery(tool.DiscoveryObservation{Server: "beta", Protocol: tool.ProtocolSSEPoll, Tools: 1, Success: true})
	observer.ObserveHealth(tool.HealthObservation{Server: "beta", Protocol: tool.ProtocolSSEPoll, DurationMS: 12})
	observer.ObserveRetry(tool.RetryObservation{Server: "beta", Operation: "discover", Attempt: 1, ErrorCode: tool.ErrorCodeTransportFailure})

	rm := collectMetrics(t, reader)
	for name, want := range map[string]int64{
		"toolctl.tool.calls":           2,
		"toolctl.tool.polls":           2,
		"toolctl.server.discoveries":   1,
		"toolctl.server.health.checks": 1,
		"toolctl.server.retries":       1,
	} {
		m := findMetric(rm, name)
		if m == nil {
			t.Fatalf("%s metric not found", name)
		}
		if got := sumValue(t, m); got != want {
			t.Fatalf("%s = %d, want %d", name, got, want)
		}
	}
	latency := findMetric(rm, "toolctl.tool.latency")
	if latency == nil {
		t.Fatal("toolctl.tool.latency metric not found")
	}
	if _, ok := latency.Data.(metricdata.Histogram[float64]); !ok {
		t.Fatalf("toolctl.tool.latency type = %T, want Histogram[float64]", latency.Data)
	}

	spans := recorder.Ended()
	if len(spans) != 3 {
		t.Fatalf("ended spans = %d, want 3", len(spans))
	}
	if spans[0].Name() != "tool.execute" || spans[0].Status().Code != codes.Ok {
		t.Fatalf("span[0] = %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != tool.ErrorCodeTimeout {
		t.Fatalf("span[1] status = %v", spans[1].Status())
	}
	if spans[2].Name() != "server.health.check" || spans[2].Status().Code != codes.Error {
		t.Fatalf("span[2] = %s %v", spans[2].Name(), spans[2].Status())
	}
}

func TestNilDispatchObserverIsSafe(t *testing.T) {
	var observer *toolotel.DispatchObserver
	observer.ObserveExecute(tool.ExecuteObservation{})
	observer.ObservePoll(tool.PollObservation{})
	observer.ObserveDiscovery(tool.DiscoveryObservation{})
	observer.ObserveHealth(tool.HealthObservation{})
	observer.ObserveRetry(tool.RetryObservation{})
}

func TestSetupServesPrometheusMetrics(t *testing.T) {
	ctx := context.Background()
	telemetry, err := toolotel.Setup(ctx, toolotel.Config{ServiceName: "toolctl-test"})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer func() { _ = telemetry.Shutdown(ctx) }()

	telemetry.Observer.ObserveExecute(tool.ExecuteObservation{Server: "alpha", Tool: "lookup", Protocol: tool.ProtocolHTTP, Success: true})

	srv := httptest.NewServer(telemetry.MetricsHandler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	if !strings.Contains(string(body), "toolctl_tool_calls") {
		t.Fatalf("metrics output missing toolctl_tool_calls:\n%s", body)
	}
	if !strings.Contains(string(body), `tool="lookup"`) {
		t.Fatalf("metrics output missing tool label:\n%s", body)
	}
}
