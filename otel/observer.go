// Package otel records dispatch observations as OpenTelemetry metrics and
// spans, and wires the exporters used by the toolctl binary.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/samerGMTM22/RealTime-Agent-LiveKit/tool"
)

// DispatchObserver implements tool.Observer on top of an OTel meter and
// tracer. A nil tracer disables spans.
type DispatchObserver struct {
	tracer trace.Tracer

	calls       metric.Int64Counter
	polls       metric.Int64Counter
	discoveries metric.Int64Counter
	health      metric.Int64Counter
	retries     metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewDispatchObserver creates the instruments on meter.
func NewDispatchObserver(meter metric.Meter, tracer trace.Tracer) (*DispatchObserver, error) {
	calls, err := meter.Int64Counter(
		"toolctl.tool.calls",
		metric.WithDescription("Number of tool calls"),
	)
	if err != nil {
		return nil, err
	}
	polls, err := meter.Int64Counter(
		"toolctl.tool.polls",
		metric.WithDescription("Number of job result polls"),
	)
	if err != nil {
		return nil, err
	}
	discoveries, err := meter.Int64Counter(
		"toolctl.server.discoveries",
		metric.WithDescription("Number of tool discovery rounds"),
	)
	if err != nil {
		return nil, err
	}
	health, err := meter.Int64Counter(
		"toolctl.server.health.checks",
		metric.WithDescription("Number of server health checks"),
	)
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter(
		"toolctl.server.retries",
		metric.WithDescription("Number of retried discovery requests"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"toolctl.tool.latency",
		metric.WithDescription("Tool call and health check latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &DispatchObserver{
		tracer:      tracer,
		calls:       calls,
		polls:       polls,
		discoveries: discoveries,
		health:      health,
		retries:     retries,
		latency:     latency,
	}, nil
}

func seconds(ms int64) float64 {
	return (time.Duration(ms) * time.Millisecond).Seconds()
}

// ObserveExecute records one finished tool call.
func (o *DispatchObserver) ObserveExecute(observation tool.ExecuteObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("server", observation.Server),
		attribute.String("tool", observation.Tool),
		attribute.String("protocol", string(observation.Protocol)),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.calls.Add(ctx, 1, options)
	o.latency.Record(ctx, seconds(observation.DurationMS), metric.WithAttributes(
		attribute.String("operation", "execute"),
		attribute.String("server", observation.Server),
		attribute.String("tool", observation.Tool),
	))

	if o.tracer == nil {
		return
	}
	end := time.Now()
	start := end.Add(-time.Duration(observation.DurationMS) * time.Millisecond)
	_, span := o.tracer.Start(ctx, "tool.execute",
		trace.WithTimestamp(start),
		trace.WithAttributes(append(attrs, attribute.Int("polls", observation.Polls))...),
	)
	if !observation.Success {
		span.SetStatus(codes.Error, observation.ErrorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

// ObservePoll records one result poll.
func (o *DispatchObserver) ObservePoll(observation tool.PollObservation) {
	if o == nil {
		return
	}
	status := string(observation.Status)
	if observation.ErrorMsg != "" {
		status = "error"
	}
	o.polls.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("server", observation.Server),
		attribute.String("tool", observation.Tool),
		attribute.String("status", status),
	))
}

// ObserveDiscovery records one discovery round.
func (o *DispatchObserver) ObserveDiscovery(observation tool.DiscoveryObservation) {
	if o == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("server", observation.Server),
		attribute.String("protocol", string(observation.Protocol)),
		attribute.Bool("fallback", observation.Fallback),
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}
	o.discoveries.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// ObserveHealth records one health probe.
func (o *DispatchObserver) ObserveHealth(observation tool.HealthObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("server", observation.Server),
		attribute.String("protocol", string(observation.Protocol)),
		attribute.Bool("healthy", observation.Healthy),
	}
	ctx := context.Background()
	o.health.Add(ctx, 1, metric.WithAttributes(attrs...))
	o.latency.Record(ctx, seconds(observation.DurationMS), metric.WithAttributes(
		attribute.String("operation", "health"),
		attribute.String("server", observation.Server),
	))

	if o.tracer == nil {
		return
	}
	_, span := o.tracer.Start(ctx, "server.health.check", trace.WithAttributes(attrs...))
	if !observation.Healthy {
		span.SetStatus(codes.Error, "unhealthy")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ObserveRetry records one retry attempt.
func (o *DispatchObserver) ObserveRetry(observation tool.RetryObservation) {
	if o == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("server", observation.Server),
		attribute.String("operation", observation.Operation),
		attribute.String("protocol", string(observation.Protocol)),
		attribute.Int("attempt", observation.Attempt),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}
	o.retries.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

var _ tool.Observer = (*DispatchObserver)(nil)
