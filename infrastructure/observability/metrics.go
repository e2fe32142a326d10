package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
)

// Instrument names recorded by the tool server.
const (
	MetricToolCalls    = "tool.calls"
	MetricToolDuration = "tool.duration"
)

// AttrOutcome is "ok" or "error" on tool metrics.
const AttrOutcome = attribute.Key("sfmcp.outcome")

// ToolMetrics counts tool calls and records their latency.
type ToolMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewToolMetrics creates the tool instruments on meter.
func NewToolMetrics(meter metric.Meter) (*ToolMetrics, error) {
	calls, err := meter.Int64Counter(MetricToolCalls,
		metric.WithDescription("Tool calls handled"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(MetricToolDuration,
		metric.WithDescription("Tool call latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &ToolMetrics{calls: calls, duration: duration}, nil
}

// Record adds one call of tool name that took d and ended with err.
func (m *ToolMetrics) Record(ctx context.Context, name string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(AttrToolName.String(name), AttrOutcome.String(outcome))
	m.calls.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
}

// logExporter writes collected metrics to the structured log.
type logExporter struct{}

func (logExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (logExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (logExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					metricEvent(m.Name, dp.Attributes).
						Add(logging.Int64("value", dp.Value)).
						Msg("metric")
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					metricEvent(m.Name, dp.Attributes).
						Add(logging.Int64("count", int64(dp.Count))).
						Add(logging.Float64("sum", dp.Sum)).
						Msg("metric")
				}
			}
		}
	}
	return nil
}

func (logExporter) ForceFlush(context.Context) error { return nil }

func (logExporter) Shutdown(context.Context) error { return nil }

func metricEvent(name string, attrs attribute.Set) *logging.LogEvent {
	event := logging.Info().
		Add(logging.Component("metrics")).
		Add(logging.Str("metric", name))
	for _, kv := range attrs.ToSlice() {
		event.Add(logging.Str(string(kv.Key), kv.Value.Emit()))
	}
	return event
}
