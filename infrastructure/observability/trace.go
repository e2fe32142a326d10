package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by server and agent spans.
const (
	AttrToolName = attribute.Key("sfmcp.tool.name")
	AttrSObject  = attribute.Key("sfmcp.sobject")
	AttrRunID    = attribute.Key("sfmcp.run_id")
	AttrTurn     = attribute.Key("sfmcp.turn")
	AttrModel    = attribute.Key("sfmcp.model")
)

// Run executes fn inside a span named name and records its outcome.
func Run(ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	err := fn(ctx)
	End(span, err)
	return err
}

// End records err on span, or marks it OK.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// TraceID returns the trace id of the span in ctx, or "" when ctx carries no valid span.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
