package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.ServiceName != "sfmcp" {
		t.Errorf("ServiceName = %s, want sfmcp", cfg.ServiceName)
	}
	if cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled should default to false")
	}
	if cfg.Tracing.Exporter != ExporterNoop {
		t.Errorf("Tracing.Exporter = %s, want noop", cfg.Tracing.Exporter)
	}
	if cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("Tracing.SampleRate = %v, want 1.0", cfg.Tracing.SampleRate)
	}
	if cfg.Tracing.Writer == nil {
		t.Error("Tracing.Writer should default to stderr")
	}
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := DefaultConfig()
	for _, opt := range []Option{
		WithServiceName("svc"),
		WithServiceVersion("1.2.3"),
		WithEnvironment("test"),
		WithTracing(ExporterOTLP, "localhost:4317"),
		WithTracingInsecure(),
		WithSampleRate(0.5),
	} {
		opt(&cfg)
	}

	if cfg.ServiceName != "svc" || cfg.ServiceVersion != "1.2.3" || cfg.Environment != "test" {
		t.Errorf("service = %s/%s/%s", cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Exporter != ExporterOTLP || cfg.Tracing.Endpoint != "localhost:4317" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if !cfg.Tracing.Insecure {
		t.Error("Tracing.Insecure should be true")
	}
	if cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("SampleRate = %v, want 0.5", cfg.Tracing.SampleRate)
	}

	WithStdoutTracing(&buf)(&cfg)
	if cfg.Tracing.Exporter != ExporterStdout || cfg.Tracing.Writer != &buf {
		t.Error("WithStdoutTracing should select stdout exporter and writer")
	}
}

func TestParseExporter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ExporterType
		wantErr bool
	}{
		{"", ExporterNoop, false},
		{"noop", ExporterNoop, false},
		{"STDOUT", ExporterStdout, false},
		{" otlp ", ExporterOTLP, false},
		{"zipkin", "", true},
	}

	for _, tt := range tests {
		got, err := ParseExporter(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseExporter(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseExporter(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNoopProvider(t *testing.T) {
	t.Parallel()

	p := NewNoopProvider()
	if p.Tracer() == nil {
		t.Fatal("Tracer() returned nil")
	}

	ctx, span := p.Tracer().Start(context.Background(), "noop")
	span.End()
	if TraceID(ctx) != "" {
		t.Errorf("TraceID() = %s, want empty for noop spans", TraceID(ctx))
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_Noop(t *testing.T) {
	t.Parallel()

	p, err := New(WithTracing(ExporterNoop, ""))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Tracer() == nil {
		t.Error("Tracer() returned nil")
	}
}

func TestNew_UnknownExporter(t *testing.T) {
	t.Parallel()

	_, err := New(WithTracing(ExporterType("zipkin"), ""))
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("New() error = %v, want ErrUnknownExporter", err)
	}
}

func TestNew_Stdout(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(WithServiceName("sfmcp-test"), WithStdoutTracing(&buf))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, span := p.Tracer().Start(context.Background(), "unit")
	if TraceID(ctx) == "" {
		t.Error("TraceID() should be set for sampled spans")
	}
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"Name":"unit"`)) {
		t.Errorf("exported spans = %s, want span named unit", buf.String())
	}
}

func TestSetup(t *testing.T) {
	t.Parallel()

	if _, err := Setup("svc", "1.0", "bogus", ""); err == nil {
		t.Error("Setup() with unknown exporter should fail")
	}

	p, err := Setup("svc", "1.0", "noop", "")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if p.Config().ServiceName != "svc" || p.Config().ServiceVersion != "1.0" {
		t.Errorf("Config() = %+v", p.Config())
	}
}

func TestRun_RecordsOutcome(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	if err := Run(context.Background(), tracer, "ok", func(ctx context.Context) error {
		if TraceID(ctx) == "" {
			t.Error("span should be active inside fn")
		}
		return nil
	}, AttrToolName.String("salesforce_query")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	boom := errors.New("boom")
	if err := Run(context.Background(), tracer, "fail", func(ctx context.Context) error {
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("len(spans) = %d, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("ok span status = %v, want Ok", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("fail span status = %v, want Error", spans[1].Status().Code)
	}
	if len(spans[1].Events()) == 0 {
		t.Error("fail span should record the error event")
	}

	var found bool
	for _, kv := range spans[0].Attributes() {
		if kv.Key == AttrToolName && kv.Value.AsString() == "salesforce_query" {
			found = true
		}
	}
	if !found {
		t.Error("ok span should carry the tool name attribute")
	}
}
