package application

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/felixgeelhaar/salesforce-mcp/domain/tool"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/config"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/planner"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/process"
)

type fakeServer struct {
	mu      sync.Mutex
	addr    string
	stopped int
	cfg     process.Config
}

func (f *fakeServer) Addr() string { return f.addr }

func (f *fakeServer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeServer) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeServer) launcher(err error) Launcher {
	return func(_ context.Context, cfg process.Config) (ServerHandle, error) {
		f.cfg = cfg
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

type fakeSource struct {
	url        string
	connectErr error
	tools      []tool.Tool
	closed     bool
}

func (f *fakeSource) Connect(context.Context) error { return f.connectErr }

func (f *fakeSource) Tools(context.Context) ([]tool.Tool, error) { return f.tools, nil }

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSource) dialer() Dialer {
	return func(url string) ToolSource {
		f.url = url
		return f
	}
}

func agentConfig() config.AgentConfig {
	return config.AgentConfig{
		OpenAIAPIKey:  "sk-test",
		Model:         "gpt-4o",
		Instruction:   "Read 10 Leads",
		MaxTurns:      5,
		ServerCommand: []string{"sfmcp", "serve"},
		EndpointPath:  "/mcp",
	}
}

func TestRunAgent(t *testing.T) {
	t.Parallel()

	server := &fakeServer{addr: "127.0.0.1:8003"}
	source := &fakeSource{tools: []tool.Tool{queryTool(&recordingTool{}, `[{"Id":"00Q1"}]`, nil)}}
	provider := planner.NewScriptedProvider(
		planner.CallTools(planner.NewToolCall("call_1", "salesforce_query", `{"query":"SELECT Id FROM Lead LIMIT 10"}`)),
		planner.Reply("Read 1 lead."),
	)
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var out bytes.Buffer
	result, err := RunAgent(context.Background(), AgentOptions{
		Config:   agentConfig(),
		Out:      &out,
		Tracer:   tp.Tracer("test"),
		Provider: provider,
		Launch:   server.launcher(nil),
		Dial:     source.dialer(),
	})
	if err != nil {
		t.Fatalf("RunAgent() error = %v", err)
	}
	if result.Output != "Read 1 lead." {
		t.Errorf("Output = %q", result.Output)
	}

	printed := out.String()
	for _, want := range []string{"Initial user prompt: Read 10 Leads\n", "Trace ID: ", "Result: Read 1 lead.\n"} {
		if !strings.Contains(printed, want) {
			t.Errorf("output %q missing %q", printed, want)
		}
	}
	if source.url != "http://127.0.0.1:8003/mcp" {
		t.Errorf("dialed %s, want http://127.0.0.1:8003/mcp", source.url)
	}
	if !source.closed {
		t.Error("connection should be closed")
	}
	if server.stops() != 1 {
		t.Errorf("Stop() called %d times, want 1", server.stops())
	}
	if strings.Join(server.cfg.Command, " ") != "sfmcp serve" {
		t.Errorf("Command = %v, want [sfmcp serve]", server.cfg.Command)
	}
}

func TestRunAgent_PrintsRunIDWithoutTrace(t *testing.T) {
	t.Parallel()

	server := &fakeServer{addr: "127.0.0.1:8003"}
	source := &fakeSource{tools: []tool.Tool{queryTool(&recordingTool{}, `[]`, nil)}}
	provider := planner.NewScriptedProvider(
		planner.CallTools(planner.NewToolCall("call_1", "salesforce_query", `{"soql":"SELECT Id FROM Lead"}`)),
		planner.Reply("No leads."),
	)

	var out bytes.Buffer
	result, err := RunAgent(context.Background(), AgentOptions{
		Config:   agentConfig(),
		Out:      &out,
		Provider: provider,
		Launch:   server.launcher(nil),
		Dial:     source.dialer(),
	})
	if err != nil {
		t.Fatalf("RunAgent() error = %v", err)
	}

	printed := out.String()
	if strings.Contains(printed, "Trace ID: ") {
		t.Errorf("output %q has a trace id without a recording tracer", printed)
	}
	if want := "Run ID: " + result.RunID + "\n"; !strings.Contains(printed, want) {
		t.Errorf("output %q missing %q", printed, want)
	}
}

func TestRunAgent_StopsServerOnFailure(t *testing.T) {
	t.Parallel()

	connectErr := errors.New("connection refused")
	tests := []struct {
		name   string
		source *fakeSource
		steps  []planner.ScriptStep
		want   error
	}{
		{
			name:   "connect fails",
			source: &fakeSource{connectErr: connectErr},
			want:   connectErr,
		},
		{
			name:   "no tools discovered",
			source: &fakeSource{},
			want:   ErrNoTools,
		},
		{
			name:   "model fails",
			source: &fakeSource{tools: []tool.Tool{queryTool(&recordingTool{}, "[]", nil)}},
			steps:  []planner.ScriptStep{{Err: planner.ErrNoChoices}},
			want:   planner.ErrNoChoices,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := &fakeServer{addr: "127.0.0.1:8001"}
			var out bytes.Buffer
			_, err := RunAgent(context.Background(), AgentOptions{
				Config:   agentConfig(),
				Out:      &out,
				Provider: planner.NewScriptedProvider(tt.steps...),
				Launch:   server.launcher(nil),
				Dial:     tt.source.dialer(),
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("RunAgent() error = %v, want %v", err, tt.want)
			}
			if server.stops() != 1 {
				t.Errorf("Stop() called %d times, want 1", server.stops())
			}
			if strings.Contains(out.String(), "Result:") {
				t.Errorf("output %q should not contain a result", out.String())
			}
		})
	}
}

func TestRunAgent_LaunchFailure(t *testing.T) {
	t.Parallel()

	launchErr := errors.New("no such file")
	server := &fakeServer{}
	source := &fakeSource{}

	_, err := RunAgent(context.Background(), AgentOptions{
		Config:   agentConfig(),
		Out:      &bytes.Buffer{},
		Provider: planner.NewScriptedProvider(),
		Launch:   server.launcher(launchErr),
		Dial:     source.dialer(),
	})
	if !errors.Is(err, launchErr) {
		t.Errorf("RunAgent() error = %v, want %v", err, launchErr)
	}
	if source.url != "" {
		t.Error("no connection should be attempted")
	}
	if server.stops() != 0 {
		t.Errorf("Stop() called %d times, want 0", server.stops())
	}
}
