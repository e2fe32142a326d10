package application

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	sfmcp "github.com/felixgeelhaar/salesforce-mcp"
	"github.com/felixgeelhaar/salesforce-mcp/domain/tool"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/config"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/mcp"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/observability"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/planner"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/process"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/storage/memory"
)

// ServerHandle is a running tool server.
type ServerHandle interface {
	Addr() string
	Stop() error
}

// Launcher starts the tool server and waits until it is ready.
type Launcher func(ctx context.Context, cfg process.Config) (ServerHandle, error)

// ToolSource is a connection that supplies tools.
type ToolSource interface {
	Connect(ctx context.Context) error
	Tools(ctx context.Context) ([]tool.Tool, error)
	Close() error
}

// Dialer creates a ToolSource for an endpoint URL.
type Dialer func(url string) ToolSource

// AgentOptions configures RunAgent.
type AgentOptions struct {
	Config config.AgentConfig

	// Out receives the prompt, trace id and result. Defaults to stdout.
	Out io.Writer

	Tracer   trace.Tracer
	Provider planner.Provider
	Launch   Launcher
	Dial     Dialer
}

func launchProcess(ctx context.Context, cfg process.Config) (ServerHandle, error) {
	return process.Start(ctx, cfg)
}

func dialMCP(url string) ToolSource {
	return mcp.NewClient(
		mcp.WithClientName("sfmcp-agent"),
		mcp.WithClientVersion(sfmcp.Version),
		mcp.WithHTTPURL(url),
		mcp.WithRequestTimeout(mcp.DefaultClientTimeout),
	)
}

// RunAgent launches the tool server, connects to it, runs the instruction
// and prints the final answer. The server is stopped on every return path.
func RunAgent(ctx context.Context, opts AgentOptions) (result *RunResult, err error) {
	cfg := opts.Config
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = observability.NewNoopProvider().Tracer()
	}
	launch := opts.Launch
	if launch == nil {
		launch = launchProcess
	}
	dial := opts.Dial
	if dial == nil {
		dial = dialMCP
	}
	provider := opts.Provider
	if provider == nil {
		provider = planner.NewOpenAIProvider(planner.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.Model,
		})
	}

	command := cfg.ServerCommand
	if len(command) == 0 {
		if command, err = process.DefaultCommand(); err != nil {
			return nil, err
		}
	}

	server, err := launch(ctx, process.Config{
		Command:          command,
		ReadinessTimeout: cfg.ReadinessTimeout,
		ShutdownGrace:    cfg.ShutdownGrace,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if stopErr := server.Stop(); stopErr != nil {
			logging.Warn().
				Add(logging.Component("agent")).
				Add(logging.ErrorField(stopErr)).
				Msg("stop server")
		}
	}()

	source := dial(mcp.EndpointURL(server.Addr(), cfg.EndpointPath))
	if err := source.Connect(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = source.Close() }()

	registry := memory.NewToolRegistry()
	if err := registerTools(ctx, source, registry); err != nil {
		return nil, err
	}

	runner, err := NewRunner(RunnerConfig{
		Provider: provider,
		Registry: registry,
		Tracer:   tracer,
		Model:    cfg.Model,
		MaxTurns: cfg.MaxTurns,
	})
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "agent.session")
	defer span.End()

	runID := uuid.NewString()
	fmt.Fprintf(out, "Initial user prompt: %s\n", cfg.Instruction)
	if id := observability.TraceID(ctx); id != "" {
		fmt.Fprintf(out, "Trace ID: %s\n", id)
	} else {
		fmt.Fprintf(out, "Run ID: %s\n", runID)
	}

	start := time.Now()
	result, err = runner.RunWithID(ctx, runID, cfg.Instruction)
	observability.End(span, err)
	if err != nil {
		return result, err
	}

	logging.Info().
		Add(logging.Component("agent")).
		Add(logging.RunID(result.RunID)).
		Add(logging.Int("turns", result.Turns)).
		Add(logging.Duration(time.Since(start))).
		Msg("agent finished")

	fmt.Fprintf(out, "Result: %s\n", result.Output)
	return result, nil
}

func registerTools(ctx context.Context, source ToolSource, registry tool.Registry) error {
	added, err := mcp.ImportToolsFromClient(ctx, source, registry)
	if err != nil {
		return fmt.Errorf("import tools: %w", err)
	}
	logging.Info().
		Add(logging.Component("agent")).
		Add(logging.Int("tools", added)).
		Msg("tools registered")
	return nil
}
