// Package application wires the CRM tool server and the agent client.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/salesforce-mcp/domain/tool"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/observability"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/planner"
)

// DefaultSystemPrompt is sent ahead of the instruction.
const DefaultSystemPrompt = "Use the tools to answer the questions."

// DefaultMaxTurns bounds the number of model round trips in one run.
const DefaultMaxTurns = 10

// Runner errors.
var (
	// ErrNoProvider indicates the runner has no model provider.
	ErrNoProvider = errors.New("provider is required")

	// ErrNoRegistry indicates the runner has no tool registry.
	ErrNoRegistry = errors.New("registry is required")

	// ErrNoTools indicates a required tool choice with nothing to call.
	ErrNoTools = errors.New("no tools registered")

	// ErrMaxTurnsExceeded indicates the model never produced a final answer.
	ErrMaxTurnsExceeded = errors.New("max turns exceeded")
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Provider planner.Provider
	Registry tool.Registry
	Tracer   trace.Tracer

	// Model overrides the provider's default model.
	Model string

	SystemPrompt string
	MaxTurns     int

	// ToolChoice is the policy used until a tool result has been observed.
	// Defaults to required.
	ToolChoice planner.ToolChoice
}

// Runner drives a model through tool calls until it answers.
type Runner struct {
	provider     planner.Provider
	registry     tool.Registry
	tracer       trace.Tracer
	model        string
	systemPrompt string
	maxTurns     int
	toolChoice   planner.ToolChoice
}

// ToolCallRecord is one executed tool call.
type ToolCallRecord struct {
	ID        string
	Name      string
	Arguments string
	Output    string
	IsError   bool
	Duration  time.Duration
}

// RunResult is the outcome of one run.
type RunResult struct {
	RunID     string
	Output    string
	Turns     int
	ToolCalls []ToolCallRecord
	Usage     planner.Usage
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	if cfg.Registry == nil {
		return nil, ErrNoRegistry
	}

	r := &Runner{
		provider:     cfg.Provider,
		registry:     cfg.Registry,
		tracer:       cfg.Tracer,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxTurns:     cfg.MaxTurns,
		toolChoice:   cfg.ToolChoice,
	}
	if r.tracer == nil {
		r.tracer = observability.NewNoopProvider().Tracer()
	}
	if r.systemPrompt == "" {
		r.systemPrompt = DefaultSystemPrompt
	}
	if r.maxTurns <= 0 {
		r.maxTurns = DefaultMaxTurns
	}
	if r.toolChoice == "" {
		r.toolChoice = planner.ToolChoiceRequired
	}
	return r, nil
}

// functionTools exposes every registered tool as a model function.
func (r *Runner) functionTools() []planner.Tool {
	tools := r.registry.List()
	out := make([]planner.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, planner.NewFunctionTool(t.Name(), t.Description(), t.InputSchema().Parameters()))
	}
	return out
}

// Run sends instruction and loops until the model answers without calling tools.
//
// While the policy is required, every request forces a tool call. Once any
// tool result is in the conversation the policy drops to auto so the model
// can finish.
func (r *Runner) Run(ctx context.Context, instruction string) (*RunResult, error) {
	return r.RunWithID(ctx, uuid.NewString(), instruction)
}

// RunWithID is Run with a caller-chosen run id.
func (r *Runner) RunWithID(ctx context.Context, runID, instruction string) (*RunResult, error) {
	result := &RunResult{RunID: runID}

	tools := r.functionTools()
	if len(tools) == 0 && r.toolChoice == planner.ToolChoiceRequired {
		return result, ErrNoTools
	}

	ctx, span := r.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		observability.AttrRunID.String(result.RunID),
		observability.AttrModel.String(r.model),
	))
	defer span.End()

	logging.Info().
		Add(logging.Component("agent")).
		Add(logging.RunID(result.RunID)).
		Add(logging.Int("tools", len(tools))).
		Msg("run started")

	messages := []planner.Message{
		planner.SystemMessage(r.systemPrompt),
		planner.UserMessage(instruction),
	}
	choice := r.toolChoice

	for turn := 1; turn <= r.maxTurns; turn++ {
		result.Turns = turn

		resp, err := r.complete(ctx, turn, planner.CompletionRequest{
			Model:      r.model,
			Messages:   messages,
			Tools:      tools,
			ToolChoice: choice,
		})
		if err != nil {
			observability.End(span, err)
			return result, err
		}
		addUsage(&result.Usage, resp.Usage)

		reply := resp.Message
		reply.Role = planner.RoleAssistant
		messages = append(messages, reply)

		if len(reply.ToolCalls) == 0 {
			result.Output = reply.Content
			logging.Info().
				Add(logging.Component("agent")).
				Add(logging.RunID(result.RunID)).
				Add(logging.Turn(turn)).
				Add(logging.Int("tool_calls", len(result.ToolCalls))).
				Msg("run finished")
			observability.End(span, nil)
			return result, nil
		}

		for _, call := range reply.ToolCalls {
			record := r.execute(ctx, turn, call)
			result.ToolCalls = append(result.ToolCalls, record)
			messages = append(messages, planner.ToolResultMessage(call, record.Output))
		}

		if choice == planner.ToolChoiceRequired {
			choice = planner.ToolChoiceAuto
		}
	}

	err := fmt.Errorf("%w: %d", ErrMaxTurnsExceeded, r.maxTurns)
	observability.End(span, err)
	return result, err
}

func (r *Runner) complete(ctx context.Context, turn int, req planner.CompletionRequest) (planner.CompletionResponse, error) {
	var resp planner.CompletionResponse
	err := observability.Run(ctx, r.tracer, "agent.complete", func(ctx context.Context) error {
		var err error
		resp, err = r.provider.Complete(ctx, req)
		if err != nil {
			return fmt.Errorf("%s completion (turn %d): %w", r.provider.Name(), turn, err)
		}
		if resp.Error != nil {
			return fmt.Errorf("%s completion (turn %d): %w", r.provider.Name(), turn, resp.Error)
		}
		return nil
	}, observability.AttrTurn.Int(turn), attribute.String("sfmcp.tool_choice", string(req.ToolChoice)))

	logging.Debug().
		Add(logging.Component("agent")).
		Add(logging.Turn(turn)).
		Add(logging.Str("tool_choice", string(req.ToolChoice))).
		Add(logging.Int("tool_calls", len(resp.Message.ToolCalls))).
		Add(logging.ErrorField(err)).
		Msg("model replied")

	return resp, err
}

// execute runs one tool call. Failures become error text for the model.
func (r *Runner) execute(ctx context.Context, turn int, call planner.ToolCall) ToolCallRecord {
	record := ToolCallRecord{
		ID:        call.ID,
		Name:      call.Function.Name,
		Arguments: call.Function.Arguments,
	}
	start := time.Now()

	_ = observability.Run(ctx, r.tracer, "agent.tool", func(ctx context.Context) error {
		t, ok := r.registry.Get(call.Function.Name)
		if !ok {
			err := fmt.Errorf("%w: %s", tool.ErrToolNotFound, call.Function.Name)
			record.Output, record.IsError = errorContent(err), true
			return err
		}

		args := json.RawMessage(call.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}

		res, err := t.Execute(ctx, args)
		if err != nil {
			record.Output, record.IsError = errorContent(err), true
			return err
		}
		record.Output, record.IsError = res.Content, res.IsError
		if res.IsError {
			return errors.New(res.Content)
		}
		return nil
	}, observability.AttrToolName.String(call.Function.Name), observability.AttrTurn.Int(turn))

	record.Duration = time.Since(start)

	event := logging.Info()
	if record.IsError {
		event = logging.Warn()
	}
	event.
		Add(logging.Component("agent")).
		Add(logging.Turn(turn)).
		Add(logging.ToolName(record.Name)).
		Add(logging.Duration(record.Duration)).
		Msg("tool call")

	return record
}

func errorContent(err error) string {
	return "Error: " + err.Error()
}

func addUsage(total *planner.Usage, u planner.Usage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}
