package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrScriptExhausted is returned once every scripted response has been served.
var ErrScriptExhausted = errors.New("script exhausted")

// ScriptStep is one canned completion.
type ScriptStep struct {
	// Response is returned when Err is nil.
	Response CompletionResponse

	// Err, when set, is returned instead of Response.
	Err error

	// Condition is an optional assertion on the incoming request.
	Condition func(CompletionRequest) bool
}

// ConditionFailedError indicates a step's condition rejected the request.
type ConditionFailedError struct {
	StepIndex int
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition failed at step %d", e.StepIndex)
}

// ScriptedProvider replays a fixed sequence of completions for deterministic runs.
// Every request is recorded.
type ScriptedProvider struct {
	mu       sync.Mutex
	steps    []ScriptStep
	index    int
	requests []CompletionRequest
}

var _ Provider = (*ScriptedProvider)(nil)

// NewScriptedProvider creates a scripted provider with the given steps.
func NewScriptedProvider(steps ...ScriptStep) *ScriptedProvider {
	return &ScriptedProvider{steps: steps}
}

// Reply is a step that answers with plain text.
func Reply(content string) ScriptStep {
	return ScriptStep{Response: CompletionResponse{
		Message:      Message{Role: RoleAssistant, Content: content},
		FinishReason: "stop",
	}}
}

// CallTools is a step that requests the given tool calls.
func CallTools(calls ...ToolCall) ScriptStep {
	return ScriptStep{Response: CompletionResponse{
		Message:      Message{Role: RoleAssistant, ToolCalls: calls},
		FinishReason: "tool_calls",
	}}
}

// NewToolCall builds a function tool call.
func NewToolCall(id, name, arguments string) ToolCall {
	return ToolCall{ID: id, Type: "function", Function: FunctionCall{Name: name, Arguments: arguments}}
}

// Name returns the provider name.
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// Complete returns the next scripted response.
func (p *ScriptedProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, cloneRequest(req))

	if p.index >= len(p.steps) {
		return CompletionResponse{}, ErrScriptExhausted
	}

	step := p.steps[p.index]
	if step.Condition != nil && !step.Condition(req) {
		return CompletionResponse{}, &ConditionFailedError{StepIndex: p.index}
	}

	p.index++
	if step.Err != nil {
		return CompletionResponse{}, step.Err
	}
	return step.Response, nil
}

// Requests returns a copy of every request received so far.
func (p *ScriptedProvider) Requests() []CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Remaining returns the number of unserved steps.
func (p *ScriptedProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps) - p.index
}

// Reset rewinds the script and forgets recorded requests.
func (p *ScriptedProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = 0
	p.requests = nil
}

func cloneRequest(req CompletionRequest) CompletionRequest {
	msgs := make([]Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	return req
}
