package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/salesforce-mcp/domain/tool"
)

func TestToolBuilder_Basic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		toolName    string
		description string
		wantErr     error
	}{
		{name: "valid tool", toolName: "salesforce_query", description: "Run a query"},
		{name: "empty name fails", toolName: "", description: "Should fail", wantErr: tool.ErrEmptyName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			built, err := tool.NewBuilder(tt.toolName).
				WithDescription(tt.description).
				WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
					return tool.NewResult(string(input)), nil
				}).
				Build()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Build() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}

			if built.Name() != tt.toolName {
				t.Errorf("Name() = %v, want %v", built.Name(), tt.toolName)
			}
			if built.Description() != tt.description {
				t.Errorf("Description() = %v, want %v", built.Description(), tt.description)
			}
			if !built.InputSchema().IsEmpty() {
				t.Errorf("InputSchema() = %s, want empty", built.InputSchema().Raw())
			}
		})
	}
}

func TestDefinition_Execute(t *testing.T) {
	t.Parallel()

	echo := tool.NewBuilder("echo").
		WithHandler(func(ctx context.Context, input json.RawMessage) (tool.Result, error) {
			return tool.NewResult(string(input)), nil
		}).
		MustBuild()

	result, err := echo.Execute(context.Background(), json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Content != `{"a":1}` {
		t.Errorf("Content = %s, want {\"a\":1}", result.Content)
	}

	noHandler := tool.NewBuilder("empty").MustBuild()
	if _, err := noHandler.Execute(context.Background(), nil); !errors.Is(err, tool.ErrNoHandler) {
		t.Errorf("Execute() error = %v, want ErrNoHandler", err)
	}
}

func TestMustBuild_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("MustBuild() with empty name should panic")
		}
	}()
	tool.NewBuilder("").MustBuild()
}

func TestResult(t *testing.T) {
	t.Parallel()

	ok := tool.NewResult("0031x").WithDuration(time.Second)
	if ok.IsError || ok.Content != "0031x" || ok.Duration != time.Second {
		t.Errorf("NewResult() = %+v", ok)
	}

	failed := tool.NewErrorResult(errors.New("NOT_FOUND"))
	if !failed.IsError || failed.Content != "NOT_FOUND" {
		t.Errorf("NewErrorResult() = %+v", failed)
	}
	if !tool.NewErrorResult(nil).IsError {
		t.Error("NewErrorResult(nil) should still be an error")
	}
}

func TestSchema(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		schema    tool.Schema
		wantEmpty bool
		wantParam string
	}{
		{"empty", tool.EmptySchema(), true, `{"type":"object","properties":{}}`},
		{"nil", tool.NewSchema(nil), true, `{"type":"object","properties":{}}`},
		{"null", tool.NewSchema(json.RawMessage(`null`)), true, `{"type":"object","properties":{}}`},
		{
			"object",
			tool.NewSchema(json.RawMessage(`{"type":"object","properties":{"soql":{"type":"string"}}}`)),
			false,
			`{"type":"object","properties":{"soql":{"type":"string"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.schema.IsEmpty(); got != tt.wantEmpty {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.wantEmpty)
			}
			if got := string(tt.schema.Parameters()); got != tt.wantParam {
				t.Errorf("Parameters() = %s, want %s", got, tt.wantParam)
			}
		})
	}
}

func TestObjectSchema(t *testing.T) {
	t.Parallel()

	s := tool.ObjectSchema(map[string]json.RawMessage{
		"soql": json.RawMessage(`{"type":"string"}`),
	}, []string{"soql"})

	var decoded struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(s.Raw(), &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Type != "object" || len(decoded.Properties) != 1 || len(decoded.Required) != 1 {
		t.Errorf("ObjectSchema() = %s", s.Raw())
	}
}

func TestSchema_JSON(t *testing.T) {
	t.Parallel()

	var holder struct {
		Schema tool.Schema `json:"schema"`
	}
	if err := json.Unmarshal([]byte(`{"schema":{"type":"object"}}`), &holder); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if string(holder.Schema.Raw()) != `{"type":"object"}` {
		t.Errorf("Raw() = %s", holder.Schema.Raw())
	}

	out, err := json.Marshal(struct {
		Schema tool.Schema `json:"schema"`
	}{})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != `{"schema":{}}` {
		t.Errorf("Marshal() = %s, want {\"schema\":{}}", out)
	}
}

func TestValidateObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{`{}`, false},
		{`{"soql":"SELECT Id FROM Lead"}`, false},
		{`[1,2]`, true},
		{`not json`, true},
	}

	for _, tt := range tests {
		err := tool.ValidateObject(json.RawMessage(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateObject(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, tool.ErrInvalidInput) {
			t.Errorf("ValidateObject(%q) error = %v, want ErrInvalidInput", tt.in, err)
		}
	}
}
