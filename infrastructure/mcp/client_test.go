package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/storage/memory"
)

// newStreamableServer serves the CRM tools through a streamable HTTP MCP
// server so the client can be exercised over a real transport.
func newStreamableServer(t *testing.T) *httptest.Server {
	t.Helper()

	crmServer := newTestServer()
	s := server.NewMCPServer("Local Salesforce MCP", "test",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.AddTool(mcp.NewTool(ToolGetRecord,
		mcp.WithDescription("Retrieve one CRM record."),
		mcp.WithString("sobject", mcp.Required()),
		mcp.WithString("record_id", mcp.Required()),
	), forwardTo(crmServer.Tools().GetRecord))
	s.AddTool(mcp.NewTool(ToolQuery,
		mcp.WithDescription("Run a SOQL query."),
		mcp.WithString("soql", mcp.Required()),
	), forwardTo(crmServer.Tools().Query))
	s.AddTool(mcp.NewTool(ToolUpdate,
		mcp.WithDescription("Update a record."),
		mcp.WithString("sobject", mcp.Required()),
		mcp.WithString("record_id", mcp.Required()),
		mcp.WithObject("payload", mcp.Required()),
	), forwardTo(crmServer.Tools().Update))

	s.AddResourceTemplate(
		mcp.NewResourceTemplate(RecordURITemplate, "CRM record", mcp.WithTemplateMIMEType("application/json")),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			text, err := crmServer.Tools().ReadRecord(ctx, req.Params.URI)
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: text},
			}, nil
		},
	)

	ts := httptest.NewServer(server.NewStreamableHTTPServer(s))
	t.Cleanup(ts.Close)
	return ts
}

// forwardTo adapts a typed CRM handler to a tool handler that reports
// failures as isError results.
func forwardTo[T any](fn func(context.Context, T) (string, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var in T
		if err := req.BindArguments(&in); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := fn(ctx, in)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

func connectedClient(t *testing.T) *MCPClient {
	t.Helper()

	ts := newStreamableServer(t)
	c := NewClient(WithHTTPURL(ts.URL+DefaultEndpointPath), WithRequestTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientOptions(t *testing.T) {
	t.Parallel()

	c := NewClient(
		WithClientName("test-client"),
		WithClientVersion("2.0.0"),
		WithHTTPURL("http://127.0.0.1:8001/mcp"),
		WithRequestTimeout(time.Second),
	)
	cfg := c.Config()

	if cfg.Name != "test-client" {
		t.Errorf("Name = %s, want test-client", cfg.Name)
	}
	if cfg.Version != "2.0.0" {
		t.Errorf("Version = %s, want 2.0.0", cfg.Version)
	}
	if cfg.URL != "http://127.0.0.1:8001/mcp" {
		t.Errorf("URL = %s", cfg.URL)
	}
	if cfg.Timeout != time.Second {
		t.Errorf("Timeout = %v, want 1s", cfg.Timeout)
	}

	WithRequestTimeout(0)(&cfg)
	if cfg.Timeout != time.Second {
		t.Errorf("WithRequestTimeout(0) changed Timeout to %v", cfg.Timeout)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	cfg := NewClient().Config()
	if cfg.Name != "sfmcp-agent" {
		t.Errorf("Name = %s, want sfmcp-agent", cfg.Name)
	}
	if cfg.Timeout != DefaultClientTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultClientTimeout)
	}
}

func TestEndpointURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr, path, want string
	}{
		{"127.0.0.1:8001", "", "http://127.0.0.1:8001/mcp"},
		{"127.0.0.1:8003", "/mcp", "http://127.0.0.1:8003/mcp"},
		{"localhost:9000", "rpc", "http://localhost:9000/rpc"},
	}
	for _, tt := range tests {
		if got := EndpointURL(tt.addr, tt.path); got != tt.want {
			t.Errorf("EndpointURL(%s, %s) = %s, want %s", tt.addr, tt.path, got, tt.want)
		}
	}
}

func TestClient_NotConnected(t *testing.T) {
	t.Parallel()

	c := NewClient(WithHTTPURL("http://127.0.0.1:1/mcp"))
	ctx := context.Background()

	if _, err := c.ListTools(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ListTools() error = %v, want ErrNotConnected", err)
	}
	if _, err := c.CallTool(ctx, MCPToolCall{Name: ToolQuery}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("CallTool() error = %v, want ErrNotConnected", err)
	}
	if _, err := c.ReadResource(ctx, "record://Lead/00Q1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ReadResource() error = %v, want ErrNotConnected", err)
	}
	if err := c.Ping(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Ping() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
	if c.ServerInfo() != nil {
		t.Error("ServerInfo() should be nil before Connect")
	}
}

func TestClient_ConnectWithoutURL(t *testing.T) {
	t.Parallel()

	err := NewClient().Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_ConnectAndList(t *testing.T) {
	t.Parallel()

	c := connectedClient(t)
	ctx := context.Background()

	if info := c.ServerInfo(); info == nil || info.Name != "Local Salesforce MCP" {
		t.Errorf("ServerInfo() = %+v", info)
	}
	if err := c.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if err := c.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}

	defs, err := c.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("len(ListTools()) = %d, want 3", len(defs))
	}
	for _, def := range defs {
		if len(def.InputSchema) == 0 {
			t.Errorf("%s has no input schema", def.Name)
		}
	}
}

func TestClient_CallTool(t *testing.T) {
	t.Parallel()

	c := connectedClient(t)
	ctx := context.Background()

	res, err := c.CallTool(ctx, MCPToolCall{
		Name:      ToolGetRecord,
		Arguments: json.RawMessage(`{"sobject":"Lead","record_id":"00Q1"}`),
	})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("CallTool() IsError, content = %s", res.Text())
	}
	if res.Text() != `{"Id":"00Q1","LastName":"Smith"}` {
		t.Errorf("Text() = %s", res.Text())
	}

	failed, err := c.CallTool(ctx, MCPToolCall{
		Name:      ToolGetRecord,
		Arguments: json.RawMessage(`{"sobject":"Lead","record_id":"nope"}`),
	})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	if !failed.IsError {
		t.Error("CallTool() on missing record should report IsError")
	}

	if _, err := c.CallTool(ctx, MCPToolCall{Name: ToolQuery, Arguments: json.RawMessage(`[1]`)}); err == nil {
		t.Error("CallTool() with non-object arguments should fail")
	}
}

func TestClient_ReadResource(t *testing.T) {
	t.Parallel()

	c := connectedClient(t)

	text, err := c.ReadResource(context.Background(), "record://Lead/00Q2")
	if err != nil {
		t.Fatalf("ReadResource() error = %v", err)
	}
	if text != `{"Id":"00Q2","LastName":"Jones"}` {
		t.Errorf("ReadResource() = %s", text)
	}
}

func TestImportToolsFromClient(t *testing.T) {
	t.Parallel()

	c := connectedClient(t)
	registry := memory.NewToolRegistry()
	ctx := context.Background()

	added, err := ImportToolsFromClient(ctx, c, registry)
	if err != nil {
		t.Fatalf("ImportToolsFromClient() error = %v", err)
	}
	if added != 3 || registry.Count() != 3 {
		t.Errorf("added = %d, Count() = %d, want 3", added, registry.Count())
	}

	again, err := ImportToolsFromClient(ctx, c, registry)
	if err != nil {
		t.Fatalf("second ImportToolsFromClient() error = %v", err)
	}
	if again != 0 {
		t.Errorf("second import added %d, want 0", again)
	}

	update, ok := registry.Get(ToolUpdate)
	if !ok {
		t.Fatal("registry should contain the update tool")
	}
	result, err := update.Execute(ctx, json.RawMessage(`{"sobject":"Lead","record_id":"00Q2","payload":{"LastName":"MCP Agent Action"}}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.IsError || result.Content != "true" {
		t.Errorf("Execute() = %+v, want true", result)
	}
}
