package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/felixgeelhaar/salesforce-mcp/domain/tool"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
)

var (
	// ErrNotConnected indicates the client is not connected.
	ErrNotConnected = errors.New("client not connected")

	// ErrAlreadyConnected indicates the client is already connected.
	ErrAlreadyConnected = errors.New("client already connected")

	// ErrConnectionFailed indicates the connection to the server failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrToolFailed indicates the server reported a tool-level error.
	ErrToolFailed = errors.New("tool execution failed")
)

// DefaultClientTimeout bounds each request to the server.
const DefaultClientTimeout = 60 * time.Second

// MCPToolDef represents a tool definition from an MCP server.
type MCPToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// MCPToolCall represents a tool call request.
type MCPToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPToolResult represents the result of a tool call.
type MCPToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// Text joins all text content parts.
func (r *MCPToolResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// MCPContent represents content in an MCP response.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MCPServerInfo contains information about an MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientConfig configures an MCP client.
type ClientConfig struct {
	// Name is the client name.
	Name string

	// Version is the client version.
	Version string

	// URL is the streamable HTTP endpoint, e.g. http://127.0.0.1:8001/mcp.
	URL string

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// ClientOption configures a client.
type ClientOption func(*ClientConfig)

// WithClientName sets the client name.
func WithClientName(name string) ClientOption {
	return func(c *ClientConfig) {
		c.Name = name
	}
}

// WithClientVersion sets the client version.
func WithClientVersion(version string) ClientOption {
	return func(c *ClientConfig) {
		c.Version = version
	}
}

// WithHTTPURL sets the server endpoint.
func WithHTTPURL(url string) ClientOption {
	return func(c *ClientConfig) {
		c.URL = url
	}
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// EndpointURL joins an address and path into the endpoint URL.
func EndpointURL(addr, path string) string {
	if path == "" {
		path = DefaultEndpointPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + addr + path
}

// MCPClient consumes tools from an MCP server over streamable HTTP.
type MCPClient struct {
	config     ClientConfig
	serverInfo *MCPServerInfo
	connected  bool
	mu         sync.RWMutex

	client *mcpclient.Client
}

// NewClient creates a new MCP client.
func NewClient(opts ...ClientOption) *MCPClient {
	cfg := ClientConfig{
		Name:    "sfmcp-agent",
		Version: "1.0.0",
		Timeout: DefaultClientTimeout,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &MCPClient{config: cfg}
}

// Config returns the client configuration.
func (c *MCPClient) Config() ClientConfig {
	return c.config
}

// Connect opens the transport and performs the initialize handshake.
func (c *MCPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return ErrAlreadyConnected
	}
	if c.config.URL == "" {
		return fmt.Errorf("%w: no URL specified", ErrConnectionFailed)
	}

	cl, err := mcpclient.NewStreamableHttpClient(c.config.URL, transport.WithHTTPTimeout(c.config.Timeout))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := cl.Start(ctx); err != nil {
		_ = cl.Close()
		return fmt.Errorf("%w: start transport: %v", ErrConnectionFailed, err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    c.config.Name,
		Version: c.config.Version,
	}

	res, err := cl.Initialize(ctx, req)
	if err != nil {
		_ = cl.Close()
		return fmt.Errorf("%w: initialize: %v", ErrConnectionFailed, err)
	}

	c.client = cl
	c.serverInfo = &MCPServerInfo{Name: res.ServerInfo.Name, Version: res.ServerInfo.Version}
	c.connected = true

	logging.Info().
		Add(logging.Component("mcp-client")).
		Add(logging.URL(c.config.URL)).
		Add(logging.Str("server", res.ServerInfo.Name)).
		Msg("connected")

	return nil
}

func (c *MCPClient) active() (*mcpclient.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

// Ping checks the server is responsive.
func (c *MCPClient) Ping(ctx context.Context) error {
	cl, err := c.active()
	if err != nil {
		return err
	}
	return cl.Ping(ctx)
}

// Close closes the connection to the server.
func (c *MCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	return c.client.Close()
}

// ListTools returns available tools from the server.
func (c *MCPClient) ListTools(ctx context.Context) ([]MCPToolDef, error) {
	cl, err := c.active()
	if err != nil {
		return nil, err
	}

	res, err := cl.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	defs := make([]MCPToolDef, 0, len(res.Tools))
	for _, t := range res.Tools {
		schema := t.RawInputSchema
		if len(schema) == 0 {
			schema, err = json.Marshal(t.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("encode schema of %s: %w", t.Name, err)
			}
		}
		defs = append(defs, MCPToolDef{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return defs, nil
}

// CallTool calls a tool on the server.
func (c *MCPClient) CallTool(ctx context.Context, call MCPToolCall) (*MCPToolResult, error) {
	cl, err := c.active()
	if err != nil {
		return nil, err
	}

	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, fmt.Errorf("%w: %v", tool.ErrInvalidInput, err)
		}
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = call.Name
	req.Params.Arguments = args

	res, err := cl.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", call.Name, err)
	}

	out := &MCPToolResult{IsError: res.IsError}
	for _, content := range res.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			out.Content = append(out.Content, MCPContent{Type: "text", Text: text.Text})
		}
	}
	return out, nil
}

// ReadResource reads a resource and returns its text contents.
func (c *MCPClient) ReadResource(ctx context.Context, uri string) (string, error) {
	cl, err := c.active()
	if err != nil {
		return "", err
	}

	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri

	res, err := cl.ReadResource(ctx, req)
	if err != nil {
		return "", fmt.Errorf("read resource %s: %w", uri, err)
	}

	var parts []string
	for _, content := range res.Contents {
		if text, ok := mcp.AsTextResourceContents(content); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// ServerInfo returns information about the connected server.
func (c *MCPClient) ServerInfo() *MCPServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Tools returns all server tools as agent tools.
func (c *MCPClient) Tools(ctx context.Context) ([]tool.Tool, error) {
	defs, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	tools := make([]tool.Tool, len(defs))
	for i, def := range defs {
		tools[i] = MCPDefToTool(def, c.CallTool)
	}
	return tools, nil
}

// ToolLister supplies agent tools. *MCPClient implements it.
type ToolLister interface {
	Tools(ctx context.Context) ([]tool.Tool, error)
}

// ImportToolsFromClient registers every server tool in registry and returns how many were added.
func ImportToolsFromClient(ctx context.Context, client ToolLister, registry tool.Registry) (int, error) {
	tools, err := client.Tools(ctx)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			if errors.Is(err, tool.ErrToolExists) {
				continue
			}
			return added, err
		}
		added++
	}
	return added, nil
}
