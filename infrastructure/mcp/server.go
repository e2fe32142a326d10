package mcp

import (
	"context"
	"fmt"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/salesforce-mcp/domain/crm"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/observability"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/resilience"
)

// CRMServer wraps an MCP server exposing CRM tools and the record resource.
type CRMServer struct {
	srv        *mcpgo.Server
	tools      *CRMTools
	info       mcpgo.ServerInfo
	names      []string
	middleware []mcpgo.Middleware
}

// CRMServerConfig configures a CRM MCP server.
type CRMServerConfig struct {
	// Name is the server name.
	Name string

	// Version is the server version.
	Version string

	// Description is an optional server description.
	Description string

	// Instructions provides usage instructions for clients.
	Instructions string

	// Session is the shared authenticated CRM session.
	Session crm.Session

	// Executor bounds concurrent CRM calls. Nil uses defaults.
	Executor *resilience.Executor

	// Tracer records a span per tool call. Nil disables tracing.
	Tracer trace.Tracer

	// Meter receives tool and request metrics. Nil disables metrics.
	Meter metric.MeterProvider
}

// NewCRMServer creates a server with the four CRM tools and the record resource registered.
func NewCRMServer(cfg CRMServerConfig) *CRMServer {
	info := mcpgo.ServerInfo{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Description: cfg.Description,
		Capabilities: mcpgo.Capabilities{
			Tools:     true,
			Resources: true,
		},
	}

	var opts []mcpgo.Option
	if cfg.Instructions != "" {
		opts = append(opts, mcpgo.WithInstructions(cfg.Instructions))
	}

	meter := cfg.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider()
	}

	s := &CRMServer{
		srv:   mcpgo.NewServer(info, opts...),
		tools: NewCRMTools(cfg.Session, cfg.Executor, cfg.Tracer),
		info:  info,
		middleware: []mcpgo.Middleware{
			mcpgo.Recover(),
			mcpgo.RequestID(),
			mcpgo.OTel(
				mcpgo.WithMeterProvider(meter),
				mcpgo.WithOTelServiceName(cfg.Name),
			),
		},
	}

	metrics, err := observability.NewToolMetrics(meter.Meter(cfg.Name))
	if err != nil {
		logging.Warn().
			Add(logging.Component("mcp")).
			Add(logging.ErrorField(err)).
			Msg("tool metrics disabled")
	} else {
		s.tools.metrics = metrics
	}

	s.registerTools()
	s.registerResources()

	return s
}

func (s *CRMServer) registerTools() {
	s.srv.Tool(ToolGetRecord).
		Description("Retrieve one CRM record with all of its fields by object type and record id.").
		Handler(s.tools.GetRecord)
	s.srv.Tool(ToolQuery).
		Description("Run a SOQL query and return every matching record, following result pages.").
		Handler(s.tools.Query)
	s.srv.Tool(ToolCreate).
		Description("Create a CRM record of the given object type and return its new id.").
		Handler(s.tools.Create)
	s.srv.Tool(ToolUpdate).
		Description("Update fields of an existing CRM record. Returns true on success.").
		Handler(s.tools.Update)

	s.names = []string{ToolGetRecord, ToolQuery, ToolCreate, ToolUpdate}
}

func (s *CRMServer) registerResources() {
	s.srv.Resource(RecordURITemplate).
		Name("CRM record").
		Description("All fields of one CRM record.").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, _ map[string]string) (*mcpgo.ResourceContent, error) {
			text, err := s.tools.ReadRecord(ctx, uri)
			if err != nil {
				return nil, err
			}
			return &mcpgo.ResourceContent{
				URI:      uri,
				MimeType: "application/json",
				Text:     text,
			}, nil
		})
}

// Server returns the underlying mcp-go server.
func (s *CRMServer) Server() *mcpgo.Server {
	return s.srv
}

// Tools returns the handlers backing the server.
func (s *CRMServer) Tools() *CRMTools {
	return s.tools
}

// Info returns the advertised server metadata.
func (s *CRMServer) Info() mcpgo.ServerInfo {
	return s.info
}

// ToolNames returns the registered tool names in registration order.
func (s *CRMServer) ToolNames() []string {
	return append([]string(nil), s.names...)
}

// ServeHTTP serves until ctx is cancelled. Handler panics are recovered.
func (s *CRMServer) ServeHTTP(ctx context.Context, addr string, opts ...mcpgo.HTTPOption) error {
	err := mcpgo.ServeHTTPWithMiddleware(ctx, s.srv, addr, opts, mcpgo.WithMiddleware(s.middleware...))
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve mcp on %s: %w", addr, err)
	}
	return nil
}
