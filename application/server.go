package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	sfmcp "github.com/felixgeelhaar/salesforce-mcp"
	"github.com/felixgeelhaar/salesforce-mcp/domain/crm"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/bootstrap"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/config"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/mcp"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/observability"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/process"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/resilience"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/salesforce"
)

// ServerInstructions is advertised to MCP clients.
const ServerInstructions = "Read, query, create and update Salesforce records. " +
	"Records are also readable as record://{sobject}/{record_id}."

// ServeFunc serves a CRM server on addr until ctx ends.
type ServeFunc func(ctx context.Context, srv *mcp.CRMServer, addr string) error

// ServeOptions configures Serve.
type ServeOptions struct {
	Config config.ServerConfig

	// Out receives the readiness line. Defaults to stdout.
	Out io.Writer

	Tracer trace.Tracer

	// Meter receives tool and request metrics.
	Meter metric.MeterProvider

	// HTTPClient overrides the client used for authentication and CRM calls.
	HTTPClient *http.Client

	// Serve overrides the transport. Defaults to HTTP.
	Serve ServeFunc
}

func serveHTTP(ctx context.Context, srv *mcp.CRMServer, addr string) error {
	return srv.ServeHTTP(ctx, addr)
}

// Serve authenticates, binds the first free candidate port, announces
// readiness and serves until ctx is cancelled.
func Serve(ctx context.Context, opts ServeOptions) error {
	cfg := opts.Config
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	serve := opts.Serve
	if serve == nil {
		serve = serveHTTP
	}

	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		logging.Error().
			Add(logging.Component("server")).
			Add(logging.Str("missing", strings.Join(missing, ","))).
			Msg("credentials not configured")
		return &crm.AuthenticationError{
			Err: fmt.Errorf("%w: set %s", crm.ErrMissingCredentials, strings.Join(missing, ", ")),
		}
	}

	sfOpts := []salesforce.Option{
		salesforce.WithAPIVersion(cfg.APIVersion),
		salesforce.WithRequestTimeout(cfg.RequestTimeout),
	}
	if opts.HTTPClient != nil {
		sfOpts = append(sfOpts, salesforce.WithHTTPClient(opts.HTTPClient))
	}

	session, err := salesforce.Login(ctx, salesforce.Credentials{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, sfOpts...)
	if err != nil {
		logging.Error().
			Add(logging.Component("server")).
			Add(logging.ErrorField(err)).
			Msg("authentication failed")
		return err
	}

	lc, err := bootstrap.NewLifecycle(cfg.Host)
	if err != nil {
		return err
	}
	defer lc.Stop()

	if err := lc.BeginProbing(); err != nil {
		return err
	}

	port, err := bootstrap.ProbePort(cfg.Host, cfg.BasePort, cfg.PortCandidates)
	if err != nil {
		_ = lc.Fail(err)
		msg := "port probe failed"
		if bootstrap.IsPortExhausted(err) {
			msg = "no free port"
		}
		logging.Error().
			Add(logging.Component("server")).
			Add(logging.ErrorField(err)).
			Msg(msg)
		return err
	}
	if err := lc.Bind(port); err != nil {
		return err
	}

	srv := mcp.NewCRMServer(mcp.CRMServerConfig{
		Name:         sfmcp.ServerName,
		Version:      sfmcp.Version,
		Instructions: ServerInstructions,
		Session:      session,
		Executor: resilience.NewExecutorWithOptions(
			resilience.WithMaxConcurrent(cfg.MaxConcurrent),
			resilience.WithTimeout(cfg.RequestTimeout),
		),
		Tracer: opts.Tracer,
		Meter:  opts.Meter,
	})

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	if err := lc.Serve(); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out, process.ReadyLine(addr)); err != nil {
		_ = lc.Fail(err)
		return fmt.Errorf("announce readiness: %w", err)
	}

	logging.Info().
		Add(logging.Component("server")).
		Add(logging.Port(port)).
		Add(logging.URL(mcp.EndpointURL(addr, cfg.EndpointPath))).
		Add(logging.Int("tools", len(srv.ToolNames()))).
		Msg("serving")

	if err := serve(ctx, srv, addr); err != nil && !errors.Is(err, context.Canceled) {
		_ = lc.Fail(err)
		return err
	}

	_ = lc.Shutdown("context done")
	logging.Info().
		Add(logging.Component("server")).
		Add(logging.State(string(lc.Phase()))).
		Msg("server stopped")
	return nil
}

// NewTracing builds the trace and meter providers selected by cfg.
func NewTracing(serviceName string, cfg config.TracingConfig) (*observability.Provider, error) {
	return observability.Setup(serviceName, sfmcp.Version, cfg.Exporter, cfg.Endpoint)
}
