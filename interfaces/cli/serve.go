package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/salesforce-mcp/application"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
)

func (a *App) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the CRM tools over MCP",
		Long: `Authenticates with the client-credentials flow, binds the first free
port in the candidate range and serves MCP over HTTP until interrupted.

A line "SFMCP_READY <host:port>" is printed on stdout once the port is bound.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loader.LoadServer()
			if err != nil {
				return err
			}
			initLogging(cfg.Log)

			tracing, err := application.NewTracing("sfmcp-server", cfg.Tracing)
			if err != nil {
				return err
			}
			defer shutdownTracing(tracing.Shutdown)

			return application.Serve(cmd.Context(), application.ServeOptions{
				Config: cfg,
				Out:    a.stdout,
				Tracer: tracing.Tracer(),
				Meter:  tracing.MeterProvider(),
			})
		},
	}
}

func shutdownTracing(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logging.Warn().
			Add(logging.Component("cli")).
			Add(logging.ErrorField(err)).
			Msg("flush telemetry")
	}
}
