package cli

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/salesforce-mcp/application"
)

func (a *App) newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the instruction against a freshly launched server",
		Long: `Launches the tool server as a child process, waits for it to become
ready, registers its tools with the model and runs the configured
instruction. The final answer is printed as "Result: <text>".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loader.LoadAgent()
			if err != nil {
				return err
			}
			initLogging(cfg.Log)

			tracing, err := application.NewTracing("sfmcp-agent", cfg.Tracing)
			if err != nil {
				return err
			}
			defer shutdownTracing(tracing.Shutdown)

			_, err = application.RunAgent(cmd.Context(), application.AgentOptions{
				Config: cfg,
				Out:    a.stdout,
				Tracer: tracing.Tracer(),
			})
			return err
		},
	}
}
