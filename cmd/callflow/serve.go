package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/callflow/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the callflow engine in server mode.

Persisted calls are driven turn by turn over a JSON API; live calls run the
stage orchestrator and stream their events over SSE. With --mcp the model
tools are mounted on /sse and /message, sharing the live calls.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		withMCP, _ := cmd.Flags().GetBool("mcp")
		publicURL, _ := cmd.Flags().GetString("public-url")

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		// Context cancelled on interrupt or terminate signals.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return cli.RunServe(ctx, app, cli.ServeOptions{
			Listen:    listen,
			MCP:       withMCP,
			PublicURL: publicURL,
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Address to listen on (overrides the configuration)")
	serveCmd.Flags().Bool("mcp", false, "Mount the MCP tools over SSE")
	serveCmd.Flags().String("public-url", "", "Base URL MCP clients use to reach this server")
}
