package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/callflow/internal/cli"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server on stdio",
	Long: `Starts the callflow engine as an MCP server on standard input and output.
This lets a language model ask for signals, next states and instructions.

Stage completion needs live calls: use 'callflow serve --mcp' for that.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.RunMCP(app)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
