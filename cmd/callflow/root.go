package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/callflow/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "callflow",
	Short: "callflow drives scripted outbound calls",
	Long: `callflow decides what a voice agent says next on a scripted outbound call.
It serves the flow over HTTP and MCP, and rehearses calls in the terminal.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().String("script", "", "Script file overriding the built-in script")
	rootCmd.PersistentFlags().Bool("debug", false, "Log every transition and stage event")
}

// newApp builds the application from the persistent flags.
func newApp(cmd *cobra.Command) (*cli.App, error) {
	configPath, _ := cmd.Flags().GetString("config")
	scriptPath, _ := cmd.Flags().GetString("script")
	debug, _ := cmd.Flags().GetBool("debug")
	return cli.NewApp(cli.Options{
		ConfigPath: configPath,
		ScriptPath: scriptPath,
		Debug:      debug,
		LogOutput:  cmd.ErrOrStderr(),
	})
}
