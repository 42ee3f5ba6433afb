package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/callflow/internal/cli"
)

// scriptCmd represents the script command
var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Show the stage script or the flow graph",
	Long: `Prints the active script (built-in, or --script) as rendered markdown.
With --mermaid it outputs a Mermaid diagram (graph TD) of the transition graph
instead; --session highlights the path of a persisted call.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mermaid, _ := cmd.Flags().GetBool("mermaid")
		sessionID, _ := cmd.Flags().GetString("session")
		raw, _ := cmd.Flags().GetBool("raw")
		style, _ := cmd.Flags().GetString("style")

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if mermaid || sessionID != "" {
			return cli.RenderGraph(cmd.Context(), app, cmd.OutOrStdout(), sessionID)
		}
		return cli.RenderScript(app, cmd.OutOrStdout(), cli.ScriptOptions{Raw: raw, Style: style})
	},
}

func init() {
	rootCmd.AddCommand(scriptCmd)
	scriptCmd.Flags().Bool("mermaid", false, "Output the transition graph as Mermaid")
	scriptCmd.Flags().String("session", "", "Highlight the path of a persisted call (implies --mermaid)")
	scriptCmd.Flags().Bool("raw", false, "Print markdown without rendering")
	scriptCmd.Flags().String("style", "", "Glamour style: dark, light or notty (auto when empty)")
}
