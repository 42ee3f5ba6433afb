package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/callflow/internal/cli"
	"github.com/aretw0/callflow/pkg/runner"
)

// rehearseCmd represents the rehearse command
var rehearseCmd = &cobra.Command{
	Use:   "rehearse",
	Short: "Rehearse a call in the terminal",
	Long: `Plays a live call on the console. Agent lines and generation requests are
printed; every line you type is the caller's reply. End the input (Ctrl+D) to
hang up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		metadata, _ := cmd.Flags().GetString("metadata")
		decisions, _ := cmd.Flags().GetBool("decisions")
		report, _ := cmd.Flags().GetBool("report")
		quiet, _ := cmd.Flags().GetBool("quiet")

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		sm := runner.NewSignalManager(cmd.Context())
		defer sm.Stop()

		_, err = cli.RunRehearsal(sm.Context(), app, cli.RehearseOptions{
			CallID:        id,
			Metadata:      metadata,
			ShowDecisions: decisions,
			Banner:        !quiet,
			Report:        report,
			Input:         cmd.InOrStdin(),
			Output:        cmd.OutOrStdout(),
		})
		return err
	},
}

func init() {
	rootCmd.AddCommand(rehearseCmd)
	rehearseCmd.Flags().String("id", "", "Call id (random when empty)")
	rehearseCmd.Flags().String("metadata", "", `Caller data as JSON, e.g. '{"patient_name":"Asha"}'`)
	rehearseCmd.Flags().BoolP("decisions", "d", false, "Print the policy decision after every turn")
	rehearseCmd.Flags().Bool("report", false, "Print the session-end report as JSON")
	rehearseCmd.Flags().BoolP("quiet", "q", false, "Skip the banner")
}
