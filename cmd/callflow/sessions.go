package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/callflow/internal/cli"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Inspect persisted calls",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted call ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.ListSessions(cmd.Context(), app, cmd.OutOrStdout())
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a persisted call as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.ShowSession(cmd.Context(), app, cmd.OutOrStdout(), args[0])
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:     "delete [id]",
	Aliases: []string{"rm"},
	Short:   "Delete a persisted call",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.DeleteSession(cmd.Context(), app, args[0])
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd)
}
