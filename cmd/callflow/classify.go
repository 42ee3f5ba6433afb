package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/callflow/internal/cli"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [utterance]",
	Short: "Classify a caller utterance",
	Long: `Prints the signals of an utterance as JSON. With --topic the answer rule of
that waypoint applies and the next waypoint is reported too.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")

		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return cli.Classify(app, cmd.OutOrStdout(), strings.Join(args, " "), topic)
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringP("topic", "t", "", "Waypoint the utterance answers, e.g. treatment")
}
