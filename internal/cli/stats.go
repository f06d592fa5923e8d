package cli

import (
	"github.com/spf13/cobra"

	"github.com/PipeOpsHQ/airos/analytics"
)

func NewStatsCommand(root *RootOptions) *cobra.Command {
	var window int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize outcomes, savings and reliability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := root.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if window <= 0 {
				window = root.Config.API.Window
			}
			report, err := analytics.Load(cmd.Context(), store, window)
			if err != nil {
				return err
			}
			if root.Format == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().IntVar(&window, "window", 0, "records behind the reliability score (default from config)")
	return cmd
}
