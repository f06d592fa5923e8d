package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PipeOpsHQ/airos/storage"
)

type TracesOptions struct {
	*RootOptions
	RunID  string
	NodeID string
	Status string
	Limit  int
	Offset int
}

func NewTracesCommand(root *RootOptions) *cobra.Command {
	opts := &TracesOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "traces",
		Short: "List recorded node invocations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status := storage.Status(opts.Status)
			if status != "" && !status.Valid() {
				return fmt.Errorf("unknown status %q", opts.Status)
			}
			store, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			traces, err := store.ListTraces(cmd.Context(), storage.ListQuery{
				RunID:  opts.RunID,
				NodeID: opts.NodeID,
				Status: status,
				Limit:  opts.Limit,
				Offset: opts.Offset,
			})
			if err != nil {
				return err
			}
			if opts.Format == FormatJSON {
				if traces == nil {
					traces = []storage.Trace{}
				}
				return writeJSON(cmd.OutOrStdout(), traces)
			}
			return printTraces(cmd.OutOrStdout(), traces, time.Now())
		},
	}
	cmd.Flags().StringVar(&opts.RunID, "run", "", "only traces of this run id")
	cmd.Flags().StringVar(&opts.NodeID, "node", "", "only traces of this node")
	cmd.Flags().StringVar(&opts.Status, "status", "", "only traces with this status")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of traces")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of traces to skip")
	return cmd
}
