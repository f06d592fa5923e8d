package cli

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PipeOpsHQ/airos/storage"
)

func NewSettingsCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and write pricing settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting, falling back to its default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			value, err := storage.Setting(cmd.Context(), store, args[0])
			if err != nil {
				return fmt.Errorf("setting %q: %w", args[0], err)
			}
			if root.Format == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{args[0]: value})
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			if key == "" {
				return fmt.Errorf("setting key is required")
			}
			store, err := root.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			return store.SetSetting(cmd.Context(), key, args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every setting, defaults included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := root.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			settings, err := storage.EffectiveSettings(cmd.Context(), store)
			if err != nil {
				return err
			}
			if root.Format == FormatJSON {
				return writeJSON(cmd.OutOrStdout(), settings)
			}
			keys := make([]string, 0, len(settings))
			for k := range settings {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%s\n", k, settings[k])
			}
			return tw.Flush()
		},
	})

	return cmd
}
