package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/PipeOpsHQ/airos/internal/config"
	"github.com/PipeOpsHQ/airos/internal/logging"
	"github.com/PipeOpsHQ/airos/storage"
	storefactory "github.com/PipeOpsHQ/airos/storage/factory"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// RootOptions holds global flags and the configuration they resolve to.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Format     string

	Config config.Config
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "airos",
		Short:         "Reliability middleware for agent graph nodes",
		Long:          "airos records, repairs and reports on wrapped agent node invocations.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Format != FormatText && opts.Format != FormatJSON {
				return fmt.Errorf("invalid format %q: must be %s or %s", opts.Format, FormatText, FormatJSON)
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if opts.LogLevel != "" {
				cfg.Log.Level = opts.LogLevel
			}
			if _, err := logging.SetupWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to airos.yaml")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level override (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (text|json)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTracesCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))
	cmd.AddCommand(NewDemoCommand(opts))

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (o *RootOptions) openStore(ctx context.Context) (storage.Store, error) {
	store, err := storefactory.New(ctx, o.Config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", o.Config.Store.Backend, err)
	}
	return store, nil
}
