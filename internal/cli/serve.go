package cli

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/PipeOpsHQ/airos/dashboard/api"
	"github.com/PipeOpsHQ/airos/internal/telemetry"
)

type ServeOptions struct {
	*RootOptions
	Addr string
}

func NewServeCommand(root *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard read API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	shutdown, err := telemetry.Init(ctx, opts.Config.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	store, err := opts.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	addr := opts.Addr
	if addr == "" {
		addr = opts.Config.API.Addr
	}
	srv, err := api.NewServer(api.Config{
		Addr:           addr,
		Store:          store,
		AllowedOrigins: opts.Config.API.AllowedOrigins,
		Window:         opts.Config.API.Window,
	})
	if err != nil {
		return err
	}
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
