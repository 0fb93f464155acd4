package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin HTTP API",
		Long: `Serve the admin API: POST /api/rebuild, GET /api/integrity, GET /api/runs,
GET /api/runs/:id, GET /api/live, plus /healthcheck and /metrics. Stops on SIGINT
or SIGTERM.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := rootOpts.openApp(ctx)
			if err != nil {
				_ = rootOpts.formatter(cmd).Error(ErrCodeConfig, err.Error(), nil)
				return err
			}
			defer a.Close(context.Background())
			if addr != "" {
				a.Cfg.HTTP.Addr = addr
			}
			if err := a.WatchRuns(ctx); err != nil {
				a.Log.Warn("run events unavailable; /api/live stays empty", "error", err)
			}
			a.Log.Info("serving admin api", "addr", a.Cfg.HTTP.Addr)
			if err := a.Server().Run(ctx); err != nil {
				return WrapExitError(ExitFailure, "server", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}
