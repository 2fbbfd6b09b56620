package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the worker pool and cron scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.eng.Start(ctx); err != nil {
				return err
			}
			a.logger.Info("worker started",
				slog.String("store", a.cfg.Store),
				slog.String("client", a.cfg.Client),
				slog.Int("concurrency", a.cfg.dispatcherConfig().Concurrency),
			)

			<-ctx.Done()
			a.logger.Info("worker shutting down")
			// PersistentPostRunE stops the engine with the shutdown timeout.
			return nil
		},
	}
}
