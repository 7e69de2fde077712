package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the resolution worker pool",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return cfg.Validate("worker")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		pool := queue.NewPool(env.store, cfg.Queue)
		env.orch.RegisterHandlers(pool)

		zap.L().Info("worker pool starting",
			zap.Int("concurrency", cfg.Queue.Concurrency),
			zap.Duration("poll_interval", cfg.Queue.PollInterval))

		if err := pool.Run(ctx); err != nil {
			return err
		}
		zap.L().Info("worker pool stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
