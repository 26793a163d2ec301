package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"signup-service/internal/api/router"
	"signup-service/internal/config"
	"signup-service/pkg/logger"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run promotion workers and the reconciliation sweeper",
	Long: `Consume promotion jobs from the configured queue and periodically
re-enqueue events that have free capacity and a waiting list. No HTTP API is
served.`,
	Run: func(cmd *cobra.Command, args []string) {
		startWorker()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func startWorker() {
	cfg := config.Get()

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	components, err := router.NewComponents(db, cfg)
	if err != nil {
		logger.Error("Failed to build application: %v", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components.QueueService.StartWorkers()
	logger.Info("Promotion worker started (queue=%s, workers=%d)", cfg.Queue.Type, cfg.Queue.Workers)

	// Blocks until a signal arrives.
	components.SignUpService.RunSweeper(ctx, cfg.Queue.Sweep())

	logger.Info("Stopping queue workers...")
	components.QueueService.StopWorkers()
	logger.Info("Worker exited")
}
