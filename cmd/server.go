package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"signup-service/internal/api/router"
	"signup-service/internal/config"
	"signup-service/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	port       string
	runWorkers bool
	runSweeper bool
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP server",
	Long: `Start the sign-up HTTP API. By default the process also runs the
promotion queue workers and the reconciliation sweeper; disable them with
--workers=false when they run in a separate "worker" deployment.`,
	Run: func(cmd *cobra.Command, args []string) {
		startServer()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Flags for server command
	serverCmd.Flags().StringVarP(&port, "port", "p", "", "Port for the server to listen on (overrides server.port)")
	serverCmd.Flags().BoolVar(&runWorkers, "workers", true, "Run promotion queue workers in this process")
	serverCmd.Flags().BoolVar(&runSweeper, "sweeper", true, "Run the promotion reconciliation sweeper in this process")
}

func startServer() {
	cfg := config.Get()
	if port != "" {
		cfg.Server.Port = port
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	components, err := router.NewSignUpRouter(db, cfg)
	if err != nil {
		logger.Error("Failed to build application: %v", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var background sync.WaitGroup
	if runWorkers {
		components.QueueService.StartWorkers()
	}
	if runSweeper {
		background.Add(1)
		go func() {
			defer background.Done()
			components.SignUpService.RunSweeper(ctx, cfg.Queue.Sweep())
		}()
	}

	srv := &http.Server{
		Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:        components.Router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting sign-up server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}

	stop()
	background.Wait()
	if runWorkers {
		logger.Info("Stopping queue workers...")
		components.QueueService.StopWorkers()
	}

	logger.Info("Server exited")
}
