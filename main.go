package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/api"
	"github.com/archoctopus/archoctopus-go/internal/config"
	"github.com/archoctopus/archoctopus-go/internal/core"
	"github.com/archoctopus/archoctopus-go/internal/inbox"
	"github.com/archoctopus/archoctopus-go/internal/jobs"
	"github.com/archoctopus/archoctopus-go/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize the core application components
	app, err := core.New(cfg, logger)
	if err != nil {
		logger.Fatal("Fatal error during application setup", zap.Error(err))
	}

	scheduler := jobs.StartJobs(app.JobManager(), cfg.Refresh.Interval, logger)

	var watcher *inbox.Watcher
	if cfg.Inbox.Path != "" {
		watcher = inbox.New(cfg.Inbox.Path, app.Tasks(), logger)
		if err := watcher.Start(); err != nil {
			logger.Warn("Inbox watcher could not start", zap.String("path", cfg.Inbox.Path), zap.Error(err))
			watcher = nil
		}
	}

	// Setup the API server
	server := api.NewServer(app)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine so it doesn't block.
	go func() {
		logger.Info("Starting web server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Could not start server", zap.Error(err))
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if scheduler != nil {
		scheduler.Stop()
	}
	if watcher != nil {
		watcher.Stop()
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := app.Close(ctx); err != nil {
		logger.Error("Application did not shut down cleanly", zap.Error(err))
	}
	logger.Info("Server exiting")
}
