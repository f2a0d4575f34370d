package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/manga-dl-go/api"
	"github.com/yourusername/manga-dl-go/api/handlers"
	"github.com/yourusername/manga-dl-go/internal/app"
	"github.com/yourusername/manga-dl-go/internal/domain"
	"github.com/yourusername/manga-dl-go/internal/infrastructure"
	"github.com/yourusername/manga-dl-go/pkg/logger"
)

var configPath = flag.String("config", "", "Path to config file")

func main() {
	flag.Parse()

	config, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Categorised JSON logs (tracker, proxy, error)
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Logging.LogsDir,
	})
	if err != nil {
		log.Fatal("Failed to initialize multi-logger", zap.Error(err))
	}
	defer multiLog.Close()

	log.Info("Starting manga-dl server",
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("backend", config.Backend.BaseURL),
		zap.Bool("retrieval", config.Retrieval.Enabled),
		zap.String("storage", config.Retrieval.Storage))

	client := infrastructure.NewBackendClient(&config.Backend, log)

	retriever, err := infrastructure.NewArtifactRetriever(&config.Retrieval, client, log)
	if err != nil {
		log.Fatal("Failed to initialize artifact retriever", zap.Error(err))
	}

	var history domain.JobHistoryRepository
	if config.History.DatabasePath != "" {
		repo, err := infrastructure.NewSQLiteJobRepository(config.History.DatabasePath)
		if err != nil {
			log.Fatal("Failed to initialize history repository", zap.Error(err))
		}
		defer repo.Close()
		history = repo
	}

	notifier := infrastructure.NewNotificationService(&config.Notification, log)

	tracker := app.NewTracker(client, retriever, &config.Tracker, log)
	tracker.SetNotifier(notifier)
	tracker.SetMultiLogger(multiLog)
	if history != nil {
		tracker.SetHistory(history)
	}

	if config.Tracker.RestoreOnStart && history != nil {
		restored, err := tracker.Restore()
		if err != nil {
			log.Warn("Failed to restore tracked jobs", zap.Error(err))
		} else if restored > 0 {
			log.Info("Restored tracked jobs", zap.Int("count", restored))
		}
	}

	enqueue := app.NewEnqueueService(client, tracker, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := handlers.NewSnapshotHub()
	go hub.Run(ctx, tracker.Snapshots())
	go notifyWhenIdle(ctx, hub, notifier)

	if err := tracker.Start(ctx); err != nil {
		log.Fatal("Failed to start tracker", zap.Error(err))
	}

	router, err := api.SetupRouter(config, api.Dependencies{
		Tracker:     tracker,
		Enqueue:     enqueue,
		History:     history,
		Hub:         hub,
		Logger:      log,
		MultiLogger: multiLog,
	})
	if err != nil {
		log.Fatal("Failed to set up router", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := tracker.Stop(); err != nil {
		log.Error("Error stopping tracker", zap.Error(err))
	}
	tracker.WaitForRetrievals()

	log.Info("Server exited")
}

// notifyWhenIdle sends a notification each time the tracked set drains
func notifyWhenIdle(ctx context.Context, hub *handlers.SnapshotHub, notifier *infrastructure.NotificationService) {
	updates, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	busy := false
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			if len(snap) > 0 {
				busy = true
				continue
			}
			if busy {
				busy = false
				notifier.NotifyTrackerIdle()
			}
		}
	}
}
