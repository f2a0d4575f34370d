package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/yourusername/manga-dl-go/internal/app"
	"github.com/yourusername/manga-dl-go/internal/domain"
	"github.com/yourusername/manga-dl-go/internal/infrastructure"
	"github.com/yourusername/manga-dl-go/pkg/logger"
)

// downloadReport collects the tracker's events for the final summary and
// forwards them to the desktop notifier
type downloadReport struct {
	notifier *infrastructure.NotificationService

	mu       sync.Mutex
	location string
	failure  string
}

func (r *downloadReport) NotifyRetrievalSucceeded(job domain.DownloadJob, location string) {
	r.mu.Lock()
	r.location = location
	r.mu.Unlock()
	r.notifier.NotifyRetrievalSucceeded(job, location)
}

func (r *downloadReport) NotifyRetrievalFailed(job domain.DownloadJob, err error) {
	r.mu.Lock()
	r.failure = domain.FailureMessage(err)
	r.mu.Unlock()
	r.notifier.NotifyRetrievalFailed(job, err)
}

func (r *downloadReport) NotifyJobFailed(job domain.DownloadJob) {
	r.mu.Lock()
	r.failure = job.Message
	r.mu.Unlock()
	r.notifier.NotifyJobFailed(job)
}

var downloadCmd = &cobra.Command{
	Use:   "download [comic-id]",
	Short: "Download chapters directly from the backend and wait for the archive",
	Long: `Enqueue a download on the backend and track it in this process until the
archive is saved. The server is not needed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config, err := app.LoadConfig(configPath)
		exitOnError(err)

		if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
			config.Backend.BaseURL = backend
		}
		if output, _ := cmd.Flags().GetString("output"); output != "" {
			config.Retrieval.Enabled = true
			config.Retrieval.Storage = "local"
			config.Retrieval.OutputDir = output
		}

		log, err := logger.New(logger.Config{Level: "warn", Format: "console", OutputPath: "stderr"})
		exitOnError(err)
		defer log.Sync()

		client := infrastructure.NewBackendClient(&config.Backend, log)

		req, err := buildRequest(cmd, client, args[0])
		exitOnError(err)

		retriever, err := infrastructure.NewArtifactRetriever(&config.Retrieval, client, log)
		exitOnError(err)
		if storing, ok := retriever.(*infrastructure.StoringRetriever); ok {
			storing.SetProgressFunc(func(job domain.DownloadJob, size int64) io.Writer {
				return progressbar.DefaultBytes(size, "saving "+truncate(job.DisplayTitle(), 30))
			})
		}

		notifier := infrastructure.NewNotificationService(&config.Notification, log)
		report := &downloadReport{notifier: notifier}

		tracker := app.NewTracker(client, retriever, &config.Tracker, log)
		tracker.SetNotifier(report)

		noHistory, _ := cmd.Flags().GetBool("no-history")
		if !noHistory && config.History.DatabasePath != "" {
			repo, err := infrastructure.NewSQLiteJobRepository(config.History.DatabasePath)
			exitOnError(err)
			defer repo.Close()
			tracker.SetHistory(repo)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		job, err := app.NewEnqueueService(client, tracker, log).Enqueue(ctx, req)
		exitOnError(err)
		fmt.Printf("Job %s enqueued: %s, %d chapters as %s\n", job.JobID, job.DisplayTitle(), len(req.Chapters), req.Format)

		exitOnError(tracker.Start(ctx))

		bar := progressbar.NewOptions(100,
			progressbar.OptionSetDescription(truncate(job.DisplayTitle(), 30)),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
		)

		interrupted := false
		snapshots := tracker.Snapshots()
	loop:
		for {
			select {
			case <-ctx.Done():
				interrupted = true
				break loop
			case snap := <-snapshots:
				current, ok := findJob(snap, job.JobID)
				if !ok {
					break loop
				}
				if p := current.Progress(); p >= 0 {
					_ = bar.Set(p)
				}
				bar.Describe(fmt.Sprintf("%s [%s]", truncate(current.DisplayTitle(), 30), current.LastKnownState))
			}
		}
		_ = bar.Finish()
		fmt.Println()

		if interrupted {
			cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := tracker.CancelJob(cancelCtx, job.JobID); err != nil && !app.IsNotTracked(err) {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			} else {
				fmt.Println("Download cancelled")
			}
			cancel()
		}

		tracker.WaitForRetrievals()
		_ = tracker.Stop()
		notifier.NotifyTrackerIdle()

		report.mu.Lock()
		defer report.mu.Unlock()
		switch {
		case report.failure != "":
			fmt.Fprintf(os.Stderr, "Failed: %s\n", report.failure)
			os.Exit(1)
		case report.location != "":
			fmt.Printf("Saved: %s\n", report.location)
		case interrupted:
			os.Exit(130)
		}
	},
}

func findJob(jobs []domain.DownloadJob, jobID string) (domain.DownloadJob, bool) {
	for _, j := range jobs {
		if j.JobID == jobID {
			return j, true
		}
	}
	return domain.DownloadJob{}, false
}

func init() {
	addSelectionFlags(downloadCmd)
	downloadCmd.Flags().String("backend", "", "Backend URL (overrides config)")
	downloadCmd.Flags().StringP("output", "o", "", "Directory to save the archive in (overrides config)")
	downloadCmd.Flags().Bool("no-history", false, "Don't record the job in history")
}
