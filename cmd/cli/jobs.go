package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/yourusername/manga-dl-go/api/handlers"
	"github.com/yourusername/manga-dl-go/internal/domain"
)

const waitPollInterval = time.Second

type jobList struct {
	Jobs  []handlers.JobView `json:"jobs"`
	Count int                `json:"count"`
}

type historyList struct {
	Records []domain.JobRecord `json:"records"`
	Count   int                `json:"count"`
}

var addCmd = &cobra.Command{
	Use:   "add [comic-id]",
	Short: "Enqueue a chapter download on the server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		wait, _ := cmd.Flags().GetBool("wait")

		req, err := buildRequest(cmd, catalogClient(), args[0])
		exitOnError(err)

		var job handlers.JobView
		exitOnError(callServer(http.MethodPost, "/tracker/jobs", req, &job))

		fmt.Printf("Download enqueued!\n")
		fmt.Printf("Job ID:   %s\n", job.JobID)
		fmt.Printf("Title:    %s\n", job.Title)
		fmt.Printf("Chapters: %d\n", len(req.Chapters))
		fmt.Printf("Format:   %s\n", req.Format)

		if wait {
			exitOnError(waitForJob(job.JobID, job.Title))
		}
	},
}

// waitForJob polls the server until the job leaves the tracked set and
// reports the outcome recorded in history
func waitForJob(jobID, title string) error {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription(truncate(title, 30)),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
	)

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		var job handlers.JobView
		err := callServer(http.MethodGet, "/tracker/jobs/"+jobID, nil, &job)
		if isNotFound(err) {
			break
		}
		if err != nil {
			return err
		}
		if p := job.Progress(); p >= 0 {
			_ = bar.Set(p)
		}
		bar.Describe(fmt.Sprintf("%s [%s]", truncate(title, 30), job.LastKnownState))
	}
	_ = bar.Finish()
	fmt.Println()

	var record domain.JobRecord
	if err := callServer(http.MethodGet, "/tracker/history/"+jobID, nil, &record); err != nil {
		fmt.Println("Job finished")
		return nil
	}
	printRecordOutcome(&record)
	return nil
}

func printRecordOutcome(record *domain.JobRecord) {
	switch record.Outcome {
	case domain.OutcomeRetrieved:
		fmt.Printf("Saved: %s\n", record.ArtifactLocation)
	case domain.OutcomeFailed, domain.OutcomeRetrievalFailed:
		fmt.Printf("Failed: %s\n", record.Message)
	case domain.OutcomeCancelled:
		fmt.Println("Cancelled")
	default:
		fmt.Printf("State: %s\n", record.State)
	}
}

func printJobs(jobs []handlers.JobView) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSOURCE\tSTATE\tPROGRESS\tMESSAGE")
	for _, j := range jobs {
		state := string(j.LastKnownState)
		if j.Retrieving {
			state += "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(j.JobID, 12),
			truncate(j.Title, 30),
			j.Metadata.SourceID,
			state,
			formatProgress(j.DownloadJob),
			truncate(j.Message, 40))
	}
	w.Flush()
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List tracked jobs",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var list jobList
		exitOnError(callServer(http.MethodGet, "/tracker/jobs", nil, &list))
		if list.Count == 0 {
			fmt.Println("No tracked jobs")
			return
		}
		printJobs(list.Jobs)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show a job, tracked or from history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		id := args[0]

		var job handlers.JobView
		err := callServer(http.MethodGet, "/tracker/jobs/"+id, nil, &job)
		if err == nil {
			fmt.Printf("Job Details:\n")
			fmt.Printf("  ID:       %s\n", job.JobID)
			fmt.Printf("  Title:    %s\n", job.Title)
			fmt.Printf("  Source:   %s\n", job.Metadata.SourceID)
			fmt.Printf("  State:    %s\n", job.LastKnownState)
			fmt.Printf("  Progress: %s\n", formatProgress(job.DownloadJob))
			fmt.Printf("  Enqueued: %s\n", job.EnqueuedAt.Format(time.RFC3339))
			if job.Message != "" {
				fmt.Printf("  Message:  %s\n", job.Message)
			}
			return
		}
		if !isNotFound(err) {
			exitOnError(err)
		}

		var record domain.JobRecord
		exitOnError(callServer(http.MethodGet, "/tracker/history/"+id, nil, &record))
		fmt.Printf("Job History:\n")
		fmt.Printf("  ID:       %s\n", record.JobID)
		fmt.Printf("  Title:    %s\n", record.ComicTitle)
		fmt.Printf("  State:    %s\n", record.State)
		fmt.Printf("  Outcome:  %s\n", record.Outcome)
		if record.ArtifactLocation != "" {
			fmt.Printf("  Saved:    %s\n", record.ArtifactLocation)
		}
		if record.Message != "" {
			fmt.Printf("  Message:  %s\n", record.Message)
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel a tracked job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		exitOnError(callServer(http.MethodDelete, "/tracker/jobs/"+args[0], nil, nil))
		fmt.Println("Job cancelled successfully")
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [job-id]",
	Short: "Retry saving the archive of a completed job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		exitOnError(callServer(http.MethodPost, "/tracker/jobs/"+args[0]+"/retrieve", nil, nil))

		var record domain.JobRecord
		if err := callServer(http.MethodGet, "/tracker/history/"+args[0], nil, &record); err == nil {
			printRecordOutcome(&record)
			return
		}
		fmt.Println("Archive retrieved")
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List finished and active jobs from history",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		outcome, _ := cmd.Flags().GetString("outcome")
		source, _ := cmd.Flags().GetString("source")
		limit, _ := cmd.Flags().GetInt("limit")

		query := url.Values{}
		if cmd.Flags().Changed("outcome") {
			query.Set("outcome", outcome)
		}
		if source != "" {
			query.Set("source", source)
		}
		query.Set("limit", strconv.Itoa(limit))

		var list historyList
		exitOnError(callServer(http.MethodGet, "/tracker/history?"+query.Encode(), nil, &list))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATE\tOUTCOME\tENQUEUED\tDETAIL")
		for _, r := range list.Records {
			detail := r.ArtifactLocation
			if detail == "" {
				detail = r.Message
			}
			outcome := string(r.Outcome)
			if outcome == "" {
				outcome = "active"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				truncate(r.JobID, 12),
				truncate(r.ComicTitle, 30),
				r.State,
				outcome,
				r.EnqueuedAt.Format("2006-01-02 15:04"),
				truncate(detail, 50))
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var stats struct {
			Tracked int                 `json:"tracked"`
			History domain.HistoryStats `json:"history"`
		}
		exitOnError(callServer(http.MethodGet, "/tracker/stats", nil, &stats))

		fmt.Println("Job Statistics:")
		fmt.Printf("  Tracked:          %d\n", stats.Tracked)
		fmt.Printf("  Total:            %d\n", stats.History.Total)
		fmt.Printf("  Active:           %d\n", stats.History.Active)
		fmt.Printf("  Retrieved:        %d\n", stats.History.Retrieved)
		fmt.Printf("  Retrieval failed: %d\n", stats.History.RetrievalFailed)
		fmt.Printf("  Failed:           %d\n", stats.History.Failed)
		fmt.Printf("  Cancelled:        %d\n", stats.History.Cancelled)
	},
}

// websocketURL maps the server URL onto its ws:// or wss:// equivalent
func websocketURL(path string) string {
	base := strings.TrimSuffix(serverURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + path
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream the tracked job table as it changes",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, websocketURL("/tracker/ws"), nil)
		exitOnError(err)
		defer conn.Close()

		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()

		for {
			var jobs []handlers.JobView
			if err := conn.ReadJSON(&jobs); err != nil {
				return
			}
			fmt.Printf("\n%s  %d tracked\n", time.Now().Format("15:04:05"), len(jobs))
			if len(jobs) > 0 {
				printJobs(jobs)
			}
		}
	},
}

func init() {
	addSelectionFlags(addCmd)
	addCmd.Flags().BoolP("wait", "w", false, "Wait for the job to finish")
	historyCmd.Flags().StringP("outcome", "o", "", "Filter by outcome (retrieved, retrieval_failed, failed, cancelled; empty for active)")
	historyCmd.Flags().StringP("source", "s", "", "Filter by source")
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum records to show")
}
