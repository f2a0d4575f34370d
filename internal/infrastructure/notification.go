package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/manga-dl-go/internal/domain"
)

// NotificationService delivers user-facing tracker events. It implements
// domain.JobNotifier.
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	switch n.config.Method {
	case "log", "":
		n.logger.Info(title, zap.String("message", message))
		return nil
	case "osascript":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(message), escapeAppleScript(title))
		return n.exec("osascript", "-e", script)
	case "notify-send":
		return n.exec("notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}
}

func (n *NotificationService) exec(name string, args ...string) error {
	if err := n.run(name, args...); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", name),
			zap.String("command", commandLine(name, args...)),
			zap.Error(err))
		return err
	}
	n.logger.Debug("Notification sent", zap.String("method", name))
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// NotifyRetrievalSucceeded reports a stored artifact
func (n *NotificationService) NotifyRetrievalSucceeded(job domain.DownloadJob, location string) {
	n.Send("Download Complete", fmt.Sprintf("%s saved to %s", truncateString(job.DisplayTitle(), 40), location))
}

// NotifyRetrievalFailed reports a failed artifact download
func (n *NotificationService) NotifyRetrievalFailed(job domain.DownloadJob, err error) {
	n.Send("Download Failed", fmt.Sprintf("%s: %s", truncateString(job.DisplayTitle(), 40), domain.FailureMessage(err)))
}

// NotifyJobFailed reports a job that ended in FAILURE
func (n *NotificationService) NotifyJobFailed(job domain.DownloadJob) {
	n.Send("Download Failed", fmt.Sprintf("%s: %s", truncateString(job.DisplayTitle(), 40), job.Message))
}

// NotifyTrackerIdle reports that no tracked jobs remain
func (n *NotificationService) NotifyTrackerIdle() {
	n.Send("Queue Empty", "All downloads completed")
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
