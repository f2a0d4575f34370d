package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryTracker LogCategory = "tracker" // Job lifecycle events (JSON)
	CategoryProxy   LogCategory = "proxy"   // Proxied requests (JSON)
	CategoryError   LogCategory = "error"   // Application errors (JSON)
)

// Categories lists every category in display order
var Categories = []LogCategory{CategoryTracker, CategoryProxy, CategoryError}

// ParseCategory validates a category name
func ParseCategory(name string) (LogCategory, error) {
	for _, c := range Categories {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown log category: %s", name)
}

// categoryLog is one open category file
type categoryLog struct {
	logger *zap.Logger
	file   *os.File
}

// MultiLogger writes categorised JSON logs to one file per category and day:
// <logs_dir>/<category>-YYYYMMDD.log
type MultiLogger struct {
	config      MultiLoggerConfig
	mu          sync.RWMutex
	logs        map[LogCategory]*categoryLog
	currentDate string
	now         func() time.Time
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}

	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{
		config: config,
		logs:   make(map[LogCategory]*categoryLog),
		now:    time.Now,
	}

	if err := ml.open(ml.now().Format("20060102")); err != nil {
		return nil, err
	}
	return ml, nil
}

// open creates the category files for date. Callers hold mu or own ml exclusively.
func (ml *MultiLogger) open(date string) error {
	level, err := zapcore.ParseLevel(ml.config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	logs := make(map[LogCategory]*categoryLog, len(Categories))
	for _, category := range Categories {
		categoryLevel := level
		if category == CategoryError {
			categoryLevel = zapcore.ErrorLevel
		}

		l, err := ml.createStructuredLogger(category, date, categoryLevel)
		if err != nil {
			for _, opened := range logs {
				opened.file.Close()
			}
			return fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		logs[category] = l
	}

	for _, old := range ml.logs {
		_ = old.logger.Sync()
		old.file.Close()
	}
	ml.logs = logs
	ml.currentDate = date
	return nil
}

// createStructuredLogger creates a JSON-formatted logger for a category
func (ml *MultiLogger) createStructuredLogger(category LogCategory, date string, level zapcore.Level) (*categoryLog, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""

	file, err := os.OpenFile(categoryLogPath(ml.config.LogsDir, category, date), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level)
	return &categoryLog{logger: zap.New(core), file: file}, nil
}

func categoryLogPath(dir string, category LogCategory, date string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", category, date))
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the logger for a category, rotating files when the day changes
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	today := ml.now().Format("20060102")

	ml.mu.RLock()
	if ml.currentDate == today {
		l, ok := ml.logs[category]
		ml.mu.RUnlock()
		if ok {
			return l.logger
		}
		return zap.NewNop()
	}
	ml.mu.RUnlock()

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if ml.currentDate != today {
		if err := ml.open(today); err != nil {
			// Keep writing to yesterday's files rather than dropping events
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	if l, ok := ml.logs[category]; ok {
		return l.logger
	}
	return zap.NewNop()
}

// Tracker returns the tracker event logger
func (ml *MultiLogger) Tracker() *zap.Logger {
	return ml.GetLogger(CategoryTracker)
}

// Proxy returns the proxy access logger
func (ml *MultiLogger) Proxy() *zap.Logger {
	return ml.GetLogger(CategoryProxy)
}

// Error returns the error logger
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// LogAppError logs an application-level error
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogTrackerEvent logs a job lifecycle event
func (ml *MultiLogger) LogTrackerEvent(event string, fields ...zap.Field) {
	ml.Tracker().Info(event, fields...)
}

// LogProxyRequest logs one proxied request
func (ml *MultiLogger) LogProxyRequest(fields ...zap.Field) {
	ml.Proxy().Info("proxy", fields...)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error
	for _, l := range ml.logs {
		if err := l.logger.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes and closes all category files
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error
	for category, l := range ml.logs {
		if err := l.logger.Sync(); err != nil {
			lastErr = err
		}
		if err := l.file.Close(); err != nil {
			lastErr = err
		}
		delete(ml.logs, category)
	}
	return lastErr
}
