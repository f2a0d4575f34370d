package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Tracker      TrackerConfig      `mapstructure:"tracker"`
	Retrieval    RetrievalConfig    `mapstructure:"retrieval"`
	History      HistoryConfig      `mapstructure:"history"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains proxy shim configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// BackendConfig contains the download backend connection settings
type BackendConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst int           `mapstructure:"rate_burst"`
}

// TrackerConfig contains task tracker settings
type TrackerConfig struct {
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	FailurePruneDelay     time.Duration `mapstructure:"failure_prune_delay"`
	StatusErrorPruneDelay time.Duration `mapstructure:"status_error_prune_delay"`
	MaxConcurrentPolls    int           `mapstructure:"max_concurrent_polls"`
	RestoreOnStart        bool          `mapstructure:"restore_on_start"`
}

// PruneDelays returns the failure visibility windows
func (c TrackerConfig) PruneDelays() PruneDelays {
	return PruneDelays{
		Failure:     c.FailurePruneDelay,
		StatusError: c.StatusErrorPruneDelay,
	}
}

// RetrievalConfig contains settings for automatic artifact retrieval
type RetrievalConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Storage   string   `mapstructure:"storage"` // local, s3
	OutputDir string   `mapstructure:"output_dir"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config contains S3-compatible artifact storage settings
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Prefix    string `mapstructure:"prefix"`
}

// HistoryConfig contains job history settings
type HistoryConfig struct {
	DatabasePath string `mapstructure:"database_path"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // log, osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // categorised JSON logs
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 3001,
			Mode: "release",
		},
		Backend: BackendConfig{
			BaseURL:   "http://localhost:8000",
			Timeout:   60 * time.Second,
			RateLimit: 10,
			RateBurst: 5,
		},
		Tracker: TrackerConfig{
			PollInterval:          2 * time.Second,
			FailurePruneDelay:     1 * time.Second,
			StatusErrorPruneDelay: 3 * time.Second,
			MaxConcurrentPolls:    8,
			RestoreOnStart:        true,
		},
		Retrieval: RetrievalConfig{
			Enabled:   true,
			Storage:   "local",
			OutputDir: "$HOME/Downloads/mangadl",
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "mangadl",
			},
		},
		History: HistoryConfig{
			DatabasePath: "$HOME/.mangadl/history.db",
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "log",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
			LogsDir:    "$HOME/.mangadl/logs",
		},
	}
}
