package app

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yourusername/manga-dl-go/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// A missing .env file is fine
	_ = godotenv.Load()

	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.mangadl")
		v.AddConfigPath("/etc/mangadl")
	}

	// Env overrides such as MANGADL_BACKEND_BASE_URL
	v.SetEnvPrefix("MANGADL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, config)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file
func setDefaults(v *viper.Viper, config *domain.Config) {
	v.SetDefault("server.host", config.Server.Host)
	v.SetDefault("server.port", config.Server.Port)
	v.SetDefault("server.mode", config.Server.Mode)

	v.SetDefault("backend.base_url", config.Backend.BaseURL)
	v.SetDefault("backend.timeout", config.Backend.Timeout)
	v.SetDefault("backend.rate_limit", config.Backend.RateLimit)
	v.SetDefault("backend.rate_burst", config.Backend.RateBurst)

	v.SetDefault("tracker.poll_interval", config.Tracker.PollInterval)
	v.SetDefault("tracker.failure_prune_delay", config.Tracker.FailurePruneDelay)
	v.SetDefault("tracker.status_error_prune_delay", config.Tracker.StatusErrorPruneDelay)
	v.SetDefault("tracker.max_concurrent_polls", config.Tracker.MaxConcurrentPolls)
	v.SetDefault("tracker.restore_on_start", config.Tracker.RestoreOnStart)

	v.SetDefault("retrieval.enabled", config.Retrieval.Enabled)
	v.SetDefault("retrieval.storage", config.Retrieval.Storage)
	v.SetDefault("retrieval.output_dir", config.Retrieval.OutputDir)
	v.SetDefault("retrieval.s3.endpoint", config.Retrieval.S3.Endpoint)
	v.SetDefault("retrieval.s3.region", config.Retrieval.S3.Region)
	v.SetDefault("retrieval.s3.bucket", config.Retrieval.S3.Bucket)
	v.SetDefault("retrieval.s3.access_key", config.Retrieval.S3.AccessKey)
	v.SetDefault("retrieval.s3.secret_key", config.Retrieval.S3.SecretKey)
	v.SetDefault("retrieval.s3.use_ssl", config.Retrieval.S3.UseSSL)
	v.SetDefault("retrieval.s3.prefix", config.Retrieval.S3.Prefix)

	v.SetDefault("history.database_path", config.History.DatabasePath)

	v.SetDefault("notification.enabled", config.Notification.Enabled)
	v.SetDefault("notification.method", config.Notification.Method)

	v.SetDefault("logging.level", config.Logging.Level)
	v.SetDefault("logging.format", config.Logging.Format)
	v.SetDefault("logging.output_path", config.Logging.OutputPath)
	v.SetDefault("logging.logs_dir", config.Logging.LogsDir)
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Retrieval.OutputDir = expandPath(config.Retrieval.OutputDir)
	config.History.DatabasePath = expandPath(config.History.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	u, err := url.Parse(config.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend base url: %q", config.Backend.BaseURL)
	}
	config.Backend.BaseURL = strings.TrimRight(config.Backend.BaseURL, "/")

	if config.Backend.RateLimit < 0 {
		return fmt.Errorf("backend rate limit cannot be negative")
	}

	if config.Tracker.PollInterval <= 0 {
		return fmt.Errorf("tracker poll interval must be positive")
	}

	if config.Tracker.FailurePruneDelay < 0 || config.Tracker.StatusErrorPruneDelay < 0 {
		return fmt.Errorf("tracker prune delays cannot be negative")
	}

	if config.Tracker.MaxConcurrentPolls < 1 {
		return fmt.Errorf("max concurrent polls must be at least 1")
	}

	if config.Retrieval.Enabled {
		switch config.Retrieval.Storage {
		case "local":
			if config.Retrieval.OutputDir == "" {
				return fmt.Errorf("retrieval output directory not configured")
			}
		case "s3":
			if config.Retrieval.S3.Bucket == "" {
				return fmt.Errorf("retrieval s3 bucket not configured")
			}
		default:
			return fmt.Errorf("unknown retrieval storage: %s", config.Retrieval.Storage)
		}
	}

	if config.History.DatabasePath == "" {
		return fmt.Errorf("history database path not configured")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("server", config.Server)
	v.Set("backend", config.Backend)
	v.Set("tracker", config.Tracker)
	v.Set("retrieval", config.Retrieval)
	v.Set("history", config.History)
	v.Set("notification", config.Notification)
	v.Set("logging", config.Logging)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
