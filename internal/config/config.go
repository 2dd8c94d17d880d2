package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Prism client configuration.
type Config struct {
	// Backend connection
	Backend BackendConfig `yaml:"backend"`

	// Upload pipeline
	Upload UploadConfig `yaml:"upload"`

	// Processing-status poller
	Poller PollerConfig `yaml:"poller"`

	// Typewriter reveal and TUI settings
	UI UIConfig `yaml:"ui"`

	// Local history cache
	History HistoryConfig `yaml:"history"`

	// Directory watcher
	Watch WatchConfig `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig configures the Prism REST backend.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds a single HTTP request. Empty or "0" means no
	// timeout. Long OCR and transcription requests can take minutes.
	RequestTimeout string `yaml:"request_timeout"`

	// Breaker settings for read-only listing calls.
	BreakerEnabled      bool    `yaml:"breaker_enabled"`
	BreakerMinRequests  uint32  `yaml:"breaker_min_requests"`
	BreakerFailureRatio float64 `yaml:"breaker_failure_ratio"`
	BreakerOpenTimeout  string  `yaml:"breaker_open_timeout"`

	// RetryAttempts is the number of tries for a read that fails with a
	// transport error or a 5xx; 1 disables retries. Writes never retry.
	RetryAttempts int    `yaml:"retry_attempts"`
	RetryBackoff  string `yaml:"retry_backoff"`
}

// UploadConfig configures the upload pipeline.
type UploadConfig struct {
	BatchSize     int      `yaml:"batch_size"`
	MaxFileSize   int64    `yaml:"max_file_size"`   // bytes
	RatePerSecond float64  `yaml:"rate_per_second"` // 0 = unlimited
	Extensions    []string `yaml:"extensions"`
}

// PollerConfig configures processing-status polling.
type PollerConfig struct {
	Interval string `yaml:"interval"`

	// MaxAttempts caps the number of polls per token. 0 polls until the
	// backend reports a terminal status.
	MaxAttempts int `yaml:"max_attempts"`
}

// HistoryConfig configures the local history store.
type HistoryConfig struct {
	Path  string `yaml:"path"`
	Limit int    `yaml:"limit"`
}

// WatchConfig configures `prism watch`.
type WatchConfig struct {
	Debounce    string `yaml:"debounce"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultExtensions lists the file types the backend can process.
var DefaultExtensions = []string{
	".pdf", ".docx", ".doc",
	".png", ".jpg", ".jpeg", ".gif", ".webp",
	".mp3", ".wav", ".m4a",
	".mp4", ".avi", ".mov", ".mkv",
	".txt", ".md", ".log",
	".xls", ".xlsx", ".csv",
	".json", ".xml", ".html", ".htm",
	".ppt", ".pptx",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:             "http://localhost:8000",
			RequestTimeout:      "0",
			BreakerEnabled:      true,
			BreakerMinRequests:  5,
			BreakerFailureRatio: 0.6,
			BreakerOpenTimeout:  "30s",
			RetryAttempts:       1,
			RetryBackoff:        "200ms",
		},

		Upload: UploadConfig{
			BatchSize:     20,
			MaxFileSize:   100 * 1024 * 1024,
			RatePerSecond: 0,
			Extensions:    append([]string(nil), DefaultExtensions...),
		},

		Poller: PollerConfig{
			Interval:    "1s",
			MaxAttempts: 0,
		},

		UI: *DefaultUIConfig(),

		History: HistoryConfig{
			Path:  filepath.Join(DefaultHome(), "history.db"),
			Limit: 100,
		},

		Watch: WatchConfig{
			Debounce: "500ms",
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "console",
			File:      filepath.Join(DefaultHome(), "logs", "prism.log"),
			DebugMode: false,
		},
	}
}

// DefaultHome returns ~/.prism, or .prism when the home directory is unknown.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".prism"
	}
	return filepath.Join(home, ".prism")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultHome(), "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults plus env when there is no file
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if u := os.Getenv("PRISM_BASE_URL"); u != "" {
		c.Backend.BaseURL = u
	}
	if path := os.Getenv("PRISM_HISTORY_DB"); path != "" {
		c.History.Path = path
	}
	if v := os.Getenv("PRISM_DEBUG"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = on
		}
	}
	if v := os.Getenv("PRISM_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Upload.BatchSize = n
		}
	}
}

// APIBaseURL returns the backend base URL with the /api prefix.
func (c *Config) APIBaseURL() string {
	return strings.TrimRight(c.Backend.BaseURL, "/") + "/api"
}

// GetRequestTimeout returns the per-request timeout. Zero means none.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Backend.RequestTimeout, 0)
}

// GetRetryBackoff returns the delay before the first read retry.
func (c *Config) GetRetryBackoff() time.Duration {
	return parseDuration(c.Backend.RetryBackoff, 200*time.Millisecond)
}

// GetBreakerOpenTimeout returns how long the breaker stays open.
func (c *Config) GetBreakerOpenTimeout() time.Duration {
	return parseDuration(c.Backend.BreakerOpenTimeout, 30*time.Second)
}

// GetPollInterval returns the delay between processing-status polls.
func (c *Config) GetPollInterval() time.Duration {
	d := parseDuration(c.Poller.Interval, time.Second)
	if d <= 0 {
		return time.Second
	}
	return d
}

// GetWatchDebounce returns the watcher debounce window.
func (c *Config) GetWatchDebounce() time.Duration {
	return parseDuration(c.Watch.Debounce, 500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend base_url: %q", c.Backend.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend base_url must be http or https, got %s", u.Scheme)
	}
	if err := c.ValidateLimits(); err != nil {
		return err
	}
	return nil
}
