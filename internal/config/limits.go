package config

import "fmt"

// ValidateLimits checks that pipeline and store limits are within acceptable ranges.
func (c *Config) ValidateLimits() error {
	if c.Upload.BatchSize < 1 {
		return fmt.Errorf("upload.batch_size must be >= 1")
	}
	if c.Upload.MaxFileSize < 0 {
		return fmt.Errorf("upload.max_file_size must be >= 0")
	}
	if c.Upload.RatePerSecond < 0 {
		return fmt.Errorf("upload.rate_per_second must be >= 0")
	}
	if c.Backend.RetryAttempts < 0 {
		return fmt.Errorf("backend.retry_attempts must be >= 0")
	}
	if c.Poller.MaxAttempts < 0 {
		return fmt.Errorf("poller.max_attempts must be >= 0")
	}
	if c.History.Limit < 1 {
		return fmt.Errorf("history.limit must be >= 1")
	}
	if c.Backend.BreakerFailureRatio < 0 || c.Backend.BreakerFailureRatio > 1 {
		return fmt.Errorf("backend.breaker_failure_ratio must be within [0, 1]")
	}
	return nil
}

// EnforceLimits returns the effective numeric limits, clamping zero values
// to their defaults so callers never see an unusable setting.
func (c *Config) EnforceLimits() map[string]int {
	def := DefaultConfig()
	batch := c.Upload.BatchSize
	if batch < 1 {
		batch = def.Upload.BatchSize
	}
	limit := c.History.Limit
	if limit < 1 {
		limit = def.History.Limit
	}
	return map[string]int{
		"batch_size":     batch,
		"history_limit":  limit,
		"max_attempts":   c.Poller.MaxAttempts,
		"retry_attempts": max(c.Backend.RetryAttempts, 1),
	}
}
