package config

import "time"

// UIConfig holds user interface configuration.
type UIConfig struct {
	// TypewriterInterval is the delay between revealed characters.
	// "0" shows answers at once.
	TypewriterInterval string `yaml:"typewriter_interval" json:"typewriter_interval"`

	// StatusRefresh is how often the TUI refreshes /model/status.
	StatusRefresh string `yaml:"status_refresh" json:"status_refresh"`

	// Theme selects "light", "dark" or "" (auto).
	Theme string `yaml:"theme,omitempty" json:"theme,omitempty"`

	// Markdown toggles glamour rendering of assistant answers.
	Markdown bool `yaml:"markdown" json:"markdown"`
}

// DefaultUIConfig returns sensible UI defaults.
func DefaultUIConfig() *UIConfig {
	return &UIConfig{
		TypewriterInterval: "35ms",
		StatusRefresh:      "10s",
		Markdown:           true,
	}
}

// GetTypewriterInterval returns the reveal interval.
func (c *Config) GetTypewriterInterval() time.Duration {
	return parseDuration(c.UI.TypewriterInterval, 35*time.Millisecond)
}

// GetStatusRefresh returns the model status refresh period.
func (c *Config) GetStatusRefresh() time.Duration {
	d := parseDuration(c.UI.StatusRefresh, 10*time.Second)
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
