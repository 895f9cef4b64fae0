package report

import "fmt"

// ReportConfig holds configuration for the report plugin.
type ReportConfig struct {
	// WebFile receives the latest summary text; empty disables it.
	WebFile string `mapstructure:"web_file"`
	// Stdout prints each summary to standard output.
	Stdout bool `mapstructure:"stdout"`
	// WindowLabel is used when a window carries no label of its own.
	WindowLabel string `mapstructure:"window_label"`

	SampleLimit    int     `mapstructure:"sample_limit"`
	PromptMaxBytes int     `mapstructure:"prompt_max_bytes"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
}

// DefaultConfig returns sensible defaults for the report module.
func DefaultConfig() ReportConfig {
	return ReportConfig{
		WebFile:        "./data/summary.txt",
		Stdout:         true,
		WindowLabel:    "last 15 minutes",
		SampleLimit:    50,
		PromptMaxBytes: 9000,
		Temperature:    0.2,
		MaxTokens:      300,
	}
}

// Validate rejects settings the renderer cannot use.
func (c ReportConfig) Validate() error {
	if c.SampleLimit < 0 {
		return fmt.Errorf("sample_limit must be >= 0, got %d", c.SampleLimit)
	}
	if c.PromptMaxBytes <= 0 {
		return fmt.Errorf("prompt_max_bytes must be positive, got %d", c.PromptMaxBytes)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}
