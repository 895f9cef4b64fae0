package openai

import "time"

// DefaultBaseURL is the public OpenAI API endpoint.
const DefaultBaseURL = "https://api.openai.com"

// Config configures the OpenAI adapter.
type Config struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxRetries is the number of extra attempts after a retryable failure.
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// DefaultConfig returns the settings summaries were tuned with.
func DefaultConfig() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		Model:        "gpt-4o-mini",
		Timeout:      30 * time.Second,
		MaxRetries:   1,
		RetryBackoff: 2 * time.Second,
	}
}
