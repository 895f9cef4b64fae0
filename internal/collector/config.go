package collector

import (
	"fmt"
	"time"
)

// Default LogQL queries for the two signal families.
const (
	DefaultFailedLoginQuery = `{job="app"} |= "login_failed" | json`
	DefaultServerErrorQuery = `{job="apache"} |~ " 5\\d\\d "`
)

// CollectorConfig holds configuration for the collector plugin.
type CollectorConfig struct {
	// Window is how far back each collection looks.
	Window time.Duration `mapstructure:"window"`
	// Interval is the pause between scheduled collections.
	Interval time.Duration `mapstructure:"interval"`
	// Schedule enables the background ticker (daemon mode).
	Schedule         bool   `mapstructure:"schedule"`
	FailedLoginQuery string `mapstructure:"failed_login_query"`
	ServerErrorQuery string `mapstructure:"server_error_query"`
	// Label overrides the human description of the window.
	Label string `mapstructure:"label"`
}

// DefaultConfig returns sensible defaults for the collector.
func DefaultConfig() CollectorConfig {
	return CollectorConfig{
		Window:           15 * time.Minute,
		Interval:         15 * time.Minute,
		FailedLoginQuery: DefaultFailedLoginQuery,
		ServerErrorQuery: DefaultServerErrorQuery,
	}
}

// Validate rejects settings the collector cannot run with.
func (c CollectorConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", c.Window)
	}
	if c.Schedule && c.Interval <= 0 {
		return fmt.Errorf("interval must be positive when scheduling, got %s", c.Interval)
	}
	if c.FailedLoginQuery == "" || c.ServerErrorQuery == "" {
		return fmt.Errorf("both queries are required")
	}
	return nil
}

// WindowLabel describes the window for summaries, e.g. "last 15 minutes".
func (c CollectorConfig) WindowLabel() string {
	if c.Label != "" {
		return c.Label
	}
	return "last " + describe(c.Window)
}

func describe(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
