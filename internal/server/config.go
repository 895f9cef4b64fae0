package server

import "fmt"

// Config holds the server configuration.
type Config struct {
	Host      string  `mapstructure:"host"`
	Port      int     `mapstructure:"port"`
	RateLimit float64 `mapstructure:"rate_limit"` // requests per second per client IP
	RateBurst int     `mapstructure:"rate_burst"`

	// TrustProxy attributes requests to the first X-Forwarded-For address.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

// DefaultConfig returns the listen settings used when none are configured.
func DefaultConfig() Config {
	return Config{Host: "0.0.0.0", Port: 8080, RateLimit: 20, RateBurst: 40}
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
