// Package config loads LogSentinel settings with viper and hands each plugin
// its own section.
package config

import (
	"strings"
	"time"

	"github.com/HerbHall/logsentinel/pkg/plugin"
	"github.com/spf13/viper"
)

var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig is a plugin.Config over a viper tree.
type ViperConfig struct {
	v *viper.Viper
}

// New wraps v. A nil v is an empty tree.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) Unmarshal(target any) error { return c.v.Unmarshal(target) }

func (c *ViperConfig) IsSet(key string) bool { return c.v.IsSet(key) }

func (c *ViperConfig) GetString(key string) string { return c.v.GetString(key) }

func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }

// Sub copies every resolved leaf under key into a fresh tree. viper.Sub
// would read the raw maps and lose environment overrides and defaults.
func (c *ViperConfig) Sub(key string) plugin.Config {
	prefix := strings.ToLower(key) + "."
	section := viper.New()
	for _, k := range c.v.AllKeys() {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			section.Set(rest, c.v.Get(k))
		}
	}
	return New(section)
}
