// Package plugintest holds the lifecycle checks every LogSentinel module
// must pass.
package plugintest

import (
	"context"
	"slices"
	"testing"

	"github.com/HerbHall/logsentinel/pkg/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var knownStatuses = []string{"healthy", "degraded", "unhealthy"}

// TestPluginContract checks metadata, the Init/Start/Stop lifecycle, and the
// optional capability interfaces of the plugins newPlugin returns. Each call
// of newPlugin must return a fresh instance.
func TestPluginContract(t *testing.T, newPlugin func() plugin.Plugin) {
	t.Helper()

	deps := func(t *testing.T) plugin.Dependencies {
		return plugin.Dependencies{Logger: zaptest.NewLogger(t)}
	}
	initialized := func(t *testing.T) plugin.Plugin {
		p := newPlugin()
		require.NoError(t, p.Init(context.Background(), deps(t)), "Init with only a logger")
		return p
	}

	t.Run("metadata", func(t *testing.T) {
		p := newPlugin()
		info := p.Info()
		assert.NotEmpty(t, info.Name)
		assert.NotEmpty(t, info.Version)
		assert.GreaterOrEqual(t, info.APIVersion, plugin.APIVersionMin)
		assert.LessOrEqual(t, info.APIVersion, plugin.APIVersionCurrent)
		assert.NotContains(t, info.Dependencies, info.Name, "a plugin cannot depend on itself")
		assert.Equal(t, info, p.Info(), "Info is stable")
	})

	t.Run("lifecycle", func(t *testing.T) {
		p := initialized(t)
		require.NoError(t, p.Start(context.Background()))
		require.NoError(t, p.Stop(context.Background()))
	})

	t.Run("stop_without_start", func(t *testing.T) {
		p := initialized(t)
		assert.NoError(t, p.Stop(context.Background()))
	})

	t.Run("capabilities", func(t *testing.T) {
		p := initialized(t)
		if hc, ok := p.(plugin.HealthChecker); ok {
			h := hc.Health(context.Background())
			assert.True(t, slices.Contains(knownStatuses, h.Status), "unknown health status %q", h.Status)
		}
		if es, ok := p.(plugin.EventSubscriber); ok {
			for _, s := range es.Subscriptions() {
				assert.NotEmpty(t, s.Topic)
				assert.NotNil(t, s.Handler, "handler for %s", s.Topic)
			}
		}
		if hp, ok := p.(plugin.HTTPProvider); ok {
			for _, r := range hp.Routes() {
				assert.NotEmpty(t, r.Method, "route %s", r.Path)
				assert.Regexp(t, `^/`, r.Path)
				assert.NotNil(t, r.Handler, "route %s %s", r.Method, r.Path)
			}
		}
	})
}
