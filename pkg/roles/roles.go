// Package roles defines typed contracts for plugin roles.
// Plugins that fill a role (declared via PluginInfo.Roles) implement the
// matching interface so callers can resolve them with
// PluginResolver.ResolveByRole followed by a type assertion.
package roles

import (
	"context"

	"github.com/HerbHall/logsentinel/pkg/analytics"
	"github.com/HerbHall/logsentinel/pkg/llm"
)

// Role name constants match the strings used in PluginInfo.Roles.
const (
	RoleCollector    = "collector"
	RoleAnalytics    = "analytics"
	RoleReporter     = "reporter"
	RoleNotification = "notification"
	RoleLLM          = "llm"
)

// AnalyticsProvider is implemented by the plugin that owns the baselines.
type AnalyticsProvider interface {
	// LatestVerdict returns the verdict of the most recent pass, if any.
	LatestVerdict() (*analytics.Verdict, bool)

	// Baselines returns a point-in-time copy of every tracked baseline.
	Baselines() analytics.BaselineSnapshot
}

// LLMProvider is implemented by plugins that provide LLM capabilities.
// Resolve via PluginResolver.ResolveByRole(RoleLLM) then type-assert.
type LLMProvider interface {
	// Provider returns the underlying LLM provider, or nil when disabled.
	Provider() llm.Provider
}

// Notifier is implemented by plugins that deliver rendered reports.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Notification is a rendered report handed to a Notifier.
type Notification struct {
	Title string
	Body  string
	Alert bool // true when the verdict raised at least one finding
}
