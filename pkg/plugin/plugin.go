// Package plugin is the contract between the LogSentinel registry and its
// modules. A module declares itself with Info, receives shared services in
// Init, and opts into routes, health, config checks and bus topics by
// implementing the capability interfaces below.
package plugin

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// The registry accepts modules targeting API versions in
// [APIVersionMin, APIVersionCurrent].
const (
	APIVersionMin     = 1
	APIVersionCurrent = 1
)

// Plugin is a module with a managed lifecycle. Init runs once in dependency
// order; Start and Stop may block only as long as their context allows.
type Plugin interface {
	Info() PluginInfo
	Init(ctx context.Context, deps Dependencies) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// PluginInfo describes a module to the registry.
type PluginInfo struct {
	Name        string
	Version     string
	Description string

	// Dependencies name modules that must start before this one.
	Dependencies []string

	// Required modules abort startup instead of being disabled on failure.
	Required bool

	Roles      []string
	APIVersion int
}

// Dependencies are the shared services handed to Init.
type Dependencies struct {
	Config  Config // the plugins.<name> section
	Logger  *zap.Logger
	Store   Store // nil unless a database is configured
	Bus     EventBus
	Plugins PluginResolver
}

// PluginResolver finds other active modules.
type PluginResolver interface {
	Resolve(name string) (Plugin, bool)
	ResolveByRole(role string) []Plugin
}

// Route is mounted at /api/v1/<plugin><Path>.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// HTTPProvider exposes routes.
type HTTPProvider interface {
	Routes() []Route
}

// HealthStatus is a module's view of itself. Status is "healthy",
// "degraded" or "unhealthy".
type HealthStatus struct {
	Status  string            `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthChecker reports health on demand.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// Validator checks configuration after Init. A failure disables an optional
// module.
type Validator interface {
	ValidateConfig() error
}
