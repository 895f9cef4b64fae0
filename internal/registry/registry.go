// Package registry manages module lifecycle for LogSentinel: registration,
// dependency ordering, init, event wiring, start, and shutdown.
package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/HerbHall/logsentinel/pkg/plugin"
	"go.uber.org/zap"
)

// entry is one registered plugin and its lifecycle state.
type entry struct {
	p        plugin.Plugin
	info     plugin.PluginInfo
	seq      int    // registration order, used to break ordering ties
	disabled string // reason; empty while active
}

// Registry owns every plugin from registration to shutdown. Plugins start in
// dependency order, ties broken by registration order, and stop in reverse.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // active plugins in start order, set by Validate
	unsubs  []func()
	logger  *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Register adds p. It must be called before Validate.
func (r *Registry) Register(p plugin.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := p.Info()
	if info.Name == "" {
		return fmt.Errorf("plugin has empty name")
	}
	if _, dup := r.entries[info.Name]; dup {
		return fmt.Errorf("plugin %q already registered", info.Name)
	}
	r.entries[info.Name] = &entry{p: p, info: info, seq: len(r.entries)}
	r.logger.Info("plugin registered",
		zap.String("name", info.Name),
		zap.String("version", info.Version),
		zap.Int("api_version", info.APIVersion),
	)
	return nil
}

// disableLocked marks name inactive. Disabling a required plugin is an
// error instead.
func (r *Registry) disableLocked(name, reason string) error {
	e := r.entries[name]
	if e.info.Required {
		return fmt.Errorf("required plugin %q unavailable: %s", name, reason)
	}
	if e.disabled == "" {
		e.disabled = reason
		r.logger.Warn("plugin disabled", zap.String("name", name), zap.String("reason", reason))
	}
	return nil
}

// Validate disables plugins with an unsupported API version or an
// unavailable dependency, cascading to their dependents, and computes the
// start order. It fails when a required plugin would be disabled or the
// dependencies form a cycle.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.byRegistrationLocked() {
		v := r.entries[name].info.APIVersion
		if v < plugin.APIVersionMin || v > plugin.APIVersionCurrent {
			reason := fmt.Sprintf("targets plugin API v%d, supported v%d..v%d", v, plugin.APIVersionMin, plugin.APIVersionCurrent)
			if err := r.disableLocked(name, reason); err != nil {
				return err
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for _, name := range r.byRegistrationLocked() {
			e := r.entries[name]
			if e.disabled != "" {
				continue
			}
			for _, dep := range e.info.Dependencies {
				d, ok := r.entries[dep]
				var reason string
				switch {
				case !ok:
					reason = fmt.Sprintf("dependency %q is not registered", dep)
				case d.disabled != "":
					reason = fmt.Sprintf("dependency %q is disabled", dep)
				default:
					continue
				}
				if err := r.disableLocked(name, reason); err != nil {
					return err
				}
				changed = true
				break
			}
		}
	}

	order, err := r.sortLocked()
	if err != nil {
		return err
	}
	r.order = order
	r.logger.Info("plugin dependency resolution complete",
		zap.Strings("start_order", order),
		zap.Int("disabled", len(r.entries)-len(order)),
	)
	return nil
}

// byRegistrationLocked returns every plugin name in registration order.
func (r *Registry) byRegistrationLocked() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int { return r.entries[a].seq - r.entries[b].seq })
	return names
}

// sortLocked orders active plugins so each follows its dependencies,
// repeatedly taking the earliest registered plugin whose dependencies are
// all placed.
func (r *Registry) sortLocked() ([]string, error) {
	var pending []string
	for _, name := range r.byRegistrationLocked() {
		if r.entries[name].disabled == "" {
			pending = append(pending, name)
		}
	}

	placed := make(map[string]bool, len(pending))
	order := make([]string, 0, len(pending))
	for len(pending) > 0 {
		idx := slices.IndexFunc(pending, func(name string) bool {
			for _, dep := range r.entries[name].info.Dependencies {
				if !placed[dep] {
					return false
				}
			}
			return true
		})
		if idx < 0 {
			return nil, fmt.Errorf("dependency cycle detected among plugins: %v", pending)
		}
		name := pending[idx]
		placed[name] = true
		order = append(order, name)
		pending = slices.Delete(pending, idx, idx+1)
	}
	return order, nil
}

// InitAll initializes active plugins in start order, then subscribes the
// handlers of each plugin.EventSubscriber on the bus it was given. A failing
// optional plugin is disabled; a failing required plugin aborts.
func (r *Registry) InitAll(ctx context.Context, depsFn func(name string) plugin.Dependencies) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		e := r.entries[name]
		if e.disabled != "" {
			continue
		}

		r.logger.Info("initializing plugin", zap.String("name", name))
		deps := depsFn(name)
		err := safeCall(name, "init", func() error { return e.p.Init(ctx, deps) })
		if err == nil {
			if v, ok := e.p.(plugin.Validator); ok {
				err = v.ValidateConfig()
			}
		}
		if err != nil {
			if derr := r.disableLocked(name, err.Error()); derr != nil {
				return derr
			}
			continue
		}

		if es, ok := e.p.(plugin.EventSubscriber); ok && deps.Bus != nil {
			for _, sub := range es.Subscriptions() {
				r.unsubs = append(r.unsubs, deps.Bus.Subscribe(sub.Topic, sub.Handler))
				r.logger.Debug("event subscription wired",
					zap.String("plugin", name),
					zap.String("topic", sub.Topic),
				)
			}
		}
	}
	return nil
}

// StartAll starts initialized plugins in start order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		e := r.entries[name]
		if e.disabled != "" {
			continue
		}
		r.logger.Info("starting plugin", zap.String("name", name))
		if err := safeCall(name, "start", func() error { return e.p.Start(ctx) }); err != nil {
			if derr := r.disableLocked(name, err.Error()); derr != nil {
				return derr
			}
		}
	}
	return nil
}

// StopAll removes every wired subscription, then stops active plugins in
// reverse start order. A failing Stop does not prevent the rest.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil

	for _, name := range slices.Backward(r.order) {
		e := r.entries[name]
		if e.disabled != "" {
			continue
		}
		r.logger.Info("stopping plugin", zap.String("name", name))
		if err := safeCall(name, "stop", func() error { return e.p.Stop(ctx) }); err != nil {
			r.logger.Error("failed to stop plugin", zap.String("name", name), zap.Error(err))
		}
	}
}

// safeCall runs a lifecycle hook, converting a panic into an error.
func safeCall(name, phase string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin %q panicked during %s: %v", name, phase, rec)
		}
	}()
	return fn()
}

// activeLocked returns active plugins in start order.
func (r *Registry) activeLocked() []*entry {
	out := make([]*entry, 0, len(r.order))
	for _, name := range r.order {
		if e := r.entries[name]; e.disabled == "" {
			out = append(out, e)
		}
	}
	return out
}

// Names returns the active plugin names in start order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, e := range r.activeLocked() {
		names = append(names, e.info.Name)
	}
	return names
}

// All returns the active plugins in start order.
func (r *Registry) All() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []plugin.Plugin
	for _, e := range r.activeLocked() {
		out = append(out, e.p)
	}
	return out
}

// Get returns an active plugin by name.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || e.disabled != "" {
		return nil, false
	}
	return e.p, true
}

// Resolve implements plugin.PluginResolver.
func (r *Registry) Resolve(name string) (plugin.Plugin, bool) {
	return r.Get(name)
}

// ResolveByRole returns the active plugins declaring role, in start order.
func (r *Registry) ResolveByRole(role string) []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []plugin.Plugin
	for _, e := range r.activeLocked() {
		if slices.Contains(e.info.Roles, role) {
			out = append(out, e.p)
		}
	}
	return out
}

// AllRoutes returns the routes of active plugins implementing
// plugin.HTTPProvider, keyed by plugin name.
func (r *Registry) AllRoutes() map[string][]plugin.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	routes := make(map[string][]plugin.Route)
	for _, e := range r.activeLocked() {
		if hp, ok := e.p.(plugin.HTTPProvider); ok {
			if rs := hp.Routes(); len(rs) > 0 {
				routes[e.info.Name] = rs
			}
		}
	}
	return routes
}

// IsDisabled reports whether name was disabled.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && e.disabled != ""
}

// Disabled maps each disabled plugin to the reason it was disabled.
func (r *Registry) Disabled() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string)
	for name, e := range r.entries {
		if e.disabled != "" {
			out[name] = e.disabled
		}
	}
	return out
}
