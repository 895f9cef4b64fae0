// Package collector pulls one window of log lines from Loki, aggregates them
// and hands the window to the baseline engine over the event bus.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/logsentinel/internal/loki"
	"github.com/HerbHall/logsentinel/internal/metrics"
	"github.com/HerbHall/logsentinel/internal/window"
	"github.com/HerbHall/logsentinel/pkg/analytics"
	"github.com/HerbHall/logsentinel/pkg/plugin"
	"github.com/HerbHall/logsentinel/pkg/roles"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TopicWindowCollected carries an analytics.Window.
const TopicWindowCollected = "collector.window.collected"

// Querier runs a LogQL range query. *loki.Client satisfies it.
type Querier interface {
	QueryRange(ctx context.Context, query string, start, end time.Time) ([]loki.Entry, error)
}

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
	_ Querier              = (*loki.Client)(nil)
)

// Module implements the collector plugin.
type Module struct {
	logger *zap.Logger
	cfg    CollectorConfig
	loki   Querier
	bus    plugin.EventBus
	now    func() time.Time

	mu         sync.Mutex
	lastRun    time.Time
	lastErr    error
	lastWindow *analytics.Window

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a collector querying q. A nil q uses a Loki client with
// default settings.
func New(q Querier) *Module {
	return &Module{loki: q, now: time.Now}
}

// Info declares insight as a dependency so a scheduled first pass has a
// scorer subscribed.
func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "collector",
		Version:      "0.1.0",
		Description:  "Loki window collection and aggregation",
		Dependencies: []string{"insight"},
		Roles:        []string{roles.RoleCollector},
		Required:     true,
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal collector config: %w", err)
		}
	}
	if err := m.cfg.Validate(); err != nil {
		return fmt.Errorf("collector config: %w", err)
	}
	if m.loki == nil {
		m.loki = loki.NewClient(loki.DefaultConfig())
	}

	m.logger.Info("collector module initialized",
		zap.Duration("window", m.cfg.Window),
		zap.Duration("interval", m.cfg.Interval),
		zap.Bool("schedule", m.cfg.Schedule),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	if m.cfg.Schedule {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.wg.Add(1)
		go m.loop(ctx)
	}
	m.logger.Info("collector module started", zap.Bool("schedule", m.cfg.Schedule))
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("collector module stopped")
	return nil
}

// loop runs a collection immediately, then once per interval. Passes never
// overlap: the next tick is only read after the previous pass returns.
func (m *Module) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("collection failed; skipping pass", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce collects a window and publishes it to the bus.
func (m *Module) RunOnce(ctx context.Context) error {
	w, err := m.Collect(ctx)
	if err != nil {
		return err
	}
	if m.bus != nil {
		return m.bus.Publish(ctx, plugin.Event{
			Topic:     TopicWindowCollected,
			Source:    "collector",
			Timestamp: w.Observation.End,
			Payload:   w,
		})
	}
	return nil
}

// Collect fetches and aggregates the window ending now. Both queries run
// concurrently; if either fails no window is returned.
func (m *Module) Collect(ctx context.Context) (analytics.Window, error) {
	end := m.now()
	start := end.Add(-m.cfg.Window)

	var failedLines, errorLines []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lines, err := m.fetch(gctx, "failed_logins", m.cfg.FailedLoginQuery, start, end)
		failedLines = lines
		return err
	})
	g.Go(func() error {
		lines, err := m.fetch(gctx, "server_errors", m.cfg.ServerErrorQuery, start, end)
		errorLines = lines
		return err
	})
	err := g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRun = end
	m.lastErr = err
	if err != nil {
		return analytics.Window{}, err
	}

	w := window.Build(m.cfg.WindowLabel(), start, end, window.ParseLoginFailures(failedLines), errorLines)
	m.lastWindow = &w

	m.logger.Info("window collected",
		zap.Time("start", start),
		zap.Time("end", end),
		zap.Int("failed_logins", w.Observation.Totals[analytics.SignalFailedLogins]),
		zap.Int("server_errors", w.Observation.Totals[analytics.SignalServerErrors]),
		zap.Int("source_ips", len(w.Observation.Identities)),
	)
	return w, nil
}

func (m *Module) fetch(ctx context.Context, name, query string, start, end time.Time) ([]string, error) {
	entries, err := m.loki.QueryRange(ctx, query, start, end)
	if err != nil {
		metrics.CollectorFetchErrorsTotal.WithLabelValues(name).Inc()
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Line
	}
	return lines, nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	details := map[string]string{
		"window":   m.cfg.Window.String(),
		"schedule": fmt.Sprintf("%t", m.cfg.Schedule),
	}
	if !m.lastRun.IsZero() {
		details["last_run"] = m.lastRun.UTC().Format(time.RFC3339)
	}
	if m.lastErr != nil {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "last collection failed: " + m.lastErr.Error(),
			Details: details,
		}
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// LastWindow returns the most recently collected window.
func (m *Module) LastWindow() (analytics.Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastWindow == nil {
		return analytics.Window{}, false
	}
	return *m.lastWindow, true
}
