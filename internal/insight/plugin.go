// Package insight owns the learned baselines. Each collected window is
// scored against the baselines as they stood before the window, then folded
// in and persisted; the verdict is published for reporting.
package insight

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/HerbHall/logsentinel/pkg/analytics"
	"github.com/HerbHall/logsentinel/pkg/plugin"
	"github.com/HerbHall/logsentinel/pkg/roles"
	"go.uber.org/zap"
)

// Topics. TopicWindowCollected carries an analytics.Window and
// TopicVerdictReady an analytics.Assessment.
const (
	TopicWindowCollected = "collector.window.collected"
	TopicVerdictReady    = "insight.verdict.ready"
)

var (
	_ plugin.Plugin           = (*Module)(nil)
	_ plugin.HTTPProvider     = (*Module)(nil)
	_ plugin.HealthChecker    = (*Module)(nil)
	_ plugin.EventSubscriber  = (*Module)(nil)
	_ plugin.Validator        = (*Module)(nil)
	_ roles.AnalyticsProvider = (*Module)(nil)
)

// Module scores windows and owns the baselines.
type Module struct {
	logger  *zap.Logger
	cfg     InsightConfig
	engine  *Engine
	history *InsightStore // nil without a shared database
	bus     plugin.EventBus

	stopSweep context.CancelFunc
	swept     chan struct{} // closed when the history sweep exits
}

// New returns an uninitialized module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "insight",
		Version:     "0.1.0",
		Description: "Streaming baselines and anomaly scoring",
		Roles:       []string{roles.RoleAnalytics},
		Required:    true,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal insight config: %w", err)
		}
	}
	if err := m.cfg.Validate(); err != nil {
		return fmt.Errorf("insight config: %w", err)
	}

	if deps.Store != nil {
		if err := deps.Store.Migrate(ctx, "insight", migrations()); err != nil {
			return fmt.Errorf("insight migrations: %w", err)
		}
		m.history = NewInsightStore(deps.Store)
	}

	var persister Persister
	switch m.cfg.Backend {
	case BackendSQLite:
		if m.history == nil {
			return fmt.Errorf("sqlite backend requires a database")
		}
		persister = m.history
	default:
		persister = NewFileState(m.cfg.StatePath, m.logger)
	}

	engine, err := NewEngine(ctx, persister, m.cfg.EngineConfig(), m.logger)
	if err != nil {
		return err
	}
	m.engine = engine

	m.logger.Info("insight module initialized",
		zap.String("backend", m.cfg.Backend),
		zap.Float64("ewma_alpha", m.cfg.EWMAAlpha),
		zap.Float64("zscore_threshold", m.cfg.ZScoreThreshold),
		zap.Int("max_identities", m.cfg.MaxIdentities),
		zap.Duration("identity_idle_ttl", m.cfg.IdentityIdleTTL),
		zap.Int("tracked_identities", m.engine.TrackedIdentities()),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

// Start launches the verdict history sweep when history is kept.
func (m *Module) Start(_ context.Context) error {
	if m.history == nil || m.cfg.MaintenanceInterval <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.stopSweep, m.swept = cancel, make(chan struct{})
	go m.sweepHistoryEvery(ctx, m.cfg.MaintenanceInterval, m.swept)
	m.logger.Debug("verdict history sweep started", zap.Duration("every", m.cfg.MaintenanceInterval))
	return nil
}

// Stop waits for the history sweep to exit.
func (m *Module) Stop(_ context.Context) error {
	if m.stopSweep != nil {
		m.stopSweep()
		<-m.swept
		m.stopSweep = nil
	}
	return nil
}

// Health reports the backend, the identity count and the last verdict.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.engine == nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "not initialized"}
	}
	details := map[string]string{
		"backend":            m.cfg.Backend,
		"tracked_identities": strconv.Itoa(m.engine.TrackedIdentities()),
	}
	if v, ok := m.engine.LatestVerdict(); ok {
		details["last_verdict_at"] = v.GeneratedAt.UTC().Format(time.RFC3339)
		details["last_classification"] = v.Classification
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// Subscriptions runs a pass for every collected window.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: TopicWindowCollected, Handler: m.handleWindowCollected},
	}
}

func (m *Module) handleWindowCollected(ctx context.Context, event plugin.Event) {
	var w analytics.Window
	switch p := event.Payload.(type) {
	case analytics.Window:
		w = p
	case *analytics.Window:
		if p == nil {
			return
		}
		w = *p
	default:
		m.logger.Debug("ignored window event: unexpected payload type",
			zap.String("source", event.Source))
		return
	}

	if _, err := m.Process(ctx, w); err != nil {
		m.logger.Error("window pass failed", zap.Error(err))
	}
}

// Process runs one pass over w and publishes the verdict. The verdict is
// returned and published even when persisting the baselines fails.
func (m *Module) Process(ctx context.Context, w analytics.Window) (analytics.Verdict, error) {
	v, err := m.engine.Pass(ctx, w.Observation)

	if m.history != nil {
		if herr := m.history.InsertVerdict(ctx, &v); herr != nil {
			m.logger.Warn("failed to record verdict history", zap.Error(herr))
		}
	}

	if m.bus != nil {
		_ = m.bus.Publish(ctx, plugin.Event{
			Topic:     TopicVerdictReady,
			Source:    "insight",
			Timestamp: v.GeneratedAt,
			Payload:   analytics.Assessment{Window: w, Verdict: v},
		})
	}
	return v, err
}

// Reset discards all learned baselines.
func (m *Module) Reset(ctx context.Context) error {
	return m.engine.Reset(ctx)
}

// LatestVerdict implements roles.AnalyticsProvider.
func (m *Module) LatestVerdict() (*analytics.Verdict, bool) {
	if m.engine == nil {
		return nil, false
	}
	return m.engine.LatestVerdict()
}

// Baselines implements roles.AnalyticsProvider.
func (m *Module) Baselines() analytics.BaselineSnapshot {
	if m.engine == nil {
		return analytics.BaselineSnapshot{}
	}
	return m.engine.Snapshot()
}
