// Package report renders each verdict as a short human summary, phrased by
// the language model when one is configured and locally otherwise, and
// publishes it to stdout, the web summary file and the bus.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/HerbHall/logsentinel/pkg/analytics"
	"github.com/HerbHall/logsentinel/pkg/llm"
	"github.com/HerbHall/logsentinel/pkg/plugin"
	"github.com/HerbHall/logsentinel/pkg/roles"
	"go.uber.org/zap"
)

// Event topics.
const (
	// TopicVerdictReady is consumed; it carries an analytics.Assessment.
	TopicVerdictReady = "insight.verdict.ready"
	// TopicSummaryReady is published; it carries an analytics.Summary.
	TopicSummaryReady = "report.summary.ready"
)

// Summary sources.
const (
	SourceLLM   = "llm"
	SourceLocal = "local"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ plugin.Validator       = (*Module)(nil)
)

// Module implements the report plugin.
type Module struct {
	logger  *zap.Logger
	cfg     ReportConfig
	bus     plugin.EventBus
	plugins plugin.PluginResolver
	out     io.Writer

	mu     sync.Mutex
	latest *analytics.Summary
}

// New creates a new report plugin instance.
func New() *Module {
	return &Module{out: os.Stdout}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "report",
		Version:     "0.1.0",
		Description: "Summary rendering for stdout, the web file, and notifiers",
		Roles:       []string{roles.RoleReporter},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus
	m.plugins = deps.Plugins

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal report config: %w", err)
		}
	}
	if err := m.cfg.Validate(); err != nil {
		return fmt.Errorf("report config: %w", err)
	}

	m.logger.Info("report module initialized",
		zap.String("web_file", m.cfg.WebFile),
		zap.Bool("stdout", m.cfg.Stdout),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	return m.cfg.Validate()
}

func (m *Module) Start(_ context.Context) error {
	m.logger.Info("report module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("report module stopped")
	return nil
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: TopicVerdictReady, Handler: m.handleVerdict},
	}
}

func (m *Module) handleVerdict(ctx context.Context, event plugin.Event) {
	a, ok := event.Payload.(analytics.Assessment)
	if !ok {
		m.logger.Debug("ignored verdict event: unexpected payload type",
			zap.String("source", event.Source))
		return
	}
	m.Publish(ctx, a)
}

// Publish renders a, prints it, writes the web file and announces the
// summary on the bus. Output failures are logged and never returned.
func (m *Module) Publish(ctx context.Context, a analytics.Assessment) analytics.Summary {
	s := m.Render(ctx, a)

	if m.cfg.Stdout && m.out != nil {
		fmt.Fprintf(m.out, "\n%s\n\n", s.Text)
	}
	if m.cfg.WebFile != "" {
		if err := writeWebFile(m.cfg.WebFile, s.Text); err != nil {
			m.logger.Warn("failed to write web summary",
				zap.String("path", m.cfg.WebFile),
				zap.Error(err),
			)
		}
	}

	m.mu.Lock()
	latest := s
	m.latest = &latest
	m.mu.Unlock()

	if m.bus != nil {
		_ = m.bus.Publish(ctx, plugin.Event{
			Topic:   TopicSummaryReady,
			Source:  "report",
			Payload: s,
		})
	}
	return s
}

// Render produces the summary text. With a language model available the
// model phrases it; any provider failure falls back to the local rendering
// with a note naming the error.
func (m *Module) Render(ctx context.Context, a analytics.Assessment) analytics.Summary {
	s := analytics.Summary{
		VerdictID: a.Verdict.ID,
		Alert:     a.Verdict.Alert,
		Source:    SourceLocal,
	}

	p := m.provider()
	if p == nil {
		s.Text = LocalSummary(a, m.cfg.WindowLabel)
		return s
	}

	text, err := llmSummary(ctx, p, a, m.cfg)
	if err != nil {
		m.logger.Warn("llm summary failed; using local summary", zap.Error(err))
		s.Text = LocalSummary(a, m.cfg.WindowLabel) + fmt.Sprintf("\n\n(Note: LLM unavailable: %v)", err)
		return s
	}
	s.Text = text
	s.Source = SourceLLM
	return s
}

// provider resolves the language model, or nil when none is enabled.
func (m *Module) provider() llm.Provider {
	if m.plugins == nil {
		return nil
	}
	for _, p := range m.plugins.ResolveByRole(roles.RoleLLM) {
		if lp, ok := p.(roles.LLMProvider); ok {
			if prov := lp.Provider(); prov != nil {
				return prov
			}
		}
	}
	return nil
}

// Latest returns the most recent summary.
func (m *Module) Latest() (analytics.Summary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return analytics.Summary{}, false
	}
	return *m.latest, true
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	details := map[string]string{"llm": "disabled"}
	if m.provider() != nil {
		details["llm"] = "enabled"
	}
	if s, ok := m.Latest(); ok {
		details["last_source"] = s.Source
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// writeWebFile replaces path with text and a trailing newline, atomically.
func writeWebFile(path, text string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.WriteString(tmp, text+"\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	// The web server reads this file; keep it world-readable.
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
