// Package llm registers the language-model provider that the report module
// resolves by role to phrase summaries.
package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/logsentinel/internal/llm/openai"
	pkgllm "github.com/HerbHall/logsentinel/pkg/llm"
	"github.com/HerbHall/logsentinel/pkg/plugin"
	"github.com/HerbHall/logsentinel/pkg/roles"
	"go.uber.org/zap"
)

var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ roles.LLMProvider    = (*Module)(nil)
)

// Config selects and configures the provider.
type Config struct {
	// Provider is "openai" or "none".
	Provider string        `mapstructure:"provider"`
	OpenAI   openai.Config `mapstructure:"openai"`

	// PingInterval bounds how often Health contacts the provider.
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// Module owns the provider. A nil provider makes the report module render
// summaries locally.
type Module struct {
	logger   *zap.Logger
	cfg      Config
	provider pkgllm.Provider
	now      func() time.Time

	mu       sync.Mutex
	pingedAt time.Time
	pingErr  error
}

// New returns an uninitialized module.
func New() *Module {
	return &Module{now: time.Now}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "llm",
		Version:     "0.1.0",
		Description: "Language-model provider for prose summaries",
		Roles:       []string{roles.RoleLLM},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.cfg = Config{
		Provider:     "openai",
		OpenAI:       openai.DefaultConfig(),
		PingInterval: time.Minute,
	}
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal llm config: %w", err)
		}
	}

	switch m.cfg.Provider {
	case "openai", "":
		// No key means summaries stay local rather than failing startup.
		if m.cfg.OpenAI.APIKey == "" {
			break
		}
		c, err := openai.New(m.cfg.OpenAI, m.logger.Named("openai"))
		if err != nil {
			return err
		}
		m.provider = c
	case "none":
	default:
		return fmt.Errorf("unknown llm provider %q", m.cfg.Provider)
	}

	m.logger.Info("llm plugin initialized",
		zap.String("provider", m.cfg.Provider),
		zap.Bool("enabled", m.provider != nil),
	)
	return nil
}

// Start checks reachability once. An unreachable provider is a warning:
// the report module falls back to the local summary.
func (m *Module) Start(ctx context.Context) error {
	if _, ok := m.provider.(pkgllm.Pinger); !ok {
		return nil
	}
	if err := m.ping(ctx, true); err != nil {
		m.logger.Warn("llm provider not reachable, summaries will be rendered locally", zap.Error(err))
		return nil
	}
	m.logger.Info("llm provider reachable", zap.String("provider", m.cfg.Provider))
	return nil
}

func (m *Module) Stop(context.Context) error { return nil }

// ping returns the last ping result, refreshing it when force is set or it
// is older than PingInterval.
func (m *Module) ping(ctx context.Context, force bool) error {
	p, ok := m.provider.(pkgllm.Pinger)
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !force && !m.pingedAt.IsZero() && m.now().Sub(m.pingedAt) < m.cfg.PingInterval {
		return m.pingErr
	}
	m.pingErr = p.Ping(ctx)
	m.pingedAt = m.now()
	return m.pingErr
}

// Health reports "degraded" while the provider is unreachable.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	if m.provider == nil {
		return plugin.HealthStatus{Status: "healthy", Message: "disabled, summaries rendered locally"}
	}
	if err := m.ping(ctx, false); err != nil {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: err.Error(),
			Details: map[string]string{"kind": pkgllm.KindOf(err).String()},
		}
	}
	return plugin.HealthStatus{Status: "healthy", Details: map[string]string{"provider": m.cfg.Provider}}
}

// Provider implements roles.LLMProvider. It is nil when disabled.
func (m *Module) Provider() pkgllm.Provider {
	return m.provider
}
