// Package webhook delivers rendered summaries to a Discord-compatible
// webhook as a single embed, red when the verdict raised a finding.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/HerbHall/logsentinel/internal/metrics"
	"github.com/HerbHall/logsentinel/pkg/analytics"
	"github.com/HerbHall/logsentinel/pkg/plugin"
	"github.com/HerbHall/logsentinel/pkg/roles"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// TopicSummaryReady carries an analytics.Summary.
const TopicSummaryReady = "report.summary.ready"

// Embed colors.
const (
	ColorAlert  = 15158332
	ColorNormal = 5793266
)

// DefaultTitle is the embed title for summaries.
const DefaultTitle = "AI Log Summary"

var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.Validator       = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ roles.Notifier         = (*Module)(nil)
)

// maxDescriptionRunes is Discord's limit for an embed description.
const maxDescriptionRunes = 4096

// ErrRateLimited is returned by Notify when the local send budget is spent.
var ErrRateLimited = errors.New("webhook rate limit exceeded")

// Config configures delivery. An empty URL disables posting.
type Config struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerMinute float64       `mapstructure:"rate_per_minute"`
}

// DefaultConfig matches the delivery timeout summaries were posted with.
func DefaultConfig() Config {
	return Config{Enabled: true, Timeout: 10 * time.Second, RatePerMinute: 30}
}

// Module posts summaries as Discord embeds.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter // nil when unlimited

	mu      sync.Mutex
	lastErr error
	lastAt  time.Time
}

// New returns an uninitialized module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "webhook",
		Version:     "0.1.0",
		Description: "Posts each summary to a Discord-compatible webhook",
		Roles:       []string{roles.RoleNotification},
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal webhook config: %w", err)
		}
	}
	if m.cfg.Timeout <= 0 {
		m.cfg.Timeout = DefaultConfig().Timeout
	}

	m.client = &http.Client{Timeout: m.cfg.Timeout}
	if m.cfg.RatePerMinute > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(m.cfg.RatePerMinute/60), 1)
	}

	m.logger.Info("webhook module initialized",
		zap.Bool("configured", m.active()),
		zap.Duration("timeout", m.cfg.Timeout),
		zap.Float64("rate_per_minute", m.cfg.RatePerMinute),
	)
	return nil
}

// ValidateConfig rejects a URL that is not absolute http or https.
func (m *Module) ValidateConfig() error {
	if m.cfg.URL == "" {
		return nil
	}
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook url %q: want an absolute http(s) url", m.cfg.URL)
	}
	return nil
}

func (m *Module) Start(context.Context) error { return nil }
func (m *Module) Stop(context.Context) error  { return nil }

func (m *Module) active() bool {
	return m.cfg.Enabled && m.cfg.URL != ""
}

// Subscriptions implements plugin.EventSubscriber.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: TopicSummaryReady, Handler: m.handleSummary},
	}
}

// Health is "degraded" while the most recent delivery failed.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if !m.active() {
		return plugin.HealthStatus{Status: "healthy", Message: "not configured"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastAt.IsZero() {
		return plugin.HealthStatus{Status: "healthy"}
	}
	details := map[string]string{"last_delivery": m.lastAt.UTC().Format(time.RFC3339)}
	if m.lastErr != nil && !errors.Is(m.lastErr, ErrRateLimited) {
		return plugin.HealthStatus{Status: "degraded", Message: m.lastErr.Error(), Details: details}
	}
	return plugin.HealthStatus{Status: "healthy", Details: details}
}

// Payload is the JSON body sent to the webhook URL.
type Payload struct {
	Embeds []Embed `json:"embeds"`
}

// Embed is one Discord embed.
type Embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

// BuildPayload renders n as a single-embed payload.
func BuildPayload(n roles.Notification) Payload {
	title := n.Title
	if title == "" {
		title = DefaultTitle
	}
	color := ColorNormal
	if n.Alert {
		color = ColorAlert
	}
	return Payload{Embeds: []Embed{{Title: title, Description: clip(n.Body, maxDescriptionRunes), Color: color}}}
}

// clip shortens s to at most n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func (m *Module) handleSummary(ctx context.Context, event plugin.Event) {
	s, ok := event.Payload.(analytics.Summary)
	if !ok {
		m.logger.Debug("ignored summary event: unexpected payload type",
			zap.String("source", event.Source))
		return
	}
	if err := m.Notify(ctx, roles.Notification{Title: DefaultTitle, Body: s.Text, Alert: s.Alert}); err != nil {
		m.logger.Warn("webhook delivery failed",
			zap.String("verdict_id", s.VerdictID),
			zap.Error(err),
		)
	}
}

// Notify implements roles.Notifier. It is a no-op when no URL is configured.
func (m *Module) Notify(ctx context.Context, n roles.Notification) error {
	if !m.active() {
		metrics.WebhookDeliveriesTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	err := m.deliver(ctx, n)
	m.mu.Lock()
	m.lastErr, m.lastAt = err, time.Now()
	m.mu.Unlock()
	return err
}

func (m *Module) deliver(ctx context.Context, n roles.Notification) error {
	if m.limiter != nil && !m.limiter.Allow() {
		metrics.WebhookDeliveriesTotal.WithLabelValues("rate_limited").Inc()
		return ErrRateLimited
	}
	body, err := json.Marshal(BuildPayload(n))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	if err := m.send(ctx, body); err != nil {
		metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues("ok").Inc()
	return nil
}

func (m *Module) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "LogSentinel-Webhook/0.1")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}

	m.logger.Debug("webhook delivered", zap.Int("status_code", resp.StatusCode))
	return nil
}
