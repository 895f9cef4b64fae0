package insight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HerbHall/logsentinel/internal/insight/anomaly"
	"github.com/HerbHall/logsentinel/internal/metrics"
	"github.com/HerbHall/logsentinel/pkg/analytics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EngineConfig controls how an Engine scores and retains baselines.
type EngineConfig struct {
	Alpha    float64
	Rules    Rules
	Eviction EvictionPolicy
}

// Engine is the single writer of the baseline store. Pass, Snapshot, and
// Reset are serialized, so a window is scored, folded in, and saved before
// the next one is looked at.
type Engine struct {
	mu        sync.Mutex
	store     *Store
	persister Persister
	cfg       EngineConfig
	signals   []string
	latest    *analytics.Verdict
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngine loads the persisted baselines. Absent or corrupt state is the
// persister's concern and loads as a fresh store; any error it returns means
// the backend failed, and is returned so the next save cannot overwrite
// learned baselines with empty ones.
func NewEngine(ctx context.Context, p Persister, cfg EngineConfig, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Rules.Signals) == 0 && cfg.Rules.Identity == (anomaly.IdentityRule{}) {
		cfg.Rules = DefaultRules()
	}
	e := &Engine{
		persister: p,
		cfg:       cfg,
		signals:   cfg.Rules.signalNames(),
		logger:    logger,
		now:       time.Now,
	}

	s, err := p.Load(ctx, cfg.Alpha, e.signals...)
	if err != nil {
		return nil, fmt.Errorf("load baselines: %w", err)
	}
	e.store = s
	metrics.TrackedIdentities.Set(float64(s.Len()))
	return e, nil
}

// Pass scores obs against the current baselines, then folds it in, applies
// eviction, and saves. The verdict is returned even when saving fails; the
// in-memory baselines keep the update either way.
func (e *Engine) Pass(ctx context.Context, obs analytics.Observation) (analytics.Verdict, error) {
	start := time.Now()
	obs = cloneObservation(obs)
	obs.Normalize()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	v := Score(obs, e.store, e.cfg.Rules)
	v.ID = uuid.NewString()
	v.GeneratedAt = now

	Advance(obs, e.store, now)

	evicted := e.store.Evict(e.cfg.Eviction, now, obs.Identities)
	if len(evicted) > 0 {
		metrics.EvictedIdentitiesTotal.Add(float64(len(evicted)))
		e.logger.Info("evicted idle identities",
			zap.Int("count", len(evicted)),
			zap.Int("remaining", e.store.Len()),
		)
	}

	latest := v
	e.latest = &latest
	e.observe(v)

	err := e.persister.Save(ctx, e.store)
	metrics.InsightPassDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.InsightPassesTotal.WithLabelValues("save_error").Inc()
		e.logger.Error("baseline save failed", zap.Error(err))
		return v, fmt.Errorf("save baselines: %w", err)
	}

	result := "ok"
	if v.Alert {
		result = "alert"
	}
	metrics.InsightPassesTotal.WithLabelValues(result).Inc()

	e.logger.Info("window scored",
		zap.String("verdict_id", v.ID),
		zap.String("classification", v.Classification),
		zap.Int("anomalous_identities", len(v.AnomalousIdentities)),
		zap.Int("tracked_identities", e.store.Len()),
	)
	return v, nil
}

func (e *Engine) observe(v analytics.Verdict) {
	for _, s := range v.Signals {
		metrics.SignalZScore.WithLabelValues(s.Signal).Set(s.ZScore)
	}
	metrics.AnomalousIdentities.Set(float64(len(v.AnomalousIdentities)))
	metrics.TrackedIdentities.Set(float64(e.store.Len()))
}

// Snapshot returns a deep copy of every baseline.
func (e *Engine) Snapshot() analytics.BaselineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Snapshot()
}

// LatestVerdict returns a copy of the most recent verdict.
func (e *Engine) LatestVerdict() (*analytics.Verdict, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest == nil {
		return nil, false
	}
	v := *e.latest
	return &v, true
}

// Reset discards every learned baseline and persists the empty store.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store = NewStore(e.cfg.Alpha, e.signals...)
	e.latest = nil
	metrics.TrackedIdentities.Set(0)
	if err := e.persister.Save(ctx, e.store); err != nil {
		return fmt.Errorf("save reset baselines: %w", err)
	}
	e.logger.Warn("baselines reset")
	return nil
}

// TrackedIdentities returns the number of identities with a baseline.
func (e *Engine) TrackedIdentities() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Len()
}

func cloneObservation(o analytics.Observation) analytics.Observation {
	out := analytics.Observation{
		Start:      o.Start,
		End:        o.End,
		Totals:     make(map[string]int, len(o.Totals)),
		Identities: make(map[string]int, len(o.Identities)),
	}
	for k, v := range o.Totals {
		out.Totals[k] = v
	}
	for k, v := range o.Identities {
		out.Identities[k] = v
	}
	return out
}
