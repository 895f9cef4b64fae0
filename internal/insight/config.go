package insight

import (
	"fmt"
	"time"

	"github.com/HerbHall/logsentinel/internal/insight/anomaly"
	"github.com/HerbHall/logsentinel/internal/insight/baseline"
	"github.com/HerbHall/logsentinel/pkg/analytics"
)

// Backend names for InsightConfig.Backend.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// InsightConfig holds configuration for the Insight plugin.
type InsightConfig struct {
	Backend             string        `mapstructure:"backend"`
	StatePath           string        `mapstructure:"state_path"`
	EWMAAlpha           float64       `mapstructure:"ewma_alpha"`
	MaxIdentities       int           `mapstructure:"max_identities"`
	IdentityIdleTTL     time.Duration `mapstructure:"identity_idle_ttl"`
	ZScoreThreshold     float64       `mapstructure:"zscore_threshold"`
	ServerErrorFloor    int           `mapstructure:"server_error_floor"`
	IdentityFloor       float64       `mapstructure:"identity_floor"`
	IdentitySigma       float64       `mapstructure:"identity_sigma"`
	IdentityMinStd      float64       `mapstructure:"identity_min_std"`
	VerdictRetention    time.Duration `mapstructure:"verdict_retention"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// DefaultConfig returns sensible defaults for the Insight module.
func DefaultConfig() InsightConfig {
	return InsightConfig{
		Backend:             BackendFile,
		StatePath:           "./data/model_state.json",
		EWMAAlpha:           baseline.DefaultAlpha,
		MaxIdentities:       10000,
		IdentityIdleTTL:     30 * 24 * time.Hour,
		ZScoreThreshold:     2,
		ServerErrorFloor:    5,
		IdentityFloor:       10,
		IdentitySigma:       3,
		IdentityMinStd:      1,
		VerdictRetention:    30 * 24 * time.Hour,
		MaintenanceInterval: time.Hour,
	}
}

// Validate rejects settings the engine cannot run with.
func (c InsightConfig) Validate() error {
	switch c.Backend {
	case BackendFile:
		if c.StatePath == "" {
			return fmt.Errorf("state_path is required for the file backend")
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", c.Backend, BackendFile, BackendSQLite)
	}
	if c.MaxIdentities < 0 {
		return fmt.Errorf("max_identities must be >= 0, got %d", c.MaxIdentities)
	}
	if c.IdentityIdleTTL < 0 {
		return fmt.Errorf("identity_idle_ttl must be >= 0, got %s", c.IdentityIdleTTL)
	}
	if c.ZScoreThreshold <= 0 {
		return fmt.Errorf("zscore_threshold must be > 0, got %g", c.ZScoreThreshold)
	}
	if c.ServerErrorFloor <= 0 {
		return fmt.Errorf("server_error_floor must be > 0, got %d", c.ServerErrorFloor)
	}
	if c.IdentitySigma < 0 || c.IdentityMinStd < 0 || c.IdentityFloor < 0 {
		return fmt.Errorf("identity thresholds must be non-negative")
	}
	return nil
}

// Rules builds the scoring rules from the configured thresholds.
func (c InsightConfig) Rules() Rules {
	return Rules{
		Identity: anomaly.IdentityRule{
			Floor:  c.IdentityFloor,
			Sigma:  c.IdentitySigma,
			MinStd: c.IdentityMinStd,
		},
		Signals: []anomaly.SignalRule{
			{
				Signal:           analytics.SignalFailedLogins,
				Finding:          anomaly.FindingBruteForce,
				ZThreshold:       c.ZScoreThreshold,
				IdentityLinked:   true,
				IdentityMinCount: int(c.IdentityFloor),
			},
			{
				Signal:        analytics.SignalServerErrors,
				Finding:       anomaly.FindingAppError,
				ZThreshold:    c.ZScoreThreshold,
				AbsoluteFloor: c.ServerErrorFloor,
			},
		},
	}
}

// Eviction returns the identity eviction policy.
func (c InsightConfig) Eviction() EvictionPolicy {
	return EvictionPolicy{MaxIdentities: c.MaxIdentities, IdleTTL: c.IdentityIdleTTL}
}

// EngineConfig returns the engine settings derived from this config.
func (c InsightConfig) EngineConfig() EngineConfig {
	return EngineConfig{Alpha: c.EWMAAlpha, Rules: c.Rules(), Eviction: c.Eviction()}
}
