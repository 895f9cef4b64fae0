// Package anomaly holds the stateless scoring rules applied to a window:
// the guarded z-score, the per-identity threshold, and the per-signal
// finding rules.
package anomaly

import "math"

// MinStdDev is the smallest standard deviation treated as real variance.
// At or below it a baseline has not learned enough spread to score against.
const MinStdDev = 1e-6

// ZScore returns (x-mean)/std, or 0 when std <= MinStdDev.
func ZScore(x, mean, std float64) float64 {
	if std <= MinStdDev || math.IsNaN(std) {
		return 0
	}
	return (x - mean) / std
}

// IdentityRule decides whether one identity's window count is anomalous.
// A count is flagged when it reaches max(Floor, mean + Sigma*max(std, MinStd)).
type IdentityRule struct {
	Floor  float64 // absolute minimum count worth flagging
	Sigma  float64 // deviations above the mean
	MinStd float64 // lower bound on std while variance is still forming
}

// DefaultIdentityRule returns the rule used for per-IP failed-login counts.
func DefaultIdentityRule() IdentityRule {
	return IdentityRule{Floor: 10, Sigma: 3, MinStd: 1}
}

// Threshold returns the smallest count flagged for the given baseline.
func (r IdentityRule) Threshold(mean, std float64) float64 {
	return math.Max(r.Floor, mean+r.Sigma*math.Max(std, r.MinStd))
}

// Anomalous reports whether count reaches the threshold.
func (r IdentityRule) Anomalous(count int, mean, std float64) bool {
	return float64(count) >= r.Threshold(mean, std)
}
