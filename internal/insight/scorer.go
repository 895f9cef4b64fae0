package insight

import (
	"sort"
	"time"

	"github.com/HerbHall/logsentinel/internal/insight/anomaly"
	"github.com/HerbHall/logsentinel/pkg/analytics"
)

// Rules bundles the thresholds applied by Score.
type Rules struct {
	Identity anomaly.IdentityRule
	Signals  []anomaly.SignalRule
}

// DefaultRules returns the brute-force and app-error rule set.
func DefaultRules() Rules {
	return Rules{
		Identity: anomaly.DefaultIdentityRule(),
		Signals:  anomaly.DefaultRules(),
	}
}

// signalNames returns DefaultSignals plus any signal a rule refers to.
func (r Rules) signalNames() []string {
	names := append([]string(nil), DefaultSignals...)
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	for _, rule := range r.Signals {
		if !seen[rule.Signal] {
			seen[rule.Signal] = true
			names = append(names, rule.Signal)
		}
	}
	return names
}

// Score evaluates one window against the store's current baselines. It
// reads only pre-update state; the one mutation is GetOrCreate registering
// identities first seen in this window. ID and GeneratedAt are left for
// the caller.
func Score(obs analytics.Observation, s *Store, rules Rules) analytics.Verdict {
	v := analytics.Verdict{
		WindowStart: obs.Start,
		WindowEnd:   obs.End,
	}

	zs := make(map[string]float64, len(s.order))
	for _, name := range s.order {
		rs := s.signals[name]
		count := obs.Totals[name]
		mean, std := rs.Mean(), rs.StdDev()
		z := anomaly.ZScore(float64(count), mean, std)
		zs[name] = z
		v.Signals = append(v.Signals, analytics.SignalScore{
			Signal:       name,
			Count:        count,
			ZScore:       z,
			BaselineMean: mean,
			BaselineStd:  std,
			Samples:      rs.Count(),
		})
	}

	var flagged []int
	for id, count := range obs.Identities {
		rs := s.GetOrCreate(id)
		mean, std := rs.Mean(), rs.StdDev()
		if !rules.Identity.Anomalous(count, mean, std) {
			continue
		}
		v.AnomalousIdentities = append(v.AnomalousIdentities, analytics.AnomalousIdentity{
			Identity: id,
			Count:    count,
			ZScore:   anomaly.ZScore(float64(count), mean, std),
		})
		flagged = append(flagged, count)
	}
	sort.Slice(v.AnomalousIdentities, func(i, j int) bool {
		a, b := v.AnomalousIdentities[i], v.AnomalousIdentities[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Identity < b.Identity
	})

	for _, rule := range rules.Signals {
		if rule.Fires(obs.Totals[rule.Signal], zs[rule.Signal], flagged) {
			v.Findings = append(v.Findings, rule.Finding)
		}
	}
	v.Classification = anomaly.Classify(v.Findings)
	v.Alert = len(v.Findings) > 0
	return v
}

// Advance folds the window into the baselines: every global signal with its
// count (0 when absent) and every identity present in the window. Identities
// absent from the window are left untouched.
func Advance(obs analytics.Observation, s *Store, now time.Time) {
	for _, name := range s.order {
		s.signals[name].Update(float64(obs.Totals[name]))
	}
	for id, count := range obs.Identities {
		s.GetOrCreate(id).Update(float64(count))
		s.touch(id, now)
	}
}
