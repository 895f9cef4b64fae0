package anomaly

import (
	"strings"

	"github.com/HerbHall/logsentinel/pkg/analytics"
)

// Finding texts emitted by the default rules.
const (
	FindingBruteForce = "possible brute-force (failed logins abnormal)"
	FindingAppError   = "possible app error (5xx spike)"
)

// NormalClassification is the verdict text when no rule fires.
const NormalClassification = "normal traffic"

// SignalRule maps one global signal to a finding. The rule fires when any
// of its enabled triggers holds; a zero value disables that trigger.
type SignalRule struct {
	Signal  string
	Finding string

	// ZThreshold fires when the signal's z-score is >= this value.
	ZThreshold float64
	// AbsoluteFloor fires when the raw count is >= this value.
	AbsoluteFloor int
	// IdentityLinked fires when any flagged identity has a count >= IdentityMinCount.
	IdentityLinked   bool
	IdentityMinCount int
}

// Fires reports whether the rule applies. flagged holds the counts of the
// identities already classified anomalous in this window.
func (r SignalRule) Fires(count int, z float64, flagged []int) bool {
	if r.ZThreshold > 0 && z >= r.ZThreshold {
		return true
	}
	if r.AbsoluteFloor > 0 && count >= r.AbsoluteFloor {
		return true
	}
	if r.IdentityLinked {
		for _, c := range flagged {
			if c >= r.IdentityMinCount {
				return true
			}
		}
	}
	return false
}

// DefaultRules returns the brute-force and app-error rules in report order.
func DefaultRules() []SignalRule {
	return []SignalRule{
		{
			Signal:           analytics.SignalFailedLogins,
			Finding:          FindingBruteForce,
			ZThreshold:       2,
			IdentityLinked:   true,
			IdentityMinCount: 10,
		},
		{
			Signal:        analytics.SignalServerErrors,
			Finding:       FindingAppError,
			ZThreshold:    2,
			AbsoluteFloor: 5,
		},
	}
}

// Classify joins findings into the verdict text.
func Classify(findings []string) string {
	if len(findings) == 0 {
		return NormalClassification
	}
	return strings.Join(findings, "; ")
}
