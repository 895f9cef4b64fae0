// Package analytics provides the public data types exchanged between the
// collectors, the baseline engine and the reporting plugins.
package analytics

import "time"

// Global signal names tracked by the engine.
const (
	SignalFailedLogins = "total_failed"
	SignalServerErrors = "total_5xx"
)

// Observation is one window's aggregated counts. It is never persisted.
type Observation struct {
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	Totals     map[string]int `json:"totals"`     // signal -> count
	Identities map[string]int `json:"identities"` // identity (source IP) -> count
}

// Normalize clamps negative counts to zero and drops empty identity keys.
// The engine accepts any non-negative count.
func (o *Observation) Normalize() {
	for k, v := range o.Totals {
		if v < 0 {
			o.Totals[k] = 0
		}
	}
	for k, v := range o.Identities {
		if k == "" {
			delete(o.Identities, k)
			continue
		}
		if v < 0 {
			o.Identities[k] = 0
		}
	}
}

// SignalScore is one global signal's count scored against its prior baseline.
type SignalScore struct {
	Signal       string  `json:"signal"`
	Count        int     `json:"count"`
	ZScore       float64 `json:"z_score"`
	BaselineMean float64 `json:"baseline_mean"`
	BaselineStd  float64 `json:"baseline_std"`
	Samples      int64   `json:"samples"`
}

// AnomalousIdentity is an identity whose window count crossed its threshold.
type AnomalousIdentity struct {
	Identity string  `json:"identity"`
	Count    int     `json:"count"`
	ZScore   float64 `json:"z_score"`
}

// Verdict is the structured result of one scoring pass.
type Verdict struct {
	ID                  string              `json:"id"`
	GeneratedAt         time.Time           `json:"generated_at"`
	WindowStart         time.Time           `json:"window_start"`
	WindowEnd           time.Time           `json:"window_end"`
	Signals             []SignalScore       `json:"signals"`
	AnomalousIdentities []AnomalousIdentity `json:"anomalous_identities"`
	Findings            []string            `json:"findings"`
	Classification      string              `json:"classification"`
	Alert               bool                `json:"alert"`
}

// Signal returns the score for the named signal.
func (v *Verdict) Signal(name string) (SignalScore, bool) {
	for _, s := range v.Signals {
		if s.Signal == name {
			return s, true
		}
	}
	return SignalScore{}, false
}

// StatSnapshot is a read-only view of one baseline.
type StatSnapshot struct {
	Mean     float64    `json:"mean"`
	StdDev   float64    `json:"std_dev"`
	Count    int64      `json:"count"`
	EWMA     *float64   `json:"ewma"`
	Alpha    float64    `json:"alpha"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// BaselineSnapshot is a point-in-time copy of every tracked baseline.
type BaselineSnapshot struct {
	Signals    map[string]StatSnapshot `json:"signals"`
	Identities map[string]StatSnapshot `json:"identities"`
}

// LoginFailure is one parsed failed-login event.
type LoginFailure struct {
	Timestamp string `json:"ts,omitempty"`
	SourceIP  string `json:"source_ip,omitempty"`
	Country   string `json:"geo_country,omitempty"`
	City      string `json:"geo_city,omitempty"`
}

// Window is one collected window: the aggregated observation plus the raw
// samples a summary may quote.
type Window struct {
	Label        string         `json:"label"` // human description, e.g. "last 15 minutes"
	Observation  Observation    `json:"observation"`
	FailedLogins []LoginFailure `json:"failed_logins"`
	ServerErrors []string       `json:"server_errors"`
}

// Assessment pairs a window with the verdict scored for it.
type Assessment struct {
	Window  Window  `json:"window"`
	Verdict Verdict `json:"verdict"`
}

// Summary is the rendered report for one assessment.
type Summary struct {
	VerdictID string `json:"verdict_id"`
	Text      string `json:"text"`
	Alert     bool   `json:"alert"`
	Source    string `json:"source"` // "llm" or "local"
}
