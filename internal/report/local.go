package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/HerbHall/logsentinel/pkg/analytics"
)

// LocalSummary renders the assessment without a language model.
func LocalSummary(a analytics.Assessment, defaultLabel string) string {
	w, v := a.Window, a.Verdict

	byIP := newCounter()
	byCountry := newCounter()
	byCity := newCounter()
	for _, f := range w.FailedLogins {
		if f.SourceIP != "" {
			byIP.add(f.SourceIP)
		}
		if f.Country != "" {
			byCountry.add(f.Country)
		}
		byCity.add(orUnknown(f.Country) + "/" + orUnknown(f.City))
	}

	label := w.Label
	if label == "" {
		label = defaultLabel
	}

	failed, _ := v.Signal(analytics.SignalFailedLogins)
	fiveXX, _ := v.Signal(analytics.SignalServerErrors)

	lines := []string{
		"AI Summary (local + baseline model)",
		"Window: " + label,
		fmt.Sprintf("- Failed logins: %d  (z≈%s)   Top IPs: %s", failed.Count, formatZ(failed.ZScore), byIP.top(3)),
		"- Top countries: " + byCountry.top(3),
		"- Top cities: " + byCity.top(3),
		fmt.Sprintf("- HTTP 5xx lines: %d  (z≈%s)", fiveXX.Count, formatZ(fiveXX.ZScore)),
	}
	if len(v.AnomalousIdentities) > 0 {
		ids := make([]string, len(v.AnomalousIdentities))
		for i, id := range v.AnomalousIdentities {
			ids[i] = fmt.Sprintf("%s(%d)", id.Identity, id.Count)
		}
		lines = append(lines, "- Anomalous IPs: "+strings.Join(ids, ", "))
	}
	lines = append(lines, "ML verdict: "+v.Classification)
	return strings.Join(lines, "\n")
}

// formatZ rounds a z-score to two decimals for display.
func formatZ(z float64) string {
	return fmt.Sprintf("%.2f", z)
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

// counter tallies keys and remembers first-seen order to break ties.
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

// top renders the n most common keys as "key(count), ...", or "n/a".
func (c *counter) top(n int) string {
	keys := append([]string(nil), c.order...)
	sort.SliceStable(keys, func(i, j int) bool {
		return c.counts[keys[i]] > c.counts[keys[j]]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	if len(keys) == 0 {
		return "n/a"
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s(%d)", k, c.counts[k])
	}
	return strings.Join(parts, ", ")
}
