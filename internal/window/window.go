// Package window turns raw log lines from one collection window into the
// aggregated observation the baseline engine scores.
package window

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/HerbHall/logsentinel/pkg/analytics"
)

// EventLoginFailed is the event_type of a failed-login application log line.
const EventLoginFailed = "login_failed"

// loginEvent is the subset of the application's JSON log line we read.
type loginEvent struct {
	EventType string          `json:"event_type"`
	TS        json.RawMessage `json:"ts"`
	SourceIP  string          `json:"source_ip"`
	Country   string          `json:"geo_country"`
	City      string          `json:"geo_city"`
}

// ParseLoginFailures extracts failed-login events from JSON log lines.
// Lines that are not JSON objects or carry another event_type are skipped.
func ParseLoginFailures(lines []string) []analytics.LoginFailure {
	out := make([]analytics.LoginFailure, 0, len(lines))
	for _, line := range lines {
		var ev loginEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if ev.EventType != EventLoginFailed {
			continue
		}
		out = append(out, analytics.LoginFailure{
			Timestamp: rawString(ev.TS),
			SourceIP:  strings.TrimSpace(ev.SourceIP),
			Country:   ev.Country,
			City:      ev.City,
		})
	}
	return out
}

// rawString renders a JSON scalar as text: strings unquoted, numbers verbatim.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Build assembles the window: the observation counts every failed login, every
// server error line, and failed logins per non-empty source IP.
func Build(label string, start, end time.Time, failures []analytics.LoginFailure, serverErrors []string) analytics.Window {
	perIP := make(map[string]int)
	for _, f := range failures {
		if f.SourceIP != "" {
			perIP[f.SourceIP]++
		}
	}
	if failures == nil {
		failures = []analytics.LoginFailure{}
	}
	if serverErrors == nil {
		serverErrors = []string{}
	}
	return analytics.Window{
		Label: label,
		Observation: analytics.Observation{
			Start: start,
			End:   end,
			Totals: map[string]int{
				analytics.SignalFailedLogins: len(failures),
				analytics.SignalServerErrors: len(serverErrors),
			},
			Identities: perIP,
		},
		FailedLogins: failures,
		ServerErrors: serverErrors,
	}
}
