package window

import (
	"testing"
	"time"

	"github.com/HerbHall/logsentinel/pkg/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLoginFailures(t *testing.T) {
	lines := []string{
		`{"event_type":"login_failed","ts":"2026-03-01T12:00:00Z","source_ip":"1.2.3.4","geo_country":"DE","geo_city":"Berlin"}`,
		`{"event_type":"login_ok","source_ip":"1.2.3.4"}`,
		`not json at all`,
		`{"event_type":"login_failed","ts":1772366400,"source_ip":" 5.6.7.8 "}`,
		`["login_failed"]`,
		`{"event_type":"login_failed"}`,
	}

	got := ParseLoginFailures(lines)
	require.Len(t, got, 3)

	assert.Equal(t, analytics.LoginFailure{
		Timestamp: "2026-03-01T12:00:00Z",
		SourceIP:  "1.2.3.4",
		Country:   "DE",
		City:      "Berlin",
	}, got[0])
	assert.Equal(t, "1772366400", got[1].Timestamp)
	assert.Equal(t, "5.6.7.8", got[1].SourceIP)
	assert.Empty(t, got[2].SourceIP)
}

func TestParseLoginFailures_Empty(t *testing.T) {
	assert.Empty(t, ParseLoginFailures(nil))
}

func TestBuild(t *testing.T) {
	end := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	start := end.Add(-15 * time.Minute)
	failures := []analytics.LoginFailure{
		{SourceIP: "1.2.3.4"},
		{SourceIP: "1.2.3.4"},
		{SourceIP: "5.6.7.8"},
		{},
	}
	fiveXX := []string{
		`10.0.0.1 - - "GET / HTTP/1.1" 500 12`,
		`10.0.0.1 - - "GET /x HTTP/1.1" 503 0`,
	}

	w := Build("last 15 minutes", start, end, failures, fiveXX)

	assert.Equal(t, "last 15 minutes", w.Label)
	assert.Equal(t, start, w.Observation.Start)
	assert.Equal(t, end, w.Observation.End)
	assert.Equal(t, 4, w.Observation.Totals[analytics.SignalFailedLogins])
	assert.Equal(t, 2, w.Observation.Totals[analytics.SignalServerErrors])
	assert.Equal(t, map[string]int{"1.2.3.4": 2, "5.6.7.8": 1}, w.Observation.Identities)
	assert.Len(t, w.FailedLogins, 4)
	assert.Len(t, w.ServerErrors, 2)
}

func TestBuild_EmptyWindow(t *testing.T) {
	w := Build("", time.Time{}, time.Time{}, nil, nil)
	assert.Equal(t, 0, w.Observation.Totals[analytics.SignalFailedLogins])
	assert.Equal(t, 0, w.Observation.Totals[analytics.SignalServerErrors])
	assert.Empty(t, w.Observation.Identities)
	assert.NotNil(t, w.FailedLogins)
	assert.NotNil(t, w.ServerErrors)
}
