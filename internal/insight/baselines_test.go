package insight

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/HerbHall/logsentinel/pkg/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore_DefaultSignals(t *testing.T) {
	s := NewStore(0.3)
	assert.Equal(t, DefaultSignals, s.SignalNames())
	assert.Equal(t, 0, s.Len())

	_, ok := s.Signal(analytics.SignalServerErrors)
	assert.True(t, ok)
}

func TestStore_MarshalDocument(t *testing.T) {
	s := NewStore(0.3)
	seedSignal(t, s, analytics.SignalFailedLogins, 3, 1, 10)
	s.GetOrCreate("1.2.3.4").Update(5)
	s.touch("1.2.3.4", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, analytics.SignalFailedLogins)
	assert.Contains(t, doc, analytics.SignalServerErrors)
	assert.Contains(t, doc, "per_ip")
	assert.Contains(t, doc, "last_seen")

	var seen map[string]string
	require.NoError(t, json.Unmarshal(doc["last_seen"], &seen))
	assert.Equal(t, "2026-03-01T00:00:00Z", seen["1.2.3.4"])
}

func TestDecodeStore_RoundTrip(t *testing.T) {
	s := NewStore(0.3)
	for _, x := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		rs, _ := s.Signal(analytics.SignalFailedLogins)
		rs.Update(x)
		s.GetOrCreate("203.0.113.9").Update(x)
	}
	s.touch("203.0.113.9", time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))

	data, err := json.Marshal(s)
	require.NoError(t, err)
	got, err := decodeStore(data, 0.3)
	require.NoError(t, err)

	want, _ := s.Signal(analytics.SignalFailedLogins)
	have, ok := got.Signal(analytics.SignalFailedLogins)
	require.True(t, ok)
	assert.Equal(t, want.Mean(), have.Mean())
	assert.Equal(t, want.M2(), have.M2())
	assert.Equal(t, want.Count(), have.Count())

	id, ok := got.Identity("203.0.113.9")
	require.True(t, ok)
	assert.InDelta(t, 2.0, id.StdDev(), 1e-12)
	assert.Equal(t, s.Snapshot(), got.Snapshot())
}

func TestDecodeStore_WithoutLastSeen(t *testing.T) {
	doc := `{
		"total_failed": {"mean": 3, "m2": 10, "n": 10, "ewma": 3.1, "alpha": 0.3},
		"per_ip": {"1.2.3.4": {"mean": 2, "m2": 10, "n": 10, "ewma": null, "alpha": 0.3}}
	}`
	s, err := decodeStore([]byte(doc), 0.3)
	require.NoError(t, err)

	// total_5xx was absent and starts empty.
	rs, ok := s.Signal(analytics.SignalServerErrors)
	require.True(t, ok)
	assert.Equal(t, int64(0), rs.Count())

	id, ok := s.Identity("1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, 1.0, id.StdDev())
	assert.Empty(t, s.lastSeen)
}

func TestDecodeStore_Rejects(t *testing.T) {
	for name, doc := range map[string]string{
		"not json":       `{`,
		"null":           `null`,
		"negative count": `{"total_failed": {"mean": 1, "m2": 0, "n": -1}}`,
		"bad per_ip":     `{"per_ip": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeStore([]byte(doc), 0.3)
			assert.Error(t, err)
		})
	}
}

func TestEvict_IdleTTL(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s := NewStore(0.3)
	for i, age := range []time.Duration{time.Hour, 48 * time.Hour, 72 * time.Hour} {
		id := fmt.Sprintf("10.0.0.%d", i+1)
		s.GetOrCreate(id).Update(1)
		s.touch(id, now.Add(-age))
	}

	evicted := s.Evict(EvictionPolicy{IdleTTL: 24 * time.Hour}, now, map[string]int{"10.0.0.3": 1})
	assert.Equal(t, []string{"10.0.0.2"}, evicted)
	assert.Equal(t, 2, s.Len())
	_, kept := s.Identity("10.0.0.3")
	assert.True(t, kept, "identity in the current window must survive")
}

func TestEvict_Capacity(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s := NewStore(0.3)
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("10.0.0.%d", i)
		s.GetOrCreate(id).Update(1)
		s.touch(id, now.Add(-time.Duration(10-i)*time.Minute))
	}

	evicted := s.Evict(EvictionPolicy{MaxIdentities: 3}, now, map[string]int{"10.0.0.1": 1})
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.3"}, evicted)
	assert.Equal(t, 3, s.Len())
}

func TestEvict_Disabled(t *testing.T) {
	s := NewStore(0.3)
	for i := 0; i < 20; i++ {
		s.GetOrCreate(fmt.Sprintf("id-%d", i))
	}
	assert.Empty(t, s.Evict(EvictionPolicy{}, time.Now(), nil))
	assert.Equal(t, 20, s.Len())
	assert.Len(t, s.lastSeen, 20, "missing recency backfilled")
}
