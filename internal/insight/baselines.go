package insight

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/HerbHall/logsentinel/internal/insight/baseline"
	"github.com/HerbHall/logsentinel/pkg/analytics"
)

// Reserved top-level keys in the persisted document. Every other key is a
// global signal.
const (
	keyIdentities = "per_ip"
	keyLastSeen   = "last_seen"
)

// DefaultSignals are the global signals every store tracks.
var DefaultSignals = []string{analytics.SignalFailedLogins, analytics.SignalServerErrors}

// Store is the set of learned baselines: one RunningStat per global signal
// plus one per identity. It is not safe for concurrent use; Engine owns it.
type Store struct {
	alpha      float64
	order      []string // global signal names in registration order
	signals    map[string]*baseline.RunningStat
	identities map[string]*baseline.RunningStat
	lastSeen   map[string]time.Time
}

// NewStore returns an empty store tracking the given global signals
// (DefaultSignals when none are given).
func NewStore(alpha float64, signals ...string) *Store {
	if len(signals) == 0 {
		signals = DefaultSignals
	}
	s := &Store{
		alpha:      alpha,
		signals:    make(map[string]*baseline.RunningStat),
		identities: make(map[string]*baseline.RunningStat),
		lastSeen:   make(map[string]time.Time),
	}
	for _, name := range signals {
		s.addSignal(name)
	}
	return s
}

func (s *Store) addSignal(name string) *baseline.RunningStat {
	if rs, ok := s.signals[name]; ok {
		return rs
	}
	rs := baseline.New(s.alpha)
	s.signals[name] = rs
	s.order = append(s.order, name)
	return rs
}

// Signal returns the baseline for a global signal.
func (s *Store) Signal(name string) (*baseline.RunningStat, bool) {
	rs, ok := s.signals[name]
	return rs, ok
}

// SignalNames returns the tracked global signals in registration order.
func (s *Store) SignalNames() []string {
	return append([]string(nil), s.order...)
}

// Identity returns the baseline for an identity without creating one.
func (s *Store) Identity(id string) (*baseline.RunningStat, bool) {
	rs, ok := s.identities[id]
	return rs, ok
}

// GetOrCreate returns the identity's baseline, creating an empty one on
// first reference. It is the only way identities enter the store.
func (s *Store) GetOrCreate(id string) *baseline.RunningStat {
	if rs, ok := s.identities[id]; ok {
		return rs
	}
	rs := baseline.New(s.alpha)
	s.identities[id] = rs
	return rs
}

// Len returns the number of tracked identities.
func (s *Store) Len() int {
	return len(s.identities)
}

func (s *Store) touch(id string, at time.Time) {
	s.lastSeen[id] = at
}

// EvictionPolicy bounds the identity map. Zero values disable each rule.
type EvictionPolicy struct {
	MaxIdentities int           `mapstructure:"max_identities"`
	IdleTTL       time.Duration `mapstructure:"identity_idle_ttl"`
}

// Evict applies the policy and returns the removed identities. Identities in
// keep (the current window) are never removed. Identities without a recorded
// last-seen time are treated as seen now, so state written before recency was
// tracked is not dropped wholesale.
func (s *Store) Evict(p EvictionPolicy, now time.Time, keep map[string]int) []string {
	for id := range s.identities {
		if _, ok := s.lastSeen[id]; !ok {
			s.lastSeen[id] = now
		}
	}

	var evicted []string
	drop := func(id string) {
		delete(s.identities, id)
		delete(s.lastSeen, id)
		evicted = append(evicted, id)
	}

	if p.IdleTTL > 0 {
		cutoff := now.Add(-p.IdleTTL)
		for id, seen := range s.lastSeen {
			if _, current := keep[id]; current {
				continue
			}
			if seen.Before(cutoff) {
				drop(id)
			}
		}
	}

	if p.MaxIdentities > 0 && len(s.identities) > p.MaxIdentities {
		candidates := make([]string, 0, len(s.identities))
		for id := range s.identities {
			if _, current := keep[id]; !current {
				candidates = append(candidates, id)
			}
		}
		// Least recently seen first; ties broken by name for determinism.
		sort.Slice(candidates, func(i, j int) bool {
			ti, tj := s.lastSeen[candidates[i]], s.lastSeen[candidates[j]]
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			return candidates[i] < candidates[j]
		})
		excess := len(s.identities) - p.MaxIdentities
		for i := 0; i < excess && i < len(candidates); i++ {
			drop(candidates[i])
		}
	}

	sort.Strings(evicted)
	return evicted
}

// Snapshot returns a deep copy of every baseline.
func (s *Store) Snapshot() analytics.BaselineSnapshot {
	snap := analytics.BaselineSnapshot{
		Signals:    make(map[string]analytics.StatSnapshot, len(s.signals)),
		Identities: make(map[string]analytics.StatSnapshot, len(s.identities)),
	}
	for name, rs := range s.signals {
		snap.Signals[name] = statSnapshot(rs, nil)
	}
	for id, rs := range s.identities {
		var seen *time.Time
		if t, ok := s.lastSeen[id]; ok {
			seen = &t
		}
		snap.Identities[id] = statSnapshot(rs, seen)
	}
	return snap
}

func statSnapshot(rs *baseline.RunningStat, seen *time.Time) analytics.StatSnapshot {
	out := analytics.StatSnapshot{
		Mean:     rs.Mean(),
		StdDev:   rs.StdDev(),
		Count:    rs.Count(),
		Alpha:    rs.Alpha(),
		LastSeen: seen,
	}
	if e, ok := rs.EWMA(); ok {
		out.EWMA = &e
	}
	return out
}

// MarshalJSON writes the state document: one top-level key per global
// signal, "per_ip" for identities, and "last_seen" for eviction recency.
func (s *Store) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.signals)+2)
	for name, rs := range s.signals {
		doc[name] = rs
	}
	doc[keyIdentities] = s.identities
	if len(s.lastSeen) > 0 {
		seen := make(map[string]string, len(s.lastSeen))
		for id, t := range s.lastSeen {
			seen[id] = t.UTC().Format(time.RFC3339)
		}
		doc[keyLastSeen] = seen
	}
	return json.Marshal(doc)
}

// decodeStore parses a state document. Global signals missing from the
// document start empty; unknown top-level keys are kept as extra signals.
func decodeStore(data []byte, alpha float64, signals ...string) (*Store, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("state document is null")
	}

	s := NewStore(alpha, signals...)

	names := make([]string, 0, len(doc))
	for key := range doc {
		if key != keyIdentities && key != keyLastSeen {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		var rs baseline.RunningStat
		if err := json.Unmarshal(doc[name], &rs); err != nil {
			return nil, fmt.Errorf("signal %q: %w", name, err)
		}
		*s.addSignal(name) = rs
	}

	if raw, ok := doc[keyIdentities]; ok {
		var ids map[string]*baseline.RunningStat
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, fmt.Errorf("%s: %w", keyIdentities, err)
		}
		for id, rs := range ids {
			if id == "" || rs == nil {
				continue
			}
			s.identities[id] = rs
		}
	}

	if raw, ok := doc[keyLastSeen]; ok {
		var seen map[string]time.Time
		if err := json.Unmarshal(raw, &seen); err != nil {
			return nil, fmt.Errorf("%s: %w", keyLastSeen, err)
		}
		for id, t := range seen {
			if _, tracked := s.identities[id]; tracked {
				s.lastSeen[id] = t
			}
		}
	}

	return s, nil
}
