package insight

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/logsentinel/internal/insight/baseline"
	"github.com/HerbHall/logsentinel/pkg/analytics"
)

// stat builds a baseline with the given population mean and std dev.
func stat(t *testing.T, mean, std float64, n int64) *baseline.RunningStat {
	t.Helper()
	rs, err := baseline.Restore(mean, std*std*float64(n), n, nil, baseline.DefaultAlpha)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	return rs
}

func seedSignal(t *testing.T, s *Store, name string, mean, std float64, n int64) {
	t.Helper()
	*s.addSignal(name) = *stat(t, mean, std, n)
}

func seedIdentity(t *testing.T, s *Store, id string, mean, std float64, n int64) {
	t.Helper()
	s.identities[id] = stat(t, mean, std, n)
}

func observation(failed, fiveXX int, identities map[string]int) analytics.Observation {
	if identities == nil {
		identities = map[string]int{}
	}
	end := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	return analytics.Observation{
		Start: end.Add(-15 * time.Minute),
		End:   end,
		Totals: map[string]int{
			analytics.SignalFailedLogins: failed,
			analytics.SignalServerErrors: fiveXX,
		},
		Identities: identities,
	}
}

// memPersister keeps the last saved document in memory.
type memPersister struct {
	mu      sync.Mutex
	data    []byte
	saves   int
	saveErr error
	loadErr error
}

func (p *memPersister) Load(_ context.Context, alpha float64, signals ...string) (*Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	if p.data == nil {
		return NewStore(alpha, signals...), nil
	}
	return decodeStore(p.data, alpha, signals...)
}

func (p *memPersister) Save(_ context.Context, s *Store) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves++
	if p.saveErr != nil {
		return p.saveErr
	}
	data, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	p.data = data
	return nil
}
