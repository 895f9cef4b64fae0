// Package baseline holds the per-signal streaming accumulator used by the
// insight engine: Welford running mean/variance plus an EWMA.
package baseline

import (
	"encoding/json"
	"fmt"
	"math"
)

// DefaultAlpha is the EWMA smoothing factor used when none is configured.
const DefaultAlpha = 0.3

// RunningStat tracks one signal's learned baseline in O(1) memory.
// The zero value is not ready for use; call New.
type RunningStat struct {
	mean    float64
	m2      float64 // Welford sum of squared deltas
	count   int64
	ewma    float64
	ewmaSet bool
	alpha   float64
}

// New returns an empty accumulator. Alpha outside (0, 1] falls back to DefaultAlpha.
func New(alpha float64) *RunningStat {
	return &RunningStat{alpha: normalizeAlpha(alpha)}
}

// Restore rebuilds an accumulator from persisted fields.
func Restore(mean, m2 float64, count int64, ewma *float64, alpha float64) (*RunningStat, error) {
	if count < 0 {
		return nil, fmt.Errorf("restore baseline: negative count %d", count)
	}
	if m2 < 0 || math.IsNaN(m2) || math.IsNaN(mean) {
		return nil, fmt.Errorf("restore baseline: invalid accumulator (mean=%v m2=%v)", mean, m2)
	}
	rs := &RunningStat{
		mean:  mean,
		m2:    m2,
		count: count,
		alpha: normalizeAlpha(alpha),
	}
	if ewma != nil {
		rs.ewma = *ewma
		rs.ewmaSet = true
	}
	return rs, nil
}

func normalizeAlpha(alpha float64) float64 {
	if alpha <= 0 || alpha > 1 || math.IsNaN(alpha) {
		return DefaultAlpha
	}
	return alpha
}

// Update folds one observation into the accumulator.
func (r *RunningStat) Update(x float64) {
	if !r.ewmaSet {
		r.ewma = x
		r.ewmaSet = true
	} else {
		r.ewma = r.alpha*x + (1-r.alpha)*r.ewma
	}

	r.count++
	delta := x - r.mean
	r.mean += delta / float64(r.count)
	delta2 := x - r.mean
	r.m2 += delta * delta2
}

// Mean returns the running arithmetic mean (0 before any observation).
func (r *RunningStat) Mean() float64 { return r.mean }

// Count returns the number of observations folded in.
func (r *RunningStat) Count() int64 { return r.count }

// Alpha returns the EWMA smoothing factor.
func (r *RunningStat) Alpha() float64 { return r.alpha }

// M2 returns the raw Welford accumulator.
func (r *RunningStat) M2() float64 { return r.m2 }

// EWMA returns the smoothed average and whether any observation has been seen.
func (r *RunningStat) EWMA() (float64, bool) { return r.ewma, r.ewmaSet }

// Variance returns the population variance.
func (r *RunningStat) Variance() float64 {
	if r.count == 0 {
		return 0
	}
	return r.m2 / float64(r.count)
}

// StdDev returns the population standard deviation.
func (r *RunningStat) StdDev() float64 {
	if r.count == 0 {
		return 0
	}
	return math.Sqrt(r.m2 / float64(r.count))
}

// Clone returns an independent copy.
func (r *RunningStat) Clone() *RunningStat {
	cp := *r
	return &cp
}

// wireStat is the persisted form. Field names are part of the state file format.
type wireStat struct {
	Mean  float64  `json:"mean"`
	M2    float64  `json:"m2"`
	N     int64    `json:"n"`
	EWMA  *float64 `json:"ewma"`
	Alpha *float64 `json:"alpha"`
}

// MarshalJSON encodes exactly mean, m2, n, ewma (null when unset) and alpha.
func (r *RunningStat) MarshalJSON() ([]byte, error) {
	w := wireStat{Mean: r.mean, M2: r.m2, N: r.count, Alpha: &r.alpha}
	if r.ewmaSet {
		e := r.ewma
		w.EWMA = &e
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the persisted form. Missing fields take their
// zero defaults; a missing alpha takes DefaultAlpha.
func (r *RunningStat) UnmarshalJSON(data []byte) error {
	var w wireStat
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	alpha := DefaultAlpha
	if w.Alpha != nil {
		alpha = *w.Alpha
	}
	rs, err := Restore(w.Mean, w.M2, w.N, w.EWMA, alpha)
	if err != nil {
		return err
	}
	*r = *rs
	return nil
}
