package insight

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/HerbHall/logsentinel/internal/insight/baseline"
	"github.com/HerbHall/logsentinel/pkg/analytics"
	"github.com/HerbHall/logsentinel/pkg/plugin"
)

// InsightStore provides database access for the Insight plugin: the SQL
// baseline backend and the verdict history.
type InsightStore struct {
	store plugin.Store
	db    *sql.DB
}

// NewInsightStore creates a new InsightStore backed by the shared store.
// Migrations must already be applied.
func NewInsightStore(st plugin.Store) *InsightStore {
	return &InsightStore{store: st, db: st.DB()}
}

// -- Baselines --

// Load rebuilds the baseline store from the insight_* tables. The pool
// holds one connection, so each result set is closed before the next query.
func (s *InsightStore) Load(ctx context.Context, alpha float64, signals ...string) (*Store, error) {
	out := NewStore(alpha, signals...)
	if err := s.loadSignals(ctx, out); err != nil {
		return nil, err
	}
	if err := s.loadIdentities(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *InsightStore) loadSignals(ctx context.Context, out *Store) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, mean, m2, n, ewma, alpha FROM insight_signals ORDER BY name`)
	if err != nil {
		return fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		rs, err := scanStat(rows, &name)
		if err != nil {
			return fmt.Errorf("signal row: %w", err)
		}
		*out.addSignal(name) = *rs
	}
	return rows.Err()
}

func (s *InsightStore) loadIdentities(ctx context.Context, out *Store) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity, mean, m2, n, ewma, alpha, last_seen FROM insight_identities`)
	if err != nil {
		return fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       string
			lastSeen sql.NullTime
		)
		rs, err := scanStat(rows, &id, &lastSeen)
		if err != nil {
			return fmt.Errorf("identity row: %w", err)
		}
		out.identities[id] = rs
		if lastSeen.Valid {
			out.lastSeen[id] = lastSeen.Time
		}
	}
	return rows.Err()
}

// scanStat reads (key, mean, m2, n, ewma, alpha, extra...) into a RunningStat.
func scanStat(rows *sql.Rows, key any, extra ...any) (*baseline.RunningStat, error) {
	var (
		mean, m2, alpha float64
		n               int64
		ewma            sql.NullFloat64
	)
	dest := append([]any{key, &mean, &m2, &n, &ewma, &alpha}, extra...)
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	var ewmaPtr *float64
	if ewma.Valid {
		ewmaPtr = &ewma.Float64
	}
	return baseline.Restore(mean, m2, n, ewmaPtr, alpha)
}

// Save replaces every stored baseline in one transaction.
func (s *InsightStore) Save(ctx context.Context, st *Store) error {
	return s.store.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM insight_signals`); err != nil {
			return fmt.Errorf("clear signals: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM insight_identities`); err != nil {
			return fmt.Errorf("clear identities: %w", err)
		}

		now := time.Now().UTC()
		for _, name := range st.order {
			rs := st.signals[name]
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO insight_signals (name, mean, m2, n, ewma, alpha, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				name, rs.Mean(), rs.M2(), rs.Count(), nullableEWMA(rs), rs.Alpha(), now,
			); err != nil {
				return fmt.Errorf("insert signal %q: %w", name, err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO insight_identities (identity, mean, m2, n, ewma, alpha, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare identity insert: %w", err)
		}
		defer stmt.Close()

		for id, rs := range st.identities {
			var seen any
			if t, ok := st.lastSeen[id]; ok {
				seen = t.UTC()
			}
			if _, err := stmt.ExecContext(ctx,
				id, rs.Mean(), rs.M2(), rs.Count(), nullableEWMA(rs), rs.Alpha(), seen,
			); err != nil {
				return fmt.Errorf("insert identity %q: %w", id, err)
			}
		}
		return nil
	})
}

func nullableEWMA(rs *baseline.RunningStat) any {
	if e, ok := rs.EWMA(); ok {
		return e
	}
	return nil
}

// -- Verdicts --

// InsertVerdict appends a verdict to the history.
func (s *InsightStore) InsertVerdict(ctx context.Context, v *analytics.Verdict) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	alert := 0
	if v.Alert {
		alert = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO insight_verdicts (
			id, generated_at, window_start, window_end, classification, alert, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.GeneratedAt.UTC(), v.WindowStart.UTC(), v.WindowEnd.UTC(),
		v.Classification, alert, string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert verdict: %w", err)
	}
	return nil
}

// ListVerdicts returns the most recent verdicts, newest first.
func (s *InsightStore) ListVerdicts(ctx context.Context, limit int) ([]analytics.Verdict, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM insight_verdicts ORDER BY generated_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	defer rows.Close()

	verdicts := make([]analytics.Verdict, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan verdict row: %w", err)
		}
		var v analytics.Verdict
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, fmt.Errorf("decode verdict: %w", err)
		}
		verdicts = append(verdicts, v)
	}
	sort.SliceStable(verdicts, func(i, j int) bool {
		return verdicts[i].GeneratedAt.After(verdicts[j].GeneratedAt)
	})
	return verdicts, rows.Err()
}

// DeleteOldVerdicts deletes verdicts generated before the given time.
// Returns the number of rows deleted.
func (s *InsightStore) DeleteOldVerdicts(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM insight_verdicts WHERE generated_at < ?`,
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old verdicts: %w", err)
	}
	return result.RowsAffected()
}
