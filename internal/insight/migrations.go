package insight

import (
	"database/sql"

	"github.com/HerbHall/logsentinel/pkg/plugin"
)

// migrations returns the Insight module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create baseline tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS insight_signals (
						name        TEXT PRIMARY KEY,
						mean        REAL NOT NULL DEFAULT 0,
						m2          REAL NOT NULL DEFAULT 0,
						n           INTEGER NOT NULL DEFAULT 0,
						ewma        REAL,
						alpha       REAL NOT NULL DEFAULT 0.3,
						updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE TABLE IF NOT EXISTS insight_identities (
						identity    TEXT PRIMARY KEY,
						mean        REAL NOT NULL DEFAULT 0,
						m2          REAL NOT NULL DEFAULT 0,
						n           INTEGER NOT NULL DEFAULT 0,
						ewma        REAL,
						alpha       REAL NOT NULL DEFAULT 0.3,
						last_seen   DATETIME
					)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
		{
			Version:     2,
			Description: "create verdict history",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS insight_verdicts (
						id              TEXT PRIMARY KEY,
						generated_at    DATETIME NOT NULL,
						window_start    DATETIME,
						window_end      DATETIME,
						classification  TEXT NOT NULL,
						alert           INTEGER NOT NULL DEFAULT 0,
						payload         TEXT NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_insight_verdicts_generated ON insight_verdicts(generated_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
