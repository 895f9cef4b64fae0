package plugin

import (
	"context"
	"database/sql"
	"time"
)

// Config is one section of the configuration tree.
type Config interface {
	// Unmarshal decodes the section into target. Keys absent from the
	// section leave target's fields untouched.
	Unmarshal(target any) error
	IsSet(key string) bool
	GetString(key string) string
	GetDuration(key string) time.Duration
	Sub(key string) Config
}

// Store is the shared SQLite database.
type Store interface {
	DB() *sql.DB
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error

	// Migrate applies the migrations of one plugin that have not run yet.
	Migrate(ctx context.Context, pluginName string, migrations []Migration) error
}

// Migration is a forward-only schema change. Versions are per plugin and
// strictly ascending.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}
