package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the SQLite handle used for target and measurement history.
type DB struct {
	*sql.DB
}

// OpenDB opens (creating if needed) the SQLite database at path and
// applies the pragmas the write path depends on. Schema is managed by
// migrations, not here.
func OpenDB(path string) (*DB, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %q: %w", path, err)
	}

	// Serialized writes from a single pipeline goroutine; WAL keeps
	// monitor reads from blocking them.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := handle.Exec(pragma); err != nil {
			handle.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	return &DB{handle}, nil
}

// MigrationsFS returns the embedded migrations filesystem rooted at the
// migrations directory.
func MigrationsFS() (fs.FS, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations missing: %w", err)
	}
	return sub, nil
}
