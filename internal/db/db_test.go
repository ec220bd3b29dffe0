package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func tableNames(t *testing.T, database *DB) map[string]bool {
	t.Helper()
	rows, err := database.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	require.NoError(t, err)
	defer rows.Close()

	names := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names[name] = true
	}
	require.NoError(t, rows.Err())
	return names
}

func TestOpenDBAppliesPragmas(t *testing.T) {
	t.Parallel()
	database := openTestDB(t)

	var mode string
	require.NoError(t, database.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, database.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestMigrateUpCreatesSchema(t *testing.T) {
	t.Parallel()
	database := openTestDB(t)
	migrations, err := MigrationsFS()
	require.NoError(t, err)

	require.NoError(t, database.MigrateUp(migrations))

	tables := tableNames(t, database)
	for _, want := range []string{"aim_sessions", "aim_targets", "aim_target_obs", "aim_measurements"} {
		assert.True(t, tables[want], "missing table %s", want)
	}

	version, dirty, err := database.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	t.Parallel()
	database := openTestDB(t)
	migrations, err := MigrationsFS()
	require.NoError(t, err)

	require.NoError(t, database.MigrateUp(migrations))
	require.NoError(t, database.MigrateUp(migrations))
}

func TestMigrateDownRollsBack(t *testing.T) {
	t.Parallel()
	database := openTestDB(t)
	migrations, err := MigrationsFS()
	require.NoError(t, err)

	require.NoError(t, database.MigrateUp(migrations))
	require.NoError(t, database.MigrateDown(migrations))

	tables := tableNames(t, database)
	assert.False(t, tables["aim_sessions"])
	assert.False(t, tables["aim_target_obs"])

	version, dirty, err := database.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Zero(t, version)
}

func TestMigrateVersionOnFreshDB(t *testing.T) {
	t.Parallel()
	database := openTestDB(t)
	migrations, err := MigrationsFS()
	require.NoError(t, err)

	version, dirty, err := database.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}
