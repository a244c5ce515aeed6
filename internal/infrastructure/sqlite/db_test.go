package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// openTestDB creates a database in a temp dir, closed when the test completes.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "NewDB should succeed")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestNewDB_CreatesDirectory verifies that NewDB creates the parent directory if missing.
func TestNewDB_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err, "NewDB should succeed even with nested non-existent directories")
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err, "Directory should exist after NewDB")
	require.True(t, info.IsDir(), "Should be a directory")

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm(), "Directory should have 0700 permissions")
	}
	require.Equal(t, dbPath, db.Path())
}

// TestNewDB_RunsMigrations verifies that every table exists after NewDB.
func TestNewDB_RunsMigrations(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"titles", "settings", "snapshots", "schema_migrations"} {
		var name string
		err := db.conn.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "%s table should exist after migrations", table)
	}
}

// TestNewDB_PreMigrationBackup verifies that a .bak file is created before
// migrations when an existing database file is present.
func TestNewDB_PreMigrationBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err, "First NewDB should succeed")
	_, err = db1.conn.Exec(
		"INSERT INTO titles (id, name, location, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		"t-1", "Game", "/games/game", 1000, 1000,
	)
	require.NoError(t, err, "Should be able to insert test data")
	require.NoError(t, db1.Close())

	db2, err := NewDB(dbPath)
	require.NoError(t, err, "Second NewDB should succeed")
	defer db2.Close()

	info, err := os.Stat(dbPath + ".bak")
	require.NoError(t, err, "Backup file should exist after second NewDB")
	require.Greater(t, info.Size(), int64(0), "Backup file should have content")
}

// TestNewDB_Pragmas verifies WAL, foreign keys and busy timeout.
func TestNewDB_Pragmas(t *testing.T) {
	db := openTestDB(t)

	var journalMode string
	require.NoError(t, db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode, "Journal mode should be WAL")

	var foreignKeys int
	require.NoError(t, db.conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	require.Equal(t, 1, foreignKeys, "Foreign keys should be enabled (1)")

	var busyTimeout int
	require.NoError(t, db.conn.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, 5000, busyTimeout, "Busy timeout should be 5000ms")
}

// TestDB_Close verifies that connection closes cleanly.
func TestDB_Close(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	require.NoError(t, db.Close(), "Close should succeed")
	require.Error(t, db.conn.Ping(), "Ping should fail after Close")
}

// TestDB_TitleRepository verifies the repository satisfies the domain interface.
func TestDB_TitleRepository(t *testing.T) {
	db := openTestDB(t)

	repo := db.TitleRepository()
	require.NotNil(t, repo)
	var _ domain.TitleRepository = repo
	require.NoError(t, repo.Close(), "repository close leaves the connection open")
	require.NoError(t, db.conn.Ping())
}

// TestDB_Connection verifies that Connection returns the underlying *sql.DB.
func TestDB_Connection(t *testing.T) {
	db := openTestDB(t)

	conn := db.Connection()
	require.IsType(t, (*sql.DB)(nil), conn)
	require.NoError(t, conn.Ping(), "Connection should be pingable")
}

// TestNewDB_ReopenIsIdempotent verifies migrations are not re-applied.
func TestNewDB_ReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := NewDB(dbPath)
	require.NoError(t, err, "reopening a migrated database should succeed")
	defer db2.Close()

	var version int
	require.NoError(t, db2.conn.QueryRow("SELECT version FROM schema_migrations").Scan(&version))
	require.Equal(t, 1, version)
}
