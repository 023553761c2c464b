package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenSQLitePragmas(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "pragmas.db"), DefaultSQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	require.Equal(t, 1, fk)
}

func TestMigrateIsIdempotentAndEnforcesChecks(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "migrate.db"), DefaultSQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, SQLite))
	require.NoError(t, Migrate(ctx, db, SQLite))

	_, err = db.ExecContext(ctx, `INSERT INTO masses
		(title, location, scheduled_at_ms, intention_total, intention_remaining, thanksgiving_total, thanksgiving_remaining, status, created_at_ms, updated_at_ms)
		VALUES ('Mass', 'Chapel', 0, 1, 2, 0, 0, 'AVAILABLE', 0, 0)`)
	require.Error(t, err, "remaining above total must violate the CHECK constraint")

	_, err = db.ExecContext(ctx, `INSERT INTO masses
		(title, location, scheduled_at_ms, intention_total, intention_remaining, thanksgiving_total, thanksgiving_remaining, status, created_at_ms, updated_at_ms)
		VALUES ('Mass', 'Chapel', 0, 1, -1, 0, 0, 'AVAILABLE', 0, 0)`)
	require.Error(t, err, "negative remaining must violate the CHECK constraint")
}

func TestMigrateUnknownDialect(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "x.db"), DefaultSQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.Error(t, Migrate(context.Background(), db, Dialect("oracle")))
}

func TestReservationsRequireExistingMass(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "fk.db"), DefaultSQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(ctx, db, SQLite))

	_, err = db.ExecContext(ctx, `INSERT INTO reservations
		(mass_id, requester_id, pool, payload, status, created_at_ms, updated_at_ms)
		VALUES (999, 1, 'INTENTION', 'x', 'PENDING', 0, 0)`)
	require.Error(t, err)
}
