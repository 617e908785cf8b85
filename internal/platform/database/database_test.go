package database

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "enlist.db")

	db, err := OpenSQLite(ctx, path, SQLiteOptions{})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, `INSERT INTO cooldowns (identity_id, last_action_ms) VALUES (?, ?)`, "U1", int64(1700000000000))
	require.NoError(t, err)

	// Migrating twice is a no-op.
	require.NoError(t, Migrate(ctx, db))

	var ms int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT last_action_ms FROM cooldowns WHERE identity_id = ?`, "U1").Scan(&ms))
	assert.Equal(t, int64(1700000000000), ms)
}

func TestOpenSQLiteReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "enlist.db")

	rw, err := OpenSQLite(ctx, path, SQLiteOptions{})
	require.NoError(t, err)
	_, err = rw.ExecContext(ctx, `INSERT INTO cooldowns (identity_id, last_action_ms) VALUES ('U1', 1)`)
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	ro, err := OpenSQLite(ctx, path, SQLiteOptions{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()

	var n int
	require.NoError(t, ro.QueryRowContext(ctx, `SELECT COUNT(*) FROM cooldowns`).Scan(&n))
	assert.Equal(t, 1, n)

	_, err = ro.ExecContext(ctx, `DELETE FROM cooldowns`)
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	dsn, err := sqliteDSN("/data/enlist.db", false)
	require.NoError(t, err)
	assert.Equal(t, "/data/enlist.db", dsn)

	dsn, err = sqliteDSN("/data/enlist.db", true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "file:"))
	assert.Contains(t, dsn, "/data/enlist.db")
	assert.True(t, strings.HasSuffix(dsn, "?mode=ro"))

	_, err = sqliteDSN(":memory:", true)
	assert.Error(t, err)
}
