package sql

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"enlist/internal/cooldown/models"
	"enlist/internal/cooldown/store/storetest"
	"enlist/internal/platform/database"
)

func TestSQLiteCooldownStoreSuite(t *testing.T) {
	suite.Run(t, &storetest.Suite{NewStore: func() models.Store {
		db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "enlist.db"), database.SQLiteOptions{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return New(db, database.SQLite)
	}})
}

func TestRebind(t *testing.T) {
	pg := New(nil, database.Postgres)
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := New(nil, database.SQLite)
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestReadOnlySQLiteRejectsWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "enlist.db")

	rw, err := database.OpenSQLite(ctx, path, database.SQLiteOptions{})
	require.NoError(t, err)
	require.NoError(t, New(rw, database.SQLite).Set(ctx, "u1", storetest.Base()))
	require.NoError(t, rw.Close())

	ro, err := database.OpenSQLite(ctx, path, database.SQLiteOptions{ReadOnly: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ro.Close() })
	store := New(ro, database.SQLite)

	record, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, storetest.Base().Equal(record.LastActionAt))

	assert.Error(t, store.Set(ctx, "u2", storetest.Base()))
}
