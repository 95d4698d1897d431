package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenForTesting(t *testing.T) {
	db, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	var tableName string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='items'").Scan(&tableName)
	assert.NoError(t, err)
	assert.Equal(t, "items", tableName)

	version, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(3), version)
	assert.False(t, dirty)
}

func TestOpenForTestingIsolated(t *testing.T) {
	a, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	b, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, b.Close()) })

	_, err = a.Exec(`INSERT INTO items (title, description, type, created_ts, updated_ts) VALUES ('Keys', 'ring', 'lost', 1, 1)`)
	require.NoError(t, err)

	var n int
	require.NoError(t, b.QueryRow("SELECT COUNT(*) FROM items").Scan(&n))
	assert.Zero(t, n)
}

func TestOpenFileMigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lostfound.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// Reopening must not re-apply migrations.
	second, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, second.Close()) })

	var columns int
	err = second.QueryRow("SELECT COUNT(*) FROM pragma_table_info('items') WHERE name = 'contact_info'").Scan(&columns)
	require.NoError(t, err)
	assert.Equal(t, 1, columns)
}

func TestArchivedTimestampConstraint(t *testing.T) {
	db, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	_, err = db.Exec(`INSERT INTO items (title, description, type, status, created_ts, updated_ts) VALUES ('Keys', 'ring', 'lost', 'archived', 1, 1)`)
	assert.Error(t, err, "archived rows need archived_ts")

	_, err = db.Exec(`INSERT INTO items (title, description, type, status, created_ts, updated_ts, archived_ts) VALUES ('Keys', 'ring', 'lost', 'active', 1, 1, 1)`)
	assert.Error(t, err, "active rows must not carry archived_ts")
}
