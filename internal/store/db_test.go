package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMemorySchema(t *testing.T) {
	db := testDB(t)
	assert.Equal(t, memoryPath, db.Path)

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)

	for _, table := range []string{"schema_versions", "hot_snapshot", "archived_drops"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestOpenFileCreatesDirAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sounddrop.db")

	db, err := Open(path)
	require.NoError(t, err)
	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
	require.NoError(t, db.Close())

	// Reopening applies nothing new.
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var applied int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_versions`).Scan(&applied))
	assert.Equal(t, len(migrations), applied)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.migrate(context.Background()))

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestArchivedDropsRejectsUnknownType(t *testing.T) {
	db := testDB(t)
	insert := `INSERT INTO archived_drops (id, timestamp, type, archived_at, research_status, study_phase)
		VALUES (?, 1000, ?, '2024-01-01T00:00:00Z', 'archived', 'phase_1')`

	_, err := db.Exec(insert, 1, "recorded")
	require.NoError(t, err)
	_, err = db.Exec(insert, 2, "streamed")
	assert.Error(t, err)
	_, err = db.Exec(insert, 1, "uploaded")
	assert.Error(t, err, "ids are unique")
}

func TestHotSnapshotHoldsOneRow(t *testing.T) {
	db := testDB(t)
	_, err := db.Exec(`INSERT INTO hot_snapshot (id, document, version, updated_at) VALUES (1, '[]', 1, 1000)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO hot_snapshot (id, document, version, updated_at) VALUES (2, '[]', 1, 1000)`)
	assert.Error(t, err)
}
