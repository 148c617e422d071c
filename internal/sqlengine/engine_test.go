package sqlengine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngineCommitProducesPageDiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	e, err := Open(path)
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	tx, err := e.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec("CREATE TABLE tasks(id TEXT PRIMARY KEY, description TEXT, completed INTEGER)")
	require.NoError(t, err)
	set, err := tx.Commit()
	require.NoError(t, err)
	require.Greater(t, set.Len(), 0, "creating a table must dirty at least one page")

	tx2, err := e.Begin(ctx)
	require.NoError(t, err)
	_, err = tx2.Exec("INSERT INTO tasks(id, description, completed) VALUES (?, ?, ?)", "1", "a", 0)
	require.NoError(t, err)
	set2, err := tx2.Commit()
	require.NoError(t, err)
	require.Greater(t, set2.Len(), 0, "inserting a row must dirty at least one page")
}

func TestEngineRollbackProducesNoDiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	e, err := Open(path)
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	tx, err := e.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec("CREATE TABLE tasks(id TEXT PRIMARY KEY)")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	tx2, err := e.Begin(ctx)
	require.NoError(t, err)
	var name string
	err = tx2.QueryRow("SELECT name FROM sqlite_schema WHERE type='table' AND name='tasks'").Scan(&name)
	require.Error(t, err, "rolled back CREATE TABLE must not be visible")
	require.NoError(t, tx2.Rollback())
}
