// Package testutil collects small test doubles shared across this
// module's package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/orbitinghail/sqlsync/internal/sqlengine"
)

// NewEngine opens a throwaway sqlengine.Engine backed by a file in t's
// temp directory, closing it automatically at test cleanup. sqlengine
// needs a real file (it diffs the file's page-aligned bytes to produce
// page diffs), so unlike the journal's MemStore there is no pure
// in-memory variant to substitute here.
func NewEngine(t *testing.T, name string) *sqlengine.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	e, err := sqlengine.Open(path)
	if err != nil {
		t.Fatalf("testutil: open engine %s: %v", path, err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}
