package sqlengine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/orbitinghail/sqlsync/internal/pagestore"
)

// Tx is the transactional handle a reducer executes statements against
// (spec §4.3: "Input: mutation bytes, a transactional SQL handle").
type Tx struct {
	engine *Engine
	sqlTx  *sql.Tx
	ctx    context.Context
}

// Exec runs a statement with no result set.
func (tx *Tx) Exec(query string, args ...any) (sql.Result, error) {
	res, err := tx.sqlTx.ExecContext(tx.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: exec: %w", err)
	}
	return res, nil
}

// Query runs a statement returning rows.
func (tx *Tx) Query(query string, args ...any) (*sql.Rows, error) {
	rows, err := tx.sqlTx.QueryContext(tx.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: query: %w", err)
	}
	return rows, nil
}

// QueryRow runs a statement expected to return at most one row.
func (tx *Tx) QueryRow(query string, args ...any) *sql.Row {
	return tx.sqlTx.QueryRowContext(tx.ctx, query, args...)
}

// Commit commits the underlying SQL transaction and returns the sparse
// page set produced by the write, per spec §4.3: "Success commits the
// transaction (which flushes changes as written pages into pending)".
// The returned set is the caller's pending write set to hand to
// VirtualStorage/ReplicaStorage — this engine does not itself own a
// pending map, since on the client the reducer may run several
// mutations' worth of statements against the same ReplicaStorage overlay
// across a rebase (spec §4.4).
func (tx *Tx) Commit() (*pagestore.SparseSet, error) {
	if err := tx.sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlengine: commit: %w", err)
	}
	return tx.engine.diffSinceLastCommit()
}

// Rollback aborts the transaction; no page diff is computed since nothing
// was flushed to the file.
func (tx *Tx) Rollback() error {
	if err := tx.sqlTx.Rollback(); err != nil {
		return fmt.Errorf("sqlengine: rollback: %w", err)
	}
	return nil
}
