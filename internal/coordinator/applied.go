// Package coordinator implements the server side of spec §9: scheduling
// incoming mutations from many clients' timelines in a single fair order,
// recording each one's applied cursor so a resend is never re-applied, and
// pruning timeline history once every connected client has observed it.
package coordinator

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/lsn"
	"github.com/orbitinghail/sqlsync/internal/reducer"
	"github.com/orbitinghail/sqlsync/internal/sqlengine"
)

// ReservedTimelinesTable names the one table every document carries that
// user reducers may never touch (enforced by reducer.GuardedTx) and that
// the coordinator uses to track, per timeline, the highest timeline LSN
// already durably applied to storage.
const ReservedTimelinesTable = reducer.ReservedTimelinesTable

// AppliedTable is the coordinator's view onto the reserved timelines
// table. It reads with a plain *sql.DB query (for the client, reading its
// own synced copy during Rebase) and writes within an in-flight reducer
// transaction via PreCommit (for the coordinator, atomically alongside the
// mutation's own writes).
type AppliedTable struct {
	db *sql.DB
}

// NewAppliedTable wraps db (typically engine.DB()) for cursor reads.
func NewAppliedTable(db *sql.DB) *AppliedTable {
	return &AppliedTable{db: db}
}

// EnsureSchema creates the reserved table if it does not already exist.
// Called once per document before any mutation is applied.
func EnsureSchema(tx *sqlengine.Tx) error {
	_, err := tx.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (timeline_id BLOB PRIMARY KEY, lsn INTEGER NOT NULL)`,
		ReservedTimelinesTable,
	))
	return err
}

// AppliedCursor returns the highest timeline LSN already applied for
// timelineID, satisfying timeline.CursorReader.
func (a *AppliedTable) AppliedCursor(ctx context.Context, timelineID journal.ID) (lsn.LSN, bool, error) {
	row := a.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT lsn FROM %s WHERE timeline_id = ?`, ReservedTimelinesTable),
		timelineID[:],
	)
	var l int64
	if err := row.Scan(&l); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("applied cursor for timeline %s: %w", timelineID, err)
	}
	return lsn.LSN(l), true, nil
}

// SetAppliedCursor upserts timelineID's applied cursor to l within tx. Use
// as a reducer.PreCommit so the update lands in the same transaction as
// the mutation it accounts for.
func SetAppliedCursor(timelineID journal.ID, l lsn.LSN) reducer.PreCommit {
	return func(tx *sqlengine.Tx) error {
		_, err := tx.Exec(
			fmt.Sprintf(`INSERT INTO %s (timeline_id, lsn) VALUES (?, ?)
				ON CONFLICT(timeline_id) DO UPDATE SET lsn = excluded.lsn`, ReservedTimelinesTable),
			timelineID[:], int64(l),
		)
		return err
	}
}
