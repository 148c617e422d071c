package coordinator

import (
	"context"
	"fmt"

	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/lsn"
	"github.com/orbitinghail/sqlsync/internal/pagestore"
	"github.com/orbitinghail/sqlsync/internal/reducer"
)

// ApplyNext pops the scheduler's next mutation and runs it through host,
// recording its applied cursor atomically in the same transaction via
// SetAppliedCursor. Returns ok=false when the scheduler is
// empty. A reducer failure is returned to the caller (to log/report) but
// still advances the applied cursor — spec §9 treats a failing mutation as
// applied-and-rejected, never retried, so a single bad client mutation
// can't wedge the coordinator. In that case set holds the pages changed by
// the cursor-only transaction, so the caller's storage commit still
// produces an entry.
func ApplyNext(ctx context.Context, sched *Scheduler, host *reducer.Host) (pm PendingMutation, set *pagestore.SparseSet, ok bool, err error) {
	pm, ok = sched.Pop()
	if !ok {
		return PendingMutation{}, nil, false, nil
	}

	preCommit := SetAppliedCursor(pm.TimelineID, pm.LSN)
	set, aerr := host.ApplyWithPreCommit(ctx, int64(pm.LSN), pm.Mutation, preCommit)
	if aerr != nil {
		// The reducer failed, so its writes rolled back — but the cursor
		// still needs to move forward so this mutation is never retried.
		// Record the cursor alone, in its own transaction.
		cset, cerr := recordCursorAlone(ctx, host, pm.TimelineID, pm.LSN)
		if cerr != nil {
			return pm, nil, true, fmt.Errorf("record cursor after failed mutation: %w: %v", aerr, cerr)
		}
		return pm, cset, true, aerr
	}
	return pm, set, true, nil
}

// recordCursorAlone advances the applied cursor without running any
// reducer, for the case where the mutation itself failed and produced no
// transaction to piggyback the cursor update on. It returns the pages the
// cursor update changed.
func recordCursorAlone(ctx context.Context, host *reducer.Host, timelineID journal.ID, l lsn.LSN) (*pagestore.SparseSet, error) {
	noop := reducer.EncodeMutation(cursorOnlyTag, nil)
	return host.ApplyWithPreCommit(ctx, int64(l), noop, SetAppliedCursor(timelineID, l))
}

// cursorOnlyTag is registered by every document host to apply nothing,
// purely so recordCursorAlone can ride the same PreCommit machinery.
const cursorOnlyTag = "__sqlsync_cursor_only"

// RegisterCursorOnlyNoop registers the no-op reducer recordCursorAlone
// needs. Call once per document's registry.
func RegisterCursorOnlyNoop(reg *reducer.Registry) {
	reg.Register(cursorOnlyTag, func(ctx context.Context, tx *reducer.GuardedTx, args []byte) error {
		return nil
	})
}
