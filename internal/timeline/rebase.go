package timeline

import (
	"context"
	"fmt"

	"github.com/orbitinghail/sqlsync/internal/lsn"
	"github.com/orbitinghail/sqlsync/internal/pagestore"
)

// RebaseResult summarizes one Rebase call: how many entries replayed
// cleanly, and any per-LSN failures encountered along the way. A failure
// does not stop the rebase — later entries may be independent of an
// earlier one that currently fails (e.g. targeting a different row) — so
// every remaining entry is attempted.
type RebaseResult struct {
	Replayed int
	Failures map[lsn.LSN]error
}

// Rebase implements spec §4.4's client-side reconciliation: after the
// client's storage has accepted a fresh sync from the coordinator, local
// mutations that were speculatively applied against the *old* storage
// image are no longer valid against the new one and must be replayed.
//
// It queries cursor for the highest timeline LSN the coordinator has
// already durably applied, drops that prefix (those mutations are already
// reflected in the synced storage and must not be replayed a second
// time), then re-runs every remaining entry in LSN order against the
// current storage, accumulating page writes as it goes.
func (t *Timeline) Rebase(ctx context.Context, cursor CursorReader) (*RebaseResult, error) {
	applied, ok, err := cursor.AppliedCursor(ctx, t.ID())
	if err != nil {
		return nil, fmt.Errorf("rebase timeline %s: %w", t.ID(), err)
	}
	if ok {
		if err := t.journal.DropPrefix(applied); err != nil {
			return nil, fmt.Errorf("rebase timeline %s: %w", t.ID(), err)
		}
	}

	result := &RebaseResult{Failures: make(map[lsn.LSN]error)}
	it := t.journal.Iter(nil)
	for {
		l, h, more, err := it.Next()
		if err != nil {
			return nil, fmt.Errorf("rebase timeline %s: %w", t.ID(), err)
		}
		if !more {
			break
		}
		set, aerr := t.host.Apply(ctx, int64(l), h.Bytes())
		if aerr != nil {
			result.Failures[l] = aerr
			continue
		}
		pagestore.ApplySparseSet(t.storage, set)
		result.Replayed++
	}
	return result, nil
}
