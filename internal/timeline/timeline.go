// Package timeline implements spec §4.4: a per-client log of mutation
// bytes, layered on top of internal/journal's range-based sync primitives,
// with immediate local application for instant feedback and a rebase
// algorithm that replays not-yet-applied mutations against freshly synced
// storage.
package timeline

import (
	"context"

	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/lsn"
	"github.com/orbitinghail/sqlsync/internal/pagestore"
)

// Applier runs one mutation deterministically against live storage and
// returns the resulting page diff. Satisfied by *reducer.Host.
type Applier interface {
	Apply(ctx context.Context, seq int64, mutation []byte) (*pagestore.SparseSet, error)
}

// CursorReader looks up the last timeline LSN the coordinator has already
// applied to storage for a given timeline, per the __sqlsync_timelines
// table (spec §9). Satisfied by coordinator.AppliedTable on both the
// coordinator (authoritative writer) and the client (reading its own
// synced copy of the same table).
type CursorReader interface {
	AppliedCursor(ctx context.Context, timelineID journal.ID) (lsn.LSN, bool, error)
}

// Timeline is one client's ordered mutation log plus the machinery to
// apply each entry against storage as it's appended.
type Timeline struct {
	journal *journal.Journal
	host    Applier
	storage pagestore.PageWriter
}

// New wraps j (the timeline journal) with host (the reducer host to run
// mutations against) and storage (where the resulting page diffs land —
// client ReplicaStorage or coordinator VirtualStorage).
func New(j *journal.Journal, host Applier, storage pagestore.PageWriter) *Timeline {
	return &Timeline{journal: j, host: host, storage: storage}
}

// ID returns the timeline's journal identifier.
func (t *Timeline) ID() journal.ID { return t.journal.ID() }

// Journal returns the underlying mutation journal.
func (t *Timeline) Journal() *journal.Journal { return t.journal }

// Range returns the timeline's current LSN window.
func (t *Timeline) Range() lsn.Range { return t.journal.Range() }

// Append records mutation at the next LSN and immediately runs it through
// host, applying the resulting page diff to storage. The mutation is
// appended — and so remains part of the timeline, eligible for rebase
// later — even if applying it now fails; a failing local mutation is
// reported to the caller but does not block the timeline.
func (t *Timeline) Append(ctx context.Context, mutation []byte) (lsn.LSN, error) {
	l, err := t.journal.AppendBytes(mutation)
	if err != nil {
		return 0, err
	}
	set, aerr := t.host.Apply(ctx, int64(l), mutation)
	if aerr != nil {
		return l, aerr
	}
	pagestore.ApplySparseSet(t.storage, set)
	return l, nil
}

// SyncRequest produces a request for this timeline's next unseen entries.
func (t *Timeline) SyncRequest() journal.RequestedLsnRange {
	return t.journal.SyncRequest()
}

// SyncPrepare builds a partial in response to req.
func (t *Timeline) SyncPrepare(req journal.RequestedLsnRange, maxEntries int) (*journal.Partial, error) {
	return t.journal.SyncPrepare(req, maxEntries)
}

// SyncReceive merges an incoming partial into the timeline journal. It does
// not itself apply anything to storage — on the coordinator that happens
// via the scheduler (internal/coordinator), on the client via Rebase.
func (t *Timeline) SyncReceive(p journal.Partial) (lsn.Range, error) {
	return t.journal.SyncReceive(p)
}
