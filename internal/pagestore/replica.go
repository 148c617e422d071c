package pagestore

import (
	"fmt"

	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/lsn"
)

// ReplicaStorage is the client-side peer of VirtualStorage (spec §4.2): the
// same page interface, but its committed state is the coordinator's
// storage journal as replicated locally, overlaid by a transient set of
// uncommitted local page writes that the client's own mutations produce.
type ReplicaStorage struct {
	journal *journal.Journal
	pending map[Index]*Page
	maxPage Index
	cache   *pageCache
}

// NewReplicaStorage wraps j (the client's local copy of the storage
// journal) as Replica Storage.
func NewReplicaStorage(j *journal.Journal) *ReplicaStorage {
	rs := &ReplicaStorage{
		journal: j,
		pending: make(map[Index]*Page),
		cache:   newPageCache(DefaultCachePages),
	}
	rs.maxPage = rs.scanMaxCommittedIndex()
	return rs
}

func (rs *ReplicaStorage) Journal() *journal.Journal { return rs.journal }

func (rs *ReplicaStorage) scanMaxCommittedIndex() Index {
	r := rs.journal.Range()
	if r.IsEmpty() {
		return ReservedIndex
	}
	it := rs.journal.Iter(nil)
	var max Index
	for {
		_, h, ok, err := it.NextBack()
		if err != nil || !ok {
			break
		}
		set, err := Decode(h.Bytes())
		if err != nil {
			continue
		}
		for _, idx := range set.Indices() {
			if idx > max {
				max = idx
			}
		}
	}
	return max
}

// ReadPage behaves identically to VirtualStorage.ReadPage: pending
// overlays committed, an unwritten index reads as zero-filled.
func (rs *ReplicaStorage) ReadPage(idx Index) (Page, error) {
	if p, ok := rs.pending[idx]; ok {
		return *p, nil
	}
	if p, ok := rs.cache.get(idx); ok {
		return p, nil
	}
	p, ok, err := readCommitted(rs.journal, idx)
	if err != nil {
		return Page{}, fmt.Errorf("read page %d: %w", idx, err)
	}
	if !ok {
		return Page{}, nil
	}
	rs.cache.put(idx, p)
	return p, nil
}

// WritePage places page in the pending set, replacing any prior pending
// write for idx.
func (rs *ReplicaStorage) WritePage(idx Index, page Page) {
	cp := page
	rs.pending[idx] = &cp
	if idx > rs.maxPage {
		rs.maxPage = idx
	}
}

// SizeInPages derives the document's size from the maximum index ever
// written (committed or pending).
func (rs *ReplicaStorage) SizeInPages() uint32 {
	return uint32(rs.maxPage)
}

func (rs *ReplicaStorage) BeginTransaction() {}

// CommitTransaction is the VFS's commit_transaction boundary on the
// client: unlike VirtualStorage, it never appends to the journal — client
// storage only advances in response to a server sync (spec §4.4 rebase
// note). Pending simply survives as the local overlay.
func (rs *ReplicaStorage) CommitTransaction() {}

// Revert discards the pending set without touching the journal.
func (rs *ReplicaStorage) Revert() {
	rs.pending = make(map[Index]*Page)
}

// SyncReceive feeds partial into the storage journal; reads after this
// point transparently include the new pages. Callers must call Revert
// first so stale pending pages do not shadow newer committed ones — this
// is enforced here rather than merely documented, since skipping it would
// silently corrupt the client's view of storage.
func (rs *ReplicaStorage) SyncReceive(p journal.Partial) (lsn.Range, error) {
	if len(rs.pending) != 0 {
		return lsn.Range{}, fmt.Errorf("sync_receive: pending writes must be reverted first")
	}
	r, err := rs.journal.SyncReceive(p)
	if err != nil {
		return lsn.Range{}, err
	}
	rs.cache.invalidate()
	rs.maxPage = rs.scanMaxCommittedIndex()
	return r, nil
}
