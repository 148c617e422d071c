package pagestore

import (
	"fmt"

	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/lsn"
)

// VirtualStorage is the coordinator-side page store (spec §4.2): its
// committed state is the storage journal, overlaid by a pending write set
// accumulated since the last commit.
type VirtualStorage struct {
	journal *journal.Journal
	pending map[Index]*Page
	maxPage Index
	cache   *pageCache
}

// NewVirtualStorage wraps j (the document's storage journal) as a Virtual
// Storage.
func NewVirtualStorage(j *journal.Journal) *VirtualStorage {
	vs := &VirtualStorage{
		journal: j,
		pending: make(map[Index]*Page),
		cache:   newPageCache(DefaultCachePages),
	}
	vs.maxPage = vs.scanMaxCommittedIndex()
	return vs
}

// Journal returns the underlying storage journal.
func (vs *VirtualStorage) Journal() *journal.Journal { return vs.journal }

func (vs *VirtualStorage) scanMaxCommittedIndex() Index {
	r := vs.journal.Range()
	if r.IsEmpty() {
		return ReservedIndex
	}
	it := vs.journal.Iter(nil)
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

// ReadPage returns the most recent committed page, overlaid by the pending
// write for idx if any. An index never written returns a zero-filled page.
func (vs *VirtualStorage) ReadPage(idx Index) (Page, error) {
	if p, ok := vs.pending[idx]; ok {
		return *p, nil
	}
	if p, ok := vs.cache.get(idx); ok {
		return p, nil
	}
	p, ok, err := readCommitted(vs.journal, idx)
	if err != nil {
		return Page{}, fmt.Errorf("read page %d: %w", idx, err)
	}
	if !ok {
		return Page{}, nil
	}
	vs.cache.put(idx, p)
	return p, nil
}

// WritePage places page in the pending set, replacing any prior pending
// write for idx. It never touches the journal.
func (vs *VirtualStorage) WritePage(idx Index, page Page) {
	cp := page
	vs.pending[idx] = &cp
	if idx > vs.maxPage {
		vs.maxPage = idx
	}
}

// SizeInPages derives the document's size from the maximum index ever
// written (committed or pending). It grows monotonically per document.
func (vs *VirtualStorage) SizeInPages() uint32 {
	return uint32(vs.maxPage)
}

// BeginTransaction marks the start of a SQL-engine transaction bracket.
// Virtual Storage has no extra bookkeeping to do: pending accumulates
// across WritePage calls regardless of transaction boundaries until an
// explicit Commit or RollbackTransaction.
func (vs *VirtualStorage) BeginTransaction() {}

// RollbackTransaction discards the pending write set without touching the
// journal.
func (vs *VirtualStorage) RollbackTransaction() {
	vs.pending = make(map[Index]*Page)
}

// Commit is the VFS's commit_transaction boundary on the coordinator: if
// pending is empty it is a no-op (idempotent); otherwise it serializes
// pending as one sparse page set, appends it to the storage journal, and
// clears pending. Returns the new entry's LSN and whether anything was
// committed.
func (vs *VirtualStorage) Commit() (lsn.LSN, bool, error) {
	if len(vs.pending) == 0 {
		return 0, false, nil
	}
	set := NewSparseSet()
	for idx, p := range vs.pending {
		set.Set(idx, *p)
	}
	newLSN, err := vs.journal.AppendBytes(set.Encode())
	if err != nil {
		return 0, false, fmt.Errorf("commit storage: %w", err)
	}
	vs.pending = make(map[Index]*Page)
	vs.cache.invalidate()
	return newLSN, true, nil
}

// readCommitted walks j's entries in reverse until it finds one containing
// idx, reading only that page's slice from the entry's backing bytes.
func readCommitted(j *journal.Journal, idx Index) (Page, bool, error) {
	it := j.Iter(nil)
	for {
		_, h, ok, err := it.NextBack()
		if err != nil {
			return Page{}, false, err
		}
		if !ok {
			return Page{}, false, nil
		}
		p, found, err := PageAt(h.Bytes(), idx)
		if err != nil {
			return Page{}, false, err
		}
		if found {
			return p, true, nil
		}
	}
}
