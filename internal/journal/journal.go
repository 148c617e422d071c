// Package journal implements spec §4.1: an ordered, append-at-tail log of
// opaque entries addressed by a monotonic LSN, with range-based sync
// primitives that make resending any overlap a no-op.
package journal

import (
	"bytes"
	"fmt"

	"github.com/orbitinghail/sqlsync/internal/lsn"
)

// Entry is one journal entry's LSN and payload, used for sync partials and
// iteration results.
type Entry struct {
	LSN     lsn.LSN
	Payload []byte
}

// RequestedLsnRange is the "send me up to N entries starting at my next
// expected LSN" request produced by SyncRequest.
type RequestedLsnRange struct {
	JournalID ID
	First     lsn.LSN
}

// Partial is a contiguous run of entries offered in response to a
// RequestedLsnRange, or pushed unsolicited during sync_receive.
type Partial struct {
	JournalID ID
	FirstLSN  lsn.LSN
	Entries   []Entry
}

// Journal is an ordered sequence of opaque payloads with range-based sync,
// per spec §4.1. It is generic over the backing EntryStore so the same
// algorithm runs over in-memory and filesystem-backed journals.
type Journal struct {
	id    ID
	store EntryStore
}

// New wraps store as a journal identified by id.
func New(id ID, store EntryStore) *Journal {
	return &Journal{id: id, store: store}
}

// ID returns this journal's identifier.
func (j *Journal) ID() ID { return j.id }

// Range returns the journal's current [first, last+1) window; empty if no
// entries have ever been appended or all have been dropped.
func (j *Journal) Range() lsn.Range { return j.store.Range() }

// Append allocates LSN = Range().End, invokes write to stream the entry's
// bytes, and commits the entry atomically: the entry is never observable
// half-written.
func (j *Journal) Append(write func(*bytes.Buffer) error) (lsn.LSN, error) {
	next := j.store.Range().End
	if next == lsn.Max {
		return 0, fmt.Errorf("append to journal %s: %w", j.id, ErrLsnExhausted)
	}
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return 0, fmt.Errorf("append to journal %s: %w", j.id, err)
	}
	if err := j.store.WriteEntry(next, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("append to journal %s: %w", j.id, err)
	}
	return next, nil
}

// AppendBytes is a convenience wrapper around Append for callers that
// already have the full payload in hand.
func (j *Journal) AppendBytes(payload []byte) (lsn.LSN, error) {
	return j.Append(func(b *bytes.Buffer) error {
		_, err := b.Write(payload)
		return err
	})
}

// Read returns a handle onto the entry at l.
func (j *Journal) Read(l lsn.LSN) (EntryHandle, error) {
	return j.store.ReadEntry(l)
}

// DropPrefix removes entries whose LSN <= upToInclusive. A later Append
// still assigns LSN = previous Range().End — drops never renumber.
func (j *Journal) DropPrefix(upToInclusive lsn.LSN) error {
	if err := j.store.DropPrefix(upToInclusive); err != nil {
		return fmt.Errorf("drop prefix on journal %s: %w", j.id, err)
	}
	return nil
}

// resolveRange clamps an optional requested range to the journal's actual
// range, defaulting to the full range when r is nil.
func (j *Journal) resolveRange(r *lsn.Range) lsn.Range {
	full := j.Range()
	if r == nil {
		return full
	}
	return full.Intersect(*r)
}

// Iterator is a double-ended iterator over a journal's entries within a
// fixed range, yielding entry handles rather than byte slices (spec §4.1
// design rationale). Both MemStore and FileStore hand out handles that
// already hold the whole entry in memory.
type Iterator struct {
	j        *Journal
	lo, hi   lsn.LSN // remaining window [lo, hi)
}

// Iter returns a double-ended iterator over entries whose LSN lies within
// r (nil means the journal's full range).
func (j *Journal) Iter(r *lsn.Range) *Iterator {
	bounds := j.resolveRange(r)
	return &Iterator{j: j, lo: bounds.First, hi: bounds.End}
}

// Next returns the next entry in ascending LSN order, or ok=false when
// exhausted.
func (it *Iterator) Next() (l lsn.LSN, h EntryHandle, ok bool, err error) {
	if it.lo >= it.hi {
		return 0, nil, false, nil
	}
	l = it.lo
	h, err = it.j.Read(l)
	if err != nil {
		return 0, nil, false, err
	}
	it.lo++
	return l, h, true, nil
}

// NextBack returns the next entry in descending LSN order, or ok=false
// when exhausted. Mixing Next and NextBack narrows the same window from
// both ends.
func (it *Iterator) NextBack() (l lsn.LSN, h EntryHandle, ok bool, err error) {
	if it.lo >= it.hi {
		return 0, nil, false, nil
	}
	it.hi--
	l = it.hi
	h, err = it.j.Read(l)
	if err != nil {
		return 0, nil, false, err
	}
	return l, h, true, nil
}

// SyncRequest produces a request for the entries starting at this
// journal's next expected LSN (Range().End); the entry limit is given to
// SyncPrepare, not here.
func (j *Journal) SyncRequest() RequestedLsnRange {
	return RequestedLsnRange{JournalID: j.id, First: j.Range().End}
}

// SyncPrepare builds a Partial in response to req, or returns nil if this
// journal holds nothing at or after req.First. maxEntries bounds the
// partial's size (the recipient's size budget, per spec §4.1).
func (j *Journal) SyncPrepare(req RequestedLsnRange, maxEntries int) (*Partial, error) {
	if req.JournalID != j.id {
		return nil, fmt.Errorf("sync_prepare on journal %s: %w", j.id, ErrWrongJournal)
	}
	r := j.Range()
	if r.IsEmpty() {
		return nil, nil
	}
	start := req.First
	if start < r.First {
		start = r.First
	}
	if start >= r.End {
		return nil, nil
	}
	end := r.End
	if maxEntries > 0 && end-start > lsn.LSN(maxEntries) {
		end = start + lsn.LSN(maxEntries)
	}
	entries := make([]Entry, 0, end-start)
	for l := start; l < end; l++ {
		h, err := j.Read(l)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{LSN: l, Payload: h.Bytes()})
	}
	return &Partial{JournalID: j.id, FirstLSN: start, Entries: entries}, nil
}

// SyncReceive merges p's entries into the journal, returning the journal's
// new range. A partial that neither overlaps nor directly extends the
// current range fails with ErrNonContiguous; an ID mismatch fails with
// ErrWrongJournal. Overlapping LSNs are overwritten unconditionally, which
// is safe because the sync protocol only ever carries byte-identical
// content for a given (journal, LSN) pair — making resends idempotent.
func (j *Journal) SyncReceive(p Partial) (lsn.Range, error) {
	if p.JournalID != j.id {
		return lsn.Range{}, fmt.Errorf("sync_receive on journal %s: %w", j.id, ErrWrongJournal)
	}
	if len(p.Entries) == 0 {
		return j.Range(), nil
	}

	incoming := lsn.Range{First: p.FirstLSN, End: p.FirstLSN + lsn.LSN(len(p.Entries))}
	cur := j.Range()
	if !cur.IsEmpty() && !cur.ContiguousWith(incoming) {
		return lsn.Range{}, fmt.Errorf("sync_receive on journal %s: %w", j.id, ErrNonContiguous)
	}

	for i, e := range p.Entries {
		l := p.FirstLSN + lsn.LSN(i)
		if err := j.store.WriteEntry(l, e.Payload); err != nil {
			return lsn.Range{}, fmt.Errorf("sync_receive on journal %s: %w", j.id, err)
		}
	}

	return j.Range(), nil
}
