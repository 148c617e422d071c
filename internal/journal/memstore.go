package journal

import (
	"fmt"
	"io"

	"github.com/orbitinghail/sqlsync/internal/lsn"
)

// MemStore is an in-memory EntryStore, matching spec §6's "in-memory store
// (tests)" backend. Safe for single-goroutine use only; callers serialize
// access the same way the rest of the engine serializes a document's loop
// (spec §5).
type MemStore struct {
	first   lsn.LSN
	end     lsn.LSN
	entries map[lsn.LSN][]byte
}

// NewMemStore returns an empty in-memory entry store.
func NewMemStore() *MemStore {
	return &MemStore{entries: make(map[lsn.LSN][]byte)}
}

func (m *MemStore) Range() lsn.Range {
	if m.end <= m.first {
		// Drained (or never written): the range is empty either way, but its
		// position must stay at the store's actual tail so Journal.Append's
		// next := store.Range().End never reuses an LSN already consumed.
		return lsn.Range{First: m.end, End: m.end}
	}
	return lsn.Range{First: m.first, End: m.end}
}

func (m *MemStore) WriteEntry(l lsn.LSN, data []byte) error {
	if l == lsn.Max {
		return fmt.Errorf("write entry at lsn %d: %w", l, ErrLsnExhausted)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.entries[l] = buf
	if m.end == 0 && m.first == 0 && len(m.entries) == 1 {
		m.first = l
	}
	if l+1 > m.end {
		m.end = l + 1
	}
	if l < m.first {
		m.first = l
	}
	return nil
}

func (m *MemStore) ReadEntry(l lsn.LSN) (EntryHandle, error) {
	if !m.Range().Contains(l) {
		return nil, fmt.Errorf("read entry at lsn %d: %w", l, ErrLsnNotFound)
	}
	data, ok := m.entries[l]
	if !ok {
		return nil, fmt.Errorf("read entry at lsn %d: %w", l, ErrLsnNotFound)
	}
	return memHandle(data), nil
}

func (m *MemStore) DropPrefix(upToInclusive lsn.LSN) error {
	r := m.Range()
	if r.IsEmpty() {
		return nil
	}
	newFirst := upToInclusive + 1
	if newFirst <= m.first {
		return nil
	}
	if newFirst > m.end {
		newFirst = m.end
	}
	for l := m.first; l < newFirst; l++ {
		delete(m.entries, l)
	}
	m.first = newFirst
	return nil
}

// memHandle is a fully-materialized in-memory entry.
type memHandle []byte

func (h memHandle) Size() int64 { return int64(len(h)) }

func (h memHandle) Bytes() []byte { return h }

func (h memHandle) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(h)) {
		return 0, io.EOF
	}
	n := copy(p, h[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
