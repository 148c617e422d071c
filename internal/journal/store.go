package journal

import "github.com/orbitinghail/sqlsync/internal/lsn"

// EntryStore is the backing persistence for one journal's entries. The
// journal layer above is entirely in terms of EntryStore, so the same
// range-sync algorithm runs unchanged over any backend (spec §6: "in-memory
// store (tests), a filesystem store... the journal interface is the only
// coupling point").
//
// Implementations must track End independently of First: dropping a prefix
// moves First forward but must never affect the LSN the next Append
// assigns (spec §4.1 drop_prefix: "drops never renumber").
type EntryStore interface {
	// Range returns the store's current [First, End) window.
	Range() lsn.Range

	// WriteEntry stores data at LSN l, creating or replacing whatever was
	// there. Used both for ordinary append (l == Range().End) and for
	// sync_receive merges, which may overwrite an already-present LSN.
	WriteEntry(l lsn.LSN, data []byte) error

	// ReadEntry returns a handle onto the bytes stored at LSN l.
	// Returns ErrLsnNotFound if l is outside Range() or has been dropped.
	ReadEntry(l lsn.LSN) (EntryHandle, error)

	// DropPrefix removes all entries with LSN <= upToInclusive and advances
	// Range().First accordingly. Range().End is untouched.
	DropPrefix(upToInclusive lsn.LSN) error
}

// EntryHandle exposes one journal entry's bytes without requiring the
// caller to materialize the whole payload — load-bearing for the storage
// journal, where a reader may want a single 4096-byte page out of a
// multi-megabyte sparse page set (spec §4.1).
type EntryHandle interface {
	// Size returns the entry's payload length in bytes.
	Size() int64
	// ReadAt reads len(p) bytes starting at byte offset off within the
	// entry, following io.ReaderAt semantics.
	ReadAt(p []byte, off int64) (int, error)
	// Bytes returns the full payload. Prefer ReadAt for partial reads;
	// Bytes is for callers (decode, sync_prepare) that need it all anyway.
	Bytes() []byte
}
