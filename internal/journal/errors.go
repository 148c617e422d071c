package journal

import "errors"

// Error kinds from spec §7: journal-level protocol violations indicate a
// bug or a compromised peer and cause the caller to tear down the link.
var (
	ErrWrongJournal  = errors.New("journal: wrong journal id")
	ErrNonContiguous = errors.New("journal: non-contiguous sync partial")
	ErrLsnNotFound   = errors.New("journal: lsn not found")
	ErrEmptyRange    = errors.New("journal: empty range")
	ErrLsnExhausted  = errors.New("journal: lsn space exhausted")
)
