package coordinator

import "github.com/orbitinghail/sqlsync/internal/lsn"

// RetentionPolicy decides how much of a timeline journal's history the
// coordinator must keep. Resolves spec.md's open question on log
// compaction: a timeline entry is safe to drop once every connected
// client has acknowledged storage at or beyond the point where that
// mutation was applied — but a single permanently-disconnected client
// must not be allowed to block pruning forever, so MinRetained also
// bounds how much history is kept regardless of acks.
type RetentionPolicy struct {
	// MinRetained is the retention window: entries more than MinRetained
	// behind the journal's end are eligible for pruning even if no link
	// has acknowledged them. Acknowledged entries are eligible whether or
	// not they fall inside the window, so this caps history kept rather
	// than guaranteeing a minimum. Zero makes every entry eligible.
	MinRetained uint64
}

// DefaultRetentionPolicy uses a 1000-entry retention window: entries older
// than the most recent 1000 are pruned whether or not they were
// acknowledged, and acknowledged entries are pruned as well.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{MinRetained: 1000}
}

// PrunePoint returns the highest LSN (inclusive) that DropPrefix may be
// called with, given the minimum storage LSN acknowledged across every
// currently connected link (minAcked) and the journal's current end. A
// disconnected or lagging link is excluded from minAcked by the caller —
// its absence is what lets pruning proceed past a dead client instead of
// stalling on it, bounded by MinRetained so a live-but-slow client still
// gets a bounded resync window. ok is false when nothing is yet safe to
// drop (no acks and the journal is still within the retained window).
func (p RetentionPolicy) PrunePoint(minAcked lsn.LSN, journalEnd lsn.LSN) (upToInclusive lsn.LSN, ok bool) {
	safe := minAcked
	if journalEnd > p.MinRetained {
		floor := journalEnd - p.MinRetained
		if floor > safe {
			safe = floor
		}
	}
	if safe == 0 {
		return 0, false
	}
	return safe - 1, true
}
