// Package sqlsyncerr collects the sentinel errors from spec §7 that do not
// belong to any single lower-level package: link/transport conditions and
// the fatal schema-version mismatch. Journal-level violations live in
// internal/journal, reducer failures in internal/reducer, and sparse-page
// decode errors in internal/pagestore, each closest to the code that
// raises them — wrapped with %w throughout so errors.Is keeps working
// across package boundaries (teacher convention, e.g.
// internal/store: fmt.Errorf("write invocation: %w", err)).
package sqlsyncerr

import "errors"

var (
	// ErrIOError marks a persistence-backend failure. It is returned to the
	// caller of the failed operation; nothing retries the operation and no
	// degraded document state is tracked.
	ErrIOError = errors.New("sqlsync: io error")

	// ErrLinkDropped and ErrLinkTimeout are transient link conditions,
	// recovered automatically by the link state machine.
	ErrLinkDropped = errors.New("sqlsync: link dropped")
	ErrLinkTimeout = errors.New("sqlsync: link timeout")

	// ErrSchemaMismatch means the reducer, storage, and host could not
	// agree on format version. Fatal to the affected document.
	ErrSchemaMismatch = errors.New("sqlsync: schema mismatch")
)
