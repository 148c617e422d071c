// Package pagestore implements spec §4.2: the 4096-byte-page backing store
// presented to the SQL engine's VFS, in both its coordinator (Virtual
// Storage) and client (Replica Storage) shapes.
package pagestore

// PageSize is the fixed page size the engine replicates at, matching
// SQLite's configurable page size convention.
const PageSize = 4096

// Page is one fixed-size page of the backing store.
type Page [PageSize]byte

// Index is a page number. Index 0 is reserved (matching standard SQL-page
// conventions); real pages start at 1.
type Index uint32

// ReservedIndex is the page index the SQL engine never addresses directly.
const ReservedIndex Index = 0
