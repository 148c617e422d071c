package pagestore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitinghail/sqlsync/internal/journal"
)

func newVirtualStorage() *VirtualStorage {
	return NewVirtualStorage(journal.New(journal.NewID(), journal.NewMemStore()))
}

func TestVirtualStorageWriteThenReadReturnsWritten(t *testing.T) {
	vs := newVirtualStorage()
	p := makePage(0x42)
	vs.WritePage(10, p)

	got, err := vs.ReadPage(10)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestVirtualStorageUnwrittenPageIsZero(t *testing.T) {
	vs := newVirtualStorage()
	got, err := vs.ReadPage(99)
	require.NoError(t, err)
	require.Equal(t, Page{}, got)
}

func TestVirtualStorageRollbackDiscardsPending(t *testing.T) {
	vs := newVirtualStorage()
	vs.WritePage(1, makePage(1))
	vs.RollbackTransaction()

	got, err := vs.ReadPage(1)
	require.NoError(t, err)
	require.Equal(t, Page{}, got, "rollback must clear pending without committing")
}

func TestVirtualStorageCommitAppendsExactPendingSetAndClearsPending(t *testing.T) {
	vs := newVirtualStorage()
	vs.WritePage(1, makePage(0xA))
	vs.WritePage(2, makePage(0xB))

	newLSN, committed, err := vs.Commit()
	require.NoError(t, err)
	require.True(t, committed)

	h, err := vs.journal.Read(newLSN)
	require.NoError(t, err)
	decoded, err := Decode(h.Bytes())
	require.NoError(t, err)
	require.Equal(t, 2, decoded.Len())
	p1, _ := decoded.Get(1)
	require.Equal(t, makePage(0xA), p1)

	require.Empty(t, vs.pending, "pending must be empty after commit")
}

func TestVirtualStorageCommitIsIdempotentOnEmptyPending(t *testing.T) {
	vs := newVirtualStorage()
	_, committed, err := vs.Commit()
	require.NoError(t, err)
	require.False(t, committed)
	require.True(t, vs.journal.Range().IsEmpty())
}

func TestVirtualStorageWriteAlreadyPendingReplacesInPlace(t *testing.T) {
	vs := newVirtualStorage()
	vs.WritePage(1, makePage(0x1))
	vs.WritePage(1, makePage(0x2))
	require.Len(t, vs.pending, 1)

	got, err := vs.ReadPage(1)
	require.NoError(t, err)
	require.Equal(t, makePage(0x2), got)
}

func TestVirtualStorageSizeInPagesMonotonic(t *testing.T) {
	vs := newVirtualStorage()
	vs.WritePage(5, makePage(1))
	require.EqualValues(t, 5, vs.SizeInPages())
	vs.Commit()
	vs.WritePage(3, makePage(1))
	require.EqualValues(t, 5, vs.SizeInPages(), "size must not shrink")
	vs.WritePage(8, makePage(1))
	require.EqualValues(t, 8, vs.SizeInPages())
}
