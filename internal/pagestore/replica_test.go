package pagestore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitinghail/sqlsync/internal/journal"
)

func TestReplicaStorageMirrorsCoordinatorAfterSync(t *testing.T) {
	coordJournal := journal.New(journal.NewID(), journal.NewMemStore())
	vs := NewVirtualStorage(coordJournal)
	vs.WritePage(1, makePage(0xA))
	vs.WritePage(2, makePage(0xB))
	_, _, err := vs.Commit()
	require.NoError(t, err)

	clientJournal := journal.New(coordJournal.ID(), journal.NewMemStore())
	rs := NewReplicaStorage(clientJournal)

	partial, err := coordJournal.SyncPrepare(clientJournal.SyncRequest(), 10)
	require.NoError(t, err)
	require.NotNil(t, partial)
	_, err = rs.SyncReceive(*partial)
	require.NoError(t, err)

	got, err := rs.ReadPage(1)
	require.NoError(t, err)
	require.Equal(t, makePage(0xA), got)
}

func TestReplicaStorageRevertClearsPendingNotJournal(t *testing.T) {
	j := journal.New(journal.NewID(), journal.NewMemStore())
	rs := NewReplicaStorage(j)
	rs.WritePage(1, makePage(0x7))
	rs.Revert()

	got, err := rs.ReadPage(1)
	require.NoError(t, err)
	require.Equal(t, Page{}, got)
}

func TestReplicaStorageSyncReceiveRequiresRevertFirst(t *testing.T) {
	j := journal.New(journal.NewID(), journal.NewMemStore())
	rs := NewReplicaStorage(j)
	rs.WritePage(1, makePage(0x1))

	_, err := rs.SyncReceive(journal.Partial{JournalID: j.ID()})
	require.Error(t, err)
}

func TestReplicaStorageCommitTransactionNeverAppendsToJournal(t *testing.T) {
	j := journal.New(journal.NewID(), journal.NewMemStore())
	rs := NewReplicaStorage(j)
	rs.WritePage(1, makePage(0x1))
	rs.CommitTransaction()

	require.True(t, j.Range().IsEmpty(), "client storage must only advance via sync, never local commit")
	got, err := rs.ReadPage(1)
	require.NoError(t, err)
	require.Equal(t, makePage(0x1), got, "pending write survives commit_transaction as local overlay")
}
