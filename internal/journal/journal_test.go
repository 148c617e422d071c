package journal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitinghail/sqlsync/internal/lsn"
)

func newTestJournal() *Journal {
	return New(NewID(), NewMemStore())
}

func TestAppendAssignsSuccessiveLsns(t *testing.T) {
	j := newTestJournal()
	for i := 0; i < 5; i++ {
		l, err := j.AppendBytes([]byte{byte(i)})
		require.NoError(t, err)
		require.Equal(t, lsn.LSN(i), l)
	}
	require.Equal(t, lsn.Range{First: 0, End: 5}, j.Range())
}

func TestDropPrefixNeverRenumbers(t *testing.T) {
	j := newTestJournal()
	for i := 0; i < 5; i++ {
		_, err := j.AppendBytes([]byte{byte(i)})
		require.NoError(t, err)
	}

	require.NoError(t, j.DropPrefix(2))
	require.Equal(t, lsn.Range{First: 3, End: 5}, j.Range())

	it := j.Iter(nil)
	var seen []lsn.LSN
	for {
		l, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, l)
	}
	require.Equal(t, []lsn.LSN{3, 4}, seen)

	l, err := j.AppendBytes([]byte{9})
	require.NoError(t, err)
	require.Equal(t, lsn.LSN(5), l, "append after drop must continue from previous tail")
}

func TestIteratorDoubleEnded(t *testing.T) {
	j := newTestJournal()
	for i := 0; i < 4; i++ {
		_, err := j.AppendBytes([]byte{byte(i)})
		require.NoError(t, err)
	}

	it := j.Iter(nil)
	l0, h0, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, lsn.LSN(0), l0)
	require.Equal(t, []byte{0}, h0.Bytes())

	l3, h3, ok, err := it.NextBack()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, lsn.LSN(3), l3)
	require.Equal(t, []byte{3}, h3.Bytes())

	l1, _, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, lsn.LSN(1), l1)

	l2, _, ok, err := it.NextBack()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, lsn.LSN(2), l2)

	_, _, ok, err = it.Next()
	require.NoError(t, err)
	require.False(t, ok, "iterator should be exhausted")
}

func TestSyncRequestPrepareReceiveRoundTrip(t *testing.T) {
	src := newTestJournal()
	for i := 0; i < 10; i++ {
		_, err := src.AppendBytes([]byte{byte(i)})
		require.NoError(t, err)
	}

	dst := New(src.ID(), NewMemStore())
	for dst.Range() != src.Range() {
		req := dst.SyncRequest()
		partial, err := src.SyncPrepare(req, 3)
		require.NoError(t, err)
		if partial == nil {
			break
		}
		_, err = dst.SyncReceive(*partial)
		require.NoError(t, err)
	}

	require.Equal(t, src.Range(), dst.Range())
	it := dst.Iter(nil)
	for i := 0; i < 10; i++ {
		l, h, ok, err := it.Next()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, lsn.LSN(i), l)
		require.Equal(t, []byte{byte(i)}, h.Bytes())
	}
}

func TestSyncPrepareEmptyJournalReturnsNil(t *testing.T) {
	src := newTestJournal()
	dst := New(src.ID(), NewMemStore())
	partial, err := src.SyncPrepare(dst.SyncRequest(), 10)
	require.NoError(t, err)
	require.Nil(t, partial)
}

func TestSyncReceiveEmptyPartialIsNoop(t *testing.T) {
	j := newTestJournal()
	_, err := j.AppendBytes([]byte{1})
	require.NoError(t, err)
	before := j.Range()

	r, err := j.SyncReceive(Partial{JournalID: j.ID()})
	require.NoError(t, err)
	require.Equal(t, before, r)
}

func TestSyncReceiveWrongJournalRejected(t *testing.T) {
	j := newTestJournal()
	other := NewID()
	_, err := j.SyncReceive(Partial{JournalID: other, FirstLSN: 0, Entries: []Entry{{LSN: 0, Payload: []byte{1}}}})
	require.ErrorIs(t, err, ErrWrongJournal)
}

func TestSyncReceiveNonContiguousRejected(t *testing.T) {
	j := newTestJournal()
	for i := 0; i < 3; i++ {
		_, err := j.AppendBytes([]byte{byte(i)})
		require.NoError(t, err)
	}
	// Gap: journal ends at 3, partial starts at 10.
	_, err := j.SyncReceive(Partial{
		JournalID: j.ID(),
		FirstLSN:  10,
		Entries:   []Entry{{LSN: 10, Payload: []byte{1}}},
	})
	require.ErrorIs(t, err, ErrNonContiguous)
}

func TestSyncReceiveOverlapIsIdempotent(t *testing.T) {
	j1 := newTestJournal()
	for i := 0; i < 5; i++ {
		_, err := j1.AppendBytes([]byte{byte(i)})
		require.NoError(t, err)
	}

	full, err := j1.SyncPrepare(RequestedLsnRange{JournalID: j1.ID(), First: 0}, 10)
	require.NoError(t, err)
	require.NotNil(t, full)

	p1 := Partial{JournalID: full.JournalID, FirstLSN: 0, Entries: full.Entries[:3]}
	p2 := Partial{JournalID: full.JournalID, FirstLSN: 2, Entries: full.Entries[2:]}

	order1 := New(j1.ID(), NewMemStore())
	_, err = order1.SyncReceive(p1)
	require.NoError(t, err)
	_, err = order1.SyncReceive(p2)
	require.NoError(t, err)

	order2 := New(j1.ID(), NewMemStore())
	_, err = order2.SyncReceive(p2)
	require.NoError(t, err)
	_, err = order2.SyncReceive(p1)
	require.NoError(t, err)

	require.Equal(t, order1.Range(), order2.Range())
	it1, it2 := order1.Iter(nil), order2.Iter(nil)
	for {
		l1, h1, ok1, err := it1.Next()
		require.NoError(t, err)
		l2, h2, ok2, err := it2.Next()
		require.NoError(t, err)
		require.Equal(t, ok1, ok2)
		if !ok1 {
			break
		}
		require.Equal(t, l1, l2)
		require.Equal(t, h1.Bytes(), h2.Bytes())
	}
}
