package syncproto

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/lsn"
)

func pipeFramers(t *testing.T) (*Framer, *Framer) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return NewFramer(a), NewFramer(b)
}

func TestFramerRoundTripsEveryMessageType(t *testing.T) {
	docID := journal.NewID()
	timelineID := journal.NewID()

	messages := []Message{
		Open{DocumentID: docID, TimelineID: timelineID},
		TimelineRangeAck{TimelineID: timelineID, StorageLSN: 42},
		TimelineSync{Partial: journal.Partial{
			JournalID: timelineID,
			FirstLSN:  3,
			Entries: []journal.Entry{
				{LSN: 3, Payload: []byte("m3")},
				{LSN: 4, Payload: []byte("m4")},
			},
		}},
		TimelineSyncAck{TimelineID: timelineID, Range: lsn.Range{First: 0, End: 5}},
		StorageRequest{DocumentID: docID, First: 10},
		StorageSync{Partial: journal.Partial{JournalID: docID, FirstLSN: 0, Entries: []journal.Entry{}}},
		ChangeAvailable{DocumentID: docID, End: 99},
		ErrorFrame{Message: "schema mismatch"},
	}

	for _, m := range messages {
		writer, reader := pipeFramers(t)
		done := make(chan error, 1)
		go func() { done <- writer.WriteMessage(m) }()

		got, err := reader.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, <-done)
		require.Equal(t, m, got)
	}
}

func TestFramerRejectsOversizedFrame(t *testing.T) {
	writer, reader := pipeFramers(t)
	go func() {
		_ = writeUint32(writer.rw, MaxFrameLen+1)
	}()
	_, err := reader.ReadMessage()
	require.Error(t, err)
}
