package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitinghail/sqlsync/internal/journal"
)

func TestSchedulerOrdersByArrivalAcrossTimelines(t *testing.T) {
	a := journal.NewID()
	b := journal.NewID()

	s := NewScheduler()
	s.Push(a, 0, []byte("a0"))
	s.Push(b, 0, []byte("b0"))
	s.Push(a, 1, []byte("a1"))

	first, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, a, first.TimelineID)
	require.EqualValues(t, 0, first.LSN)

	second, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, b, second.TimelineID)

	third, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, a, third.TimelineID)
	require.EqualValues(t, 1, third.LSN)

	_, ok = s.Pop()
	require.False(t, ok)
}

func TestSchedulerEmptyPopReturnsFalse(t *testing.T) {
	s := NewScheduler()
	_, ok := s.Pop()
	require.False(t, ok)
}

func TestSchedulerLenTracksQueueSize(t *testing.T) {
	s := NewScheduler()
	require.Equal(t, 0, s.Len())
	s.Push(journal.NewID(), 0, []byte("x"))
	require.Equal(t, 1, s.Len())
	s.Pop()
	require.Equal(t, 0, s.Len())
}
