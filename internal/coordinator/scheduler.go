package coordinator

import (
	"bytes"
	"container/heap"

	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/lsn"
)

// PendingMutation is one not-yet-applied entry received from a client's
// timeline, ordered for scheduling by (receiveSeq, TimelineID, LSN) — the
// receive sequence in place of a wall-clock receive timestamp, since only
// arrival order (not a specific clock value) is load-bearing for fairness,
// and a monotonic counter keeps scheduling deterministic under test.
type PendingMutation struct {
	TimelineID journal.ID
	LSN        lsn.LSN
	ReceiveSeq uint64
	Mutation   []byte
}

// pendingHeap implements container/heap.Interface, ordering by
// (ReceiveSeq, TimelineID, LSN) so the oldest-arrived mutation across every
// client's timeline is always scheduled next (spec §9 fairness).
type pendingHeap []PendingMutation

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.ReceiveSeq != b.ReceiveSeq {
		return a.ReceiveSeq < b.ReceiveSeq
	}
	if c := bytes.Compare(a.TimelineID[:], b.TimelineID[:]); c != 0 {
		return c < 0
	}
	return a.LSN < b.LSN
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) {
	*h = append(*h, x.(PendingMutation))
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler holds every mutation received from any client but not yet
// applied to the document's storage, and pops them in fair arrival order.
type Scheduler struct {
	heap    pendingHeap
	nextSeq uint64
}

// NewScheduler returns an empty scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	heap.Init(&s.heap)
	return s
}

// Push enqueues a mutation received from timelineID at l, stamping it with
// the scheduler's next receive sequence.
func (s *Scheduler) Push(timelineID journal.ID, l lsn.LSN, mutation []byte) {
	s.nextSeq++
	heap.Push(&s.heap, PendingMutation{
		TimelineID: timelineID,
		LSN:        l,
		ReceiveSeq: s.nextSeq,
		Mutation:   mutation,
	})
}

// Pop removes and returns the next mutation to apply, or ok=false if the
// scheduler is empty.
func (s *Scheduler) Pop() (PendingMutation, bool) {
	if s.heap.Len() == 0 {
		return PendingMutation{}, false
	}
	return heap.Pop(&s.heap).(PendingMutation), true
}

// Len reports how many mutations are still queued.
func (s *Scheduler) Len() int { return s.heap.Len() }
