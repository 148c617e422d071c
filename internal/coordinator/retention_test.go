package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrunePointAckedBeyondFloorWins(t *testing.T) {
	p := RetentionPolicy{MinRetained: 100}
	// Every link has acked up to 500. With journalEnd=550 the retention
	// floor is 450, which is below the acked 500, so acked wins and the
	// prune point reaches past the 100-entry window.
	point, ok := p.PrunePoint(500, 550)
	require.True(t, ok)
	require.EqualValues(t, 499, point)
}

func TestPrunePointFallsBackToMinRetainedFloor(t *testing.T) {
	p := RetentionPolicy{MinRetained: 100}
	// A lagging/disconnected link means minAcked is small, but the
	// journal has grown past the retention window — floor wins.
	point, ok := p.PrunePoint(5, 1000)
	require.True(t, ok)
	require.EqualValues(t, 899, point)
}

func TestPrunePointNothingSafeYet(t *testing.T) {
	p := RetentionPolicy{MinRetained: 1000}
	_, ok := p.PrunePoint(0, 10)
	require.False(t, ok)
}

func TestDefaultRetentionPolicyKeepsThousandEntries(t *testing.T) {
	p := DefaultRetentionPolicy()
	require.EqualValues(t, 1000, p.MinRetained)
}
