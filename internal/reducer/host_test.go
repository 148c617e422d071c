package reducer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbitinghail/sqlsync/internal/testutil"
)

func newTestHost(t *testing.T) (*Host, *Registry) {
	t.Helper()
	engine := testutil.NewEngine(t, "test.db")
	reg := NewRegistry()
	return NewHost(engine, reg, 0), reg
}

func TestMutationEncodeDecodeRoundTrip(t *testing.T) {
	data := EncodeMutation("CreateTask", []byte(`{"id":1}`))
	tag, args, err := DecodeMutation(data)
	require.NoError(t, err)
	require.Equal(t, "CreateTask", tag)
	require.Equal(t, []byte(`{"id":1}`), args)
}

func TestHostAppliesReducerAndCommits(t *testing.T) {
	host, reg := newTestHost(t)
	reg.Register("InitSchema", func(ctx context.Context, tx *GuardedTx, args []byte) error {
		_, err := tx.Exec(`CREATE TABLE tasks(id TEXT PRIMARY KEY, description TEXT, completed INTEGER)`)
		return err
	})

	mutation := EncodeMutation("InitSchema", nil)
	set, err := host.Apply(context.Background(), 1, mutation)
	require.NoError(t, err)
	require.Greater(t, set.Len(), 0)
}

func TestHostUnknownTagFails(t *testing.T) {
	host, _ := newTestHost(t)
	_, err := host.Apply(context.Background(), 1, EncodeMutation("Nope", nil))
	require.ErrorIs(t, err, ErrUnknownTag)
}

func TestHostReducerErrorRollsBack(t *testing.T) {
	host, reg := newTestHost(t)
	reg.Register("Boom", func(ctx context.Context, tx *GuardedTx, args []byte) error {
		if _, err := tx.Exec(`CREATE TABLE t(id TEXT PRIMARY KEY)`); err != nil {
			return err
		}
		return errors.New("business rule violated")
	})

	_, err := host.Apply(context.Background(), 1, EncodeMutation("Boom", nil))
	require.ErrorIs(t, err, ErrReducerFailed)

	reg.Register("Check", func(ctx context.Context, tx *GuardedTx, args []byte) error {
		var name string
		return tx.QueryRow(`SELECT name FROM sqlite_schema WHERE type='table' AND name='t'`).Scan(&name)
	})
	_, err = host.Apply(context.Background(), 2, EncodeMutation("Check", nil))
	require.ErrorIs(t, err, ErrReducerFailed, "rolled-back CREATE TABLE must not be visible")
}

func TestHostPanicIsRecoveredAsReducerFailed(t *testing.T) {
	host, reg := newTestHost(t)
	reg.Register("Panics", func(ctx context.Context, tx *GuardedTx, args []byte) error {
		panic("nope")
	})
	_, err := host.Apply(context.Background(), 1, EncodeMutation("Panics", nil))
	require.ErrorIs(t, err, ErrReducerFailed)
}

func TestHostRejectsReservedTableWrites(t *testing.T) {
	host, reg := newTestHost(t)
	reg.Register("Sneaky", func(ctx context.Context, tx *GuardedTx, args []byte) error {
		_, err := tx.Exec(`INSERT INTO __sqlsync_timelines(timeline_id, lsn) VALUES (?, ?)`, "x", 1)
		return err
	})
	_, err := host.Apply(context.Background(), 1, EncodeMutation("Sneaky", nil))
	require.ErrorIs(t, err, ErrReducerFailed)
}

func TestHostStepBudgetExceededTimesOut(t *testing.T) {
	engine := testutil.NewEngine(t, "test.db")
	reg := NewRegistry()
	reg.Register("Loop", func(ctx context.Context, tx *GuardedTx, args []byte) error {
		for i := 0; i < 10; i++ {
			if err := Step(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	host := NewHost(engine, reg, 3)
	_, err := host.Apply(context.Background(), 1, EncodeMutation("Loop", nil))
	require.ErrorIs(t, err, ErrReducerTimeout)
}

func TestVirtualClockSeededFromSeqNotWallTime(t *testing.T) {
	host, reg := newTestHost(t)
	var observed int64
	reg.Register("ReadClock", func(ctx context.Context, tx *GuardedTx, args []byte) error {
		observed = ClockFromContext(ctx).Now()
		_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS noop(x INTEGER)`)
		return err
	})
	_, err := host.Apply(context.Background(), 42, EncodeMutation("ReadClock", nil))
	require.NoError(t, err)
	require.EqualValues(t, 42, observed)
}
