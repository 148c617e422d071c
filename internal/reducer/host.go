package reducer

import (
	"context"
	"errors"
	"fmt"

	"github.com/orbitinghail/sqlsync/internal/pagestore"
	"github.com/orbitinghail/sqlsync/internal/sqlengine"
)

// Reducer is the deterministic user function that turns one mutation's
// argument bytes into SQL statements (spec §4.3). Given the same args and
// the same pre-image database state, it must produce the same writes and
// the same failure decision.
type Reducer func(ctx context.Context, tx *GuardedTx, args []byte) error

// Registry maps a mutation tag to the Reducer that handles it.
type Registry struct {
	reducers map[string]Reducer
}

// NewRegistry returns an empty reducer registry.
func NewRegistry() *Registry {
	return &Registry{reducers: make(map[string]Reducer)}
}

// Register associates tag with r, overwriting any prior registration.
func (reg *Registry) Register(tag string, r Reducer) {
	reg.reducers[tag] = r
}

// Host executes one mutation deterministically against the live SQL
// connection, in a transactional scope (spec §4.3).
type Host struct {
	engine     *sqlengine.Engine
	registry   *Registry
	stepBudget int
}

// NewHost builds a reducer host bound to engine and registry, with the
// given per-mutation step budget (0 selects DefaultStepBudget).
func NewHost(engine *sqlengine.Engine, registry *Registry, stepBudget int) *Host {
	return &Host{engine: engine, registry: registry, stepBudget: stepBudget}
}

// Apply decodes mutation, looks up its reducer by tag, and runs it in a
// fresh transaction seeded with a virtual clock derived from seq
// (typically the mutation's assigned LSN). Success commits and returns the
// resulting page writes; failure — including an unknown tag, a panic, a
// reducer error, or exceeding the step budget — rolls back and returns an
// error satisfying errors.Is(err, ErrReducerFailed) or
// errors.Is(err, ErrReducerTimeout).
func (h *Host) Apply(ctx context.Context, seq int64, mutation []byte) (*pagestore.SparseSet, error) {
	return h.ApplyWithPreCommit(ctx, seq, mutation, nil)
}

// PreCommit runs additional statements against the same transaction a
// reducer just populated, after the reducer succeeds but before commit.
// The coordinator uses this to record the mutation's applied-cursor update
// atomically alongside the reducer's own writes (spec §9) — something a
// second, separate transaction could not guarantee under concurrent sync.
type PreCommit func(tx *sqlengine.Tx) error

// ApplyWithPreCommit behaves like Apply, but runs preCommit (when non-nil)
// in the same transaction immediately after the reducer succeeds and
// before commit. A preCommit failure rolls back exactly like a reducer
// failure.
func (h *Host) ApplyWithPreCommit(ctx context.Context, seq int64, mutation []byte, preCommit PreCommit) (set *pagestore.SparseSet, err error) {
	tag, args, derr := DecodeMutation(mutation)
	if derr != nil {
		return nil, fmt.Errorf("%v: %w", derr, ErrReducerFailed)
	}

	fn, ok := h.registry.reducers[tag]
	if !ok {
		return nil, fmt.Errorf("tag %q: %w: %w", tag, ErrUnknownTag, ErrReducerFailed)
	}

	sqlTx, berr := h.engine.Begin(ctx)
	if berr != nil {
		return nil, berr
	}

	runCtx := WithBudget(ctx, h.stepBudget)
	runCtx = withClock(runCtx, NewClock(seq))

	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			err = fmt.Errorf("tag %q panicked: %v: %w", tag, r, ErrReducerFailed)
		}
	}()

	guarded := &GuardedTx{tx: sqlTx}
	if rerr := fn(runCtx, guarded, args); rerr != nil {
		_ = sqlTx.Rollback()
		return nil, fmt.Errorf("tag %q: %w", tag, classifyFailure(rerr))
	}

	if preCommit != nil {
		if perr := preCommit(sqlTx); perr != nil {
			_ = sqlTx.Rollback()
			return nil, fmt.Errorf("tag %q: pre-commit: %w", tag, perr)
		}
	}

	set, cerr := sqlTx.Commit()
	if cerr != nil {
		return nil, cerr
	}
	return set, nil
}

func classifyFailure(err error) error {
	if errors.Is(err, ErrReducerTimeout) {
		return err
	}
	return fmt.Errorf("%v: %w", err, ErrReducerFailed)
}
