package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orbitinghail/sqlsync/internal/coordinator"
	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/pagestore"
	"github.com/orbitinghail/sqlsync/internal/reducer"
	"github.com/orbitinghail/sqlsync/internal/sqlengine"
	"github.com/orbitinghail/sqlsync/internal/timeline"
)

// TraceEvent is one recorded step outcome, in execution order. Only
// logical facts go here — no timestamps, no raw page bytes — so a
// scenario's trace is reproducible for golden comparison.
type TraceEvent struct {
	Step   int            `json:"step"`
	Action string         `json:"action"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Result is the outcome of running a Scenario: a pass/fail verdict, the
// step trace, and any assertion failures.
type Result struct {
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

func newResult() *Result {
	return &Result{Pass: true}
}

func (r *Result) fail(format string, args ...any) {
	r.Pass = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) record(step int, action string, detail map[string]any) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Action: action, Detail: detail})
}

// EngineFactory opens a fresh sqlengine.Engine identified by name (a
// client name or "coordinator"); the harness never looks inside it.
type EngineFactory func(name string) (*sqlengine.Engine, error)

type clientHandle struct {
	name       string
	timelineID journal.ID
	engine     *sqlengine.Engine
	storage    *pagestore.ReplicaStorage
	host       *reducer.Host
	tl         *timeline.Timeline
	applied    *coordinator.AppliedTable
	mirror     *journal.Journal // coordinator's in-memory copy of this client's timeline
	connected  bool
	lastErr    error
}

// Runner holds one coordinator and every named client for the duration
// of one scenario, driving the same production types
// (timeline.Timeline, coordinator.Scheduler, pagestore storage) that
// internal/document wires over a live internal/syncproto.Link — but
// through direct, synchronous calls, so a scenario's outcome depends only
// on its steps, never on goroutine scheduling.
type Runner struct {
	docID    journal.ID
	registry *reducer.Registry

	coordEngine *sqlengine.Engine
	coordHost   *reducer.Host
	storage     *pagestore.VirtualStorage
	scheduler   *coordinator.Scheduler
	applied     *coordinator.AppliedTable

	clients []*clientHandle
	byName  map[string]*clientHandle
	engines []*sqlengine.Engine
}

// NewRunner builds a Runner for scenario sc.
func NewRunner(sc *Scenario, registry *reducer.Registry, newEngine EngineFactory) (*Runner, error) {
	docID := journal.NewID()
	coordinator.RegisterCursorOnlyNoop(registry)

	coordEngine, err := newEngine("coordinator")
	if err != nil {
		return nil, fmt.Errorf("harness: open coordinator engine: %w", err)
	}

	r := &Runner{
		docID:       docID,
		registry:    registry,
		coordEngine: coordEngine,
		coordHost:   reducer.NewHost(coordEngine, registry, 0),
		storage:     pagestore.NewVirtualStorage(journal.New(docID, journal.NewMemStore())),
		scheduler:   coordinator.NewScheduler(),
		applied:     coordinator.NewAppliedTable(coordEngine.DB()),
		byName:      make(map[string]*clientHandle),
		engines:     []*sqlengine.Engine{coordEngine},
	}

	if err := r.ensureSchema(context.Background()); err != nil {
		r.Close()
		return nil, err
	}

	for _, name := range sc.Clients {
		if err := r.addClient(name, newEngine); err != nil {
			r.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) ensureSchema(ctx context.Context) error {
	tx, err := r.coordEngine.Begin(ctx)
	if err != nil {
		return err
	}
	if err := coordinator.EnsureSchema(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	_, err = tx.Commit()
	return err
}

func (r *Runner) addClient(name string, newEngine EngineFactory) error {
	engine, err := newEngine(name)
	if err != nil {
		return fmt.Errorf("harness: open client %q engine: %w", name, err)
	}
	r.engines = append(r.engines, engine)

	timelineID := journal.NewID()
	storage := pagestore.NewReplicaStorage(journal.New(r.docID, journal.NewMemStore()))
	host := reducer.NewHost(engine, r.registry, 0)
	tl := timeline.New(journal.New(timelineID, journal.NewMemStore()), host, storage)

	ch := &clientHandle{
		name:       name,
		timelineID: timelineID,
		engine:     engine,
		storage:    storage,
		host:       host,
		tl:         tl,
		applied:    coordinator.NewAppliedTable(engine.DB()),
		mirror:     journal.New(timelineID, journal.NewMemStore()),
		connected:  true,
	}
	r.clients = append(r.clients, ch)
	r.byName[name] = ch
	return nil
}

// Close releases every engine the Runner opened.
func (r *Runner) Close() {
	for _, e := range r.engines {
		_ = e.Close()
	}
}

// RunScenario executes sc step by step and returns the resulting trace
// and pass/fail verdict. newEngine supplies a fresh sqlengine.Engine per
// named participant (coordinator plus each client).
func RunScenario(sc *Scenario, registry *reducer.Registry, newEngine EngineFactory) (*Result, error) {
	r, err := NewRunner(sc, registry, newEngine)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	result := newResult()
	ctx := context.Background()

	for i, step := range sc.Steps {
		switch {
		case step.Mutate != nil:
			r.runMutate(ctx, result, i, step)
		case step.Query != "":
			r.runQuery(result, i, step)
		case step.Disconnect:
			r.setConnected(result, i, step.Client, false)
		case step.Reconnect:
			r.setConnected(result, i, step.Client, true)
		case step.Sync:
			r.runSync(ctx, result, i)
		default:
			result.fail("step %d: empty step", i)
		}
	}
	return result, nil
}

func (r *Runner) client(result *Result, step int, name string) *clientHandle {
	ch, ok := r.byName[name]
	if !ok {
		result.fail("step %d: unknown client %q", step, name)
		return nil
	}
	return ch
}

func (r *Runner) runMutate(ctx context.Context, result *Result, step int, s Step) {
	ch := r.client(result, step, s.Client)
	if ch == nil {
		return
	}
	var argsBytes []byte
	if s.Mutate.Args != nil {
		var err error
		argsBytes, err = json.Marshal(s.Mutate.Args)
		if err != nil {
			result.fail("step %d: marshal args for %q: %v", step, s.Mutate.Tag, err)
			return
		}
	}
	mutation := reducer.EncodeMutation(s.Mutate.Tag, argsBytes)
	l, err := ch.tl.Append(ctx, mutation)
	ch.lastErr = err
	detail := map[string]any{"client": s.Client, "tag": s.Mutate.Tag, "lsn": l}
	if err != nil {
		detail["error"] = err.Error()
	}
	result.record(step, "mutate", detail)
}

func (r *Runner) runQuery(result *Result, step int, s Step) {
	ch := r.client(result, step, s.Client)
	if ch == nil {
		return
	}
	if s.ExpectErr != "" {
		if ch.lastErr == nil || !strings.Contains(ch.lastErr.Error(), s.ExpectErr) {
			result.fail("step %d: expected error containing %q, got %v", step, s.ExpectErr, ch.lastErr)
		}
		result.record(step, "expect_err", map[string]any{"client": s.Client, "want": s.ExpectErr})
		return
	}

	rows, err := ch.engine.DB().Query(s.Query)
	if err != nil {
		result.fail("step %d: query failed: %v", step, err)
		return
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	detail := map[string]any{"client": s.Client, "query": s.Query, "rows": n}
	result.record(step, "query", detail)
	if s.ExpectRows != nil && n != *s.ExpectRows {
		result.fail("step %d: query %q returned %d rows, want %d", step, s.Query, n, *s.ExpectRows)
	}
}

func (r *Runner) setConnected(result *Result, step int, name string, connected bool) {
	ch := r.client(result, step, name)
	if ch == nil {
		return
	}
	ch.connected = connected
	action := "disconnect"
	if connected {
		action = "reconnect"
	}
	result.record(step, action, map[string]any{"client": name})
}

// runSync implements the push/apply/commit/pull/rebase cycle of spec §2's
// control flow for every currently-connected client, in one synchronous
// pass: pushing each client's new timeline entries into the coordinator,
// draining the scheduler in fair arrival order, committing the resulting
// storage entry once, then pulling it back and rebasing every connected
// client.
func (r *Runner) runSync(ctx context.Context, result *Result, step int) {
	pushed := 0
	for _, ch := range r.clients {
		if !ch.connected {
			continue
		}
		req := journal.RequestedLsnRange{JournalID: ch.timelineID, First: ch.mirror.Range().End}
		partial, err := ch.tl.SyncPrepare(req, 0)
		if err != nil {
			result.fail("step %d: timeline sync_prepare for %q: %v", step, ch.name, err)
			continue
		}
		if partial == nil {
			continue
		}
		if _, err := ch.mirror.SyncReceive(*partial); err != nil {
			result.fail("step %d: timeline sync_receive for %q: %v", step, ch.name, err)
			continue
		}
		for _, e := range partial.Entries {
			r.scheduler.Push(ch.timelineID, e.LSN, e.Payload)
			pushed++
		}
	}

	appliedCount := 0
	for {
		_, set, ok, err := coordinator.ApplyNext(ctx, r.scheduler, r.coordHost)
		if !ok {
			break
		}
		if err != nil {
			result.record(step, "reducer_failed", map[string]any{"error": err.Error()})
		}
		if set != nil {
			pagestore.ApplySparseSet(r.storage, set)
		}
		appliedCount++
	}

	newLSN, committed, err := r.storage.Commit()
	if err != nil {
		result.fail("step %d: storage commit: %v", step, err)
		return
	}

	result.record(step, "sync", map[string]any{"pushed": pushed, "applied": appliedCount, "committed": committed})
	if !committed {
		return
	}

	for _, ch := range r.clients {
		if !ch.connected {
			continue
		}
		if err := r.pullAndRebase(ctx, ch); err != nil {
			result.fail("step %d: rebase %q: %v", step, ch.name, err)
		}
	}
	_ = newLSN
}

func (r *Runner) pullAndRebase(ctx context.Context, ch *clientHandle) error {
	req := journal.RequestedLsnRange{JournalID: r.docID, First: ch.storage.Journal().Range().End}
	partial, err := r.storage.Journal().SyncPrepare(req, 0)
	if err != nil {
		return fmt.Errorf("storage sync_prepare: %w", err)
	}
	if partial == nil {
		return nil
	}

	ch.storage.Revert()
	if _, err := ch.storage.SyncReceive(*partial); err != nil {
		return fmt.Errorf("storage sync_receive: %w", err)
	}
	for _, e := range partial.Entries {
		set, err := pagestore.Decode(e.Payload)
		if err != nil {
			return fmt.Errorf("decode storage entry at lsn %d: %w", e.LSN, err)
		}
		if err := ch.engine.ApplyPageDiff(set); err != nil {
			return fmt.Errorf("apply page diff at lsn %d: %w", e.LSN, err)
		}
	}

	_, err = ch.tl.Rebase(ctx, ch.applied)
	return err
}
