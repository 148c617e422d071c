package document

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/orbitinghail/sqlsync/internal/coordinator"
	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/lsn"
	"github.com/orbitinghail/sqlsync/internal/pagestore"
	"github.com/orbitinghail/sqlsync/internal/reducer"
	"github.com/orbitinghail/sqlsync/internal/sqlengine"
	"github.com/orbitinghail/sqlsync/internal/syncproto"
)

// clientState is everything the coordinator tracks about one connected
// client's timeline.
type clientState struct {
	timelineID journal.ID
	link       *syncproto.Link
	mirror     *journal.Journal // coordinator's in-memory copy of the client's timeline entries
	ackedLSN   lsn.LSN          // highest storage LSN this client has acknowledged
}

// CoordinatorDocument is the coordinator-side Document (spec §2, §9):
// many client timelines scheduled through a single Priority Heap into one
// VirtualStorage, with retention governed by every link's acked storage
// position.
type CoordinatorDocument struct {
	id        journal.ID
	engine    *sqlengine.Engine
	host      *reducer.Host
	storage   *pagestore.VirtualStorage
	scheduler *coordinator.Scheduler
	applied   *coordinator.AppliedTable
	retention coordinator.RetentionPolicy
	queue     *commandQueue

	mu      sync.Mutex
	clients map[journal.ID]*clientState
}

// NewCoordinatorDocument wires a coordinator document. storageJournal
// backs the document's shared, durable VirtualStorage.
func NewCoordinatorDocument(
	id journal.ID,
	engine *sqlengine.Engine,
	registry *reducer.Registry,
	stepBudget int,
	storageJournal *journal.Journal,
) *CoordinatorDocument {
	coordinator.RegisterCursorOnlyNoop(registry)
	return &CoordinatorDocument{
		id:        id,
		engine:    engine,
		host:      reducer.NewHost(engine, registry, stepBudget),
		storage:   pagestore.NewVirtualStorage(storageJournal),
		scheduler: coordinator.NewScheduler(),
		applied:   coordinator.NewAppliedTable(engine.DB()),
		retention: coordinator.DefaultRetentionPolicy(),
		queue:     newCommandQueue(),
		clients:   make(map[journal.ID]*clientState),
	}
}

// EnsureSchema creates the reserved applied-cursor table. Call once before
// Run, inside the caller's own transaction setup.
func (d *CoordinatorDocument) EnsureSchema(ctx context.Context) error {
	tx, err := d.engine.Begin(ctx)
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

// AddClient registers a newly connected client's timeline and link, and
// starts forwarding its frames into the document's single-writer queue.
func (d *CoordinatorDocument) AddClient(ctx context.Context, timelineID journal.ID, link *syncproto.Link) {
	cs := &clientState{
		timelineID: timelineID,
		link:       link,
		mirror:     journal.New(timelineID, journal.NewMemStore()),
	}
	d.mu.Lock()
	d.clients[timelineID] = cs
	d.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-link.Inbox():
				if !ok {
					return
				}
				d.queue.push(command{Type: cmdSyncFrame, Frame: &syncFrameCommand{Source: timelineID, Message: msg}})
			}
		}
	}()
}

// RemoveClient stops tracking a disconnected client and discards its
// mirror journal. A reconnect starts from a fresh mirror; entries the
// applied table already records are not scheduled again.
func (d *CoordinatorDocument) RemoveClient(timelineID journal.ID) {
	d.mu.Lock()
	delete(d.clients, timelineID)
	d.mu.Unlock()
}

// Query runs a read-only statement on the Document's single-writer loop.
func (d *CoordinatorDocument) Query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	reply := make(chan QueryResult, 1)
	if !d.queue.push(command{Type: cmdQuery, Query: &queryCommand{SQL: q, Args: args, Reply: reply}}) {
		return nil, fmt.Errorf("document %s: closed", d.id)
	}
	select {
	case r := <-reply:
		return r.Rows, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run drives the coordinator document's single-writer loop: process
// incoming sync frames, then drain the scheduler, applying every pending
// mutation before going back to sleep.
func (d *CoordinatorDocument) Run(ctx context.Context) error {
	slog.Info("coordinator document starting", "doc_id", d.id)
	for {
		if c, ok := d.queue.tryPop(); ok {
			d.process(ctx, c)
			d.drainScheduler(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			d.queue.close()
			return ctx.Err()
		case _, ok := <-d.queue.wait():
			if !ok {
				return nil
			}
		}
	}
}

func (d *CoordinatorDocument) process(ctx context.Context, c command) {
	switch c.Type {
	case cmdQuery:
		d.processQuery(ctx, c.Query)
	case cmdSyncFrame:
		d.processFrame(ctx, c.Frame)
	default:
		slog.Error("coordinator document: unknown command type", "type", c.Type)
	}
}

func (d *CoordinatorDocument) processQuery(ctx context.Context, q *queryCommand) {
	rows, err := d.engine.DB().QueryContext(ctx, q.SQL, q.Args...)
	q.Reply <- QueryResult{Rows: rows, Err: err}
}

func (d *CoordinatorDocument) processFrame(ctx context.Context, f *syncFrameCommand) {
	d.mu.Lock()
	cs := d.clients[f.Source]
	d.mu.Unlock()
	if cs == nil {
		slog.Warn("coordinator document: frame from unknown client", "timeline_id", f.Source)
		return
	}

	switch msg := f.Message.(type) {
	case syncproto.TimelineSync:
		newRange, err := cs.mirror.SyncReceive(msg.Partial)
		if err != nil {
			slog.Error("coordinator document: timeline sync_receive failed", "timeline_id", f.Source, "error", err)
			return
		}
		appliedLSN, hasApplied, err := d.applied.AppliedCursor(ctx, f.Source)
		if err != nil {
			slog.Error("coordinator document: read applied cursor failed", "timeline_id", f.Source, "error", err)
			return
		}
		for _, e := range msg.Partial.Entries {
			if hasApplied && e.LSN <= appliedLSN {
				continue
			}
			d.scheduler.Push(f.Source, e.LSN, e.Payload)
		}
		if err := cs.link.Send(syncproto.TimelineSyncAck{TimelineID: f.Source, Range: newRange}); err != nil {
			slog.Warn("coordinator document: failed to ack timeline sync", "error", err)
		}

	case syncproto.StorageRequest:
		partial, err := d.storage.Journal().SyncPrepare(journal.RequestedLsnRange{JournalID: d.id, First: msg.First}, 0)
		if err != nil {
			slog.Error("coordinator document: storage sync_prepare failed", "error", err)
			return
		}
		if partial == nil {
			return
		}
		if err := cs.link.Send(syncproto.StorageSync{Partial: *partial}); err != nil {
			slog.Warn("coordinator document: failed to send storage sync", "error", err)
		}

	case syncproto.TimelineRangeAck:
		d.mu.Lock()
		cs.ackedLSN = msg.StorageLSN
		d.mu.Unlock()

	case syncproto.ErrorFrame:
		slog.Error("coordinator document: peer reported error", "timeline_id", f.Source, "message", msg.Message)

	default:
		slog.Warn("coordinator document: unexpected frame", "type", fmt.Sprintf("%T", msg))
	}
}

// drainScheduler applies every pending scheduled mutation, commits the
// resulting storage entry once, and notifies every connected client that
// new storage is available.
func (d *CoordinatorDocument) drainScheduler(ctx context.Context) {
	applied := false
	for {
		_, set, ok, err := coordinator.ApplyNext(ctx, d.scheduler, d.host)
		if !ok {
			break
		}
		if err != nil {
			slog.Warn("coordinator document: mutation failed, cursor still advanced", "doc_id", d.id, "error", err)
		}
		if set != nil {
			pagestore.ApplySparseSet(d.storage, set)
		}
		applied = true
	}
	if !applied {
		return
	}

	newLSN, committed, err := d.storage.Commit()
	if err != nil {
		slog.Error("coordinator document: storage commit failed", "doc_id", d.id, "error", err)
		return
	}
	if !committed {
		return
	}

	d.mu.Lock()
	links := make([]*syncproto.Link, 0, len(d.clients))
	for _, cs := range d.clients {
		links = append(links, cs.link)
	}
	d.mu.Unlock()

	for _, link := range links {
		if link.State() != syncproto.Connected {
			continue
		}
		if err := link.Send(syncproto.ChangeAvailable{DocumentID: d.id, End: newLSN + 1}); err != nil {
			slog.Warn("coordinator document: failed to notify client of new storage", "error", err)
		}
	}

	d.pruneIfSafe()
}

// pruneIfSafe drops timeline history that every connected client has
// already observed, per RetentionPolicy.
func (d *CoordinatorDocument) pruneIfSafe() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cs := range d.clients {
		r := cs.mirror.Range()
		if r.IsEmpty() {
			continue
		}
		point, ok := d.retention.PrunePoint(cs.ackedLSN, r.End)
		if !ok {
			continue
		}
		if err := cs.mirror.DropPrefix(point); err != nil {
			slog.Warn("coordinator document: timeline prune failed", "timeline_id", cs.timelineID, "error", err)
		}
	}
}
