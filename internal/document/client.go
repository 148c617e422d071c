package document

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/orbitinghail/sqlsync/internal/coordinator"
	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/lsn"
	"github.com/orbitinghail/sqlsync/internal/pagestore"
	"github.com/orbitinghail/sqlsync/internal/reducer"
	"github.com/orbitinghail/sqlsync/internal/sqlengine"
	"github.com/orbitinghail/sqlsync/internal/syncproto"
	"github.com/orbitinghail/sqlsync/internal/timeline"
)

// MutateResult is the outcome of one Mutate call, delivered asynchronously
// through the Document's single-writer loop.
type MutateResult struct {
	LSN lsn.LSN
	Err error
}

// QueryResult is the outcome of one Query call.
type QueryResult struct {
	Rows *sql.Rows
	Err  error
}

// ClientDocument is the client-side Document (spec §2): one timeline
// syncing against a single coordinator Link, backed by ReplicaStorage.
type ClientDocument struct {
	id      journal.ID
	engine  *sqlengine.Engine
	host    *reducer.Host
	storage *pagestore.ReplicaStorage
	tl      *timeline.Timeline
	link    *syncproto.Link
	applied *coordinator.AppliedTable
	queue   *commandQueue

	// remoteCursor is the end (one past the highest LSN) of the timeline
	// range the coordinator has acknowledged receiving, taken from the most
	// recent TimelineSyncAck.Range.End.
	// Outgoing partials start here, not at the local journal's own tail —
	// the local tail is always fully caught up with itself.
	remoteCursor lsn.LSN
}

// NewClientDocument wires a client document together. engine and registry
// back the reducer host; storageJournal is the client's local mirror of
// the coordinator's storage journal; timelineJournal is this client's own
// mutation log; link is the (possibly not-yet-connected) coordinator
// connection.
func NewClientDocument(
	id journal.ID,
	engine *sqlengine.Engine,
	registry *reducer.Registry,
	stepBudget int,
	storageJournal *journal.Journal,
	timelineJournal *journal.Journal,
	link *syncproto.Link,
) *ClientDocument {
	storage := pagestore.NewReplicaStorage(storageJournal)
	host := reducer.NewHost(engine, registry, stepBudget)
	tl := timeline.New(timelineJournal, host, storage)
	return &ClientDocument{
		id:      id,
		engine:  engine,
		host:    host,
		storage: storage,
		tl:      tl,
		link:    link,
		applied: coordinator.NewAppliedTable(engine.DB()),
		queue:   newCommandQueue(),
	}
}

// Mutate submits a mutation for execution on the Document's single-writer
// loop and blocks for its result. Safe to call from any goroutine.
func (d *ClientDocument) Mutate(ctx context.Context, tag string, args []byte) (lsn.LSN, error) {
	reply := make(chan MutateResult, 1)
	if !d.queue.push(command{Type: cmdMutate, Mutate: &mutateCommand{Tag: tag, Args: args, Reply: reply}}) {
		return 0, fmt.Errorf("document %s: closed", d.id)
	}
	select {
	case r := <-reply:
		return r.LSN, r.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Query runs a read-only statement on the Document's single-writer loop.
func (d *ClientDocument) Query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
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

// Sync pushes any timeline entries not yet acknowledged by the coordinator
// and requests the latest storage, then blocks until the request has been
// sent (not until the round-trip completes — the resulting StorageSync
// still arrives asynchronously through the link, same as a Mutate-triggered
// push). Returns an error if the link is not currently Connected.
func (d *ClientDocument) Sync(ctx context.Context) error {
	reply := make(chan error, 1)
	if !d.queue.push(command{Type: cmdSync, Sync: &syncCommand{Reply: reply}}) {
		return fmt.Errorf("document %s: closed", d.id)
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the single-writer loop until ctx is cancelled, processing
// queued commands and frames arriving from the coordinator link, directly
// generalizing the teacher's Engine.Run (internal/engine/engine.go).
func (d *ClientDocument) Run(ctx context.Context) error {
	slog.Info("client document starting", "doc_id", d.id)
	for {
		if c, ok := d.queue.tryPop(); ok {
			d.process(ctx, c)
			continue
		}

		select {
		case <-ctx.Done():
			d.queue.close()
			return ctx.Err()

		case msg := <-d.link.Inbox():
			d.process(ctx, command{Type: cmdSyncFrame, Frame: &syncFrameCommand{Message: msg}})

		case _, ok := <-d.queue.wait():
			if !ok {
				return nil
			}
		}
	}
}

func (d *ClientDocument) process(ctx context.Context, c command) {
	switch c.Type {
	case cmdMutate:
		d.processMutate(ctx, c.Mutate)
	case cmdQuery:
		d.processQuery(ctx, c.Query)
	case cmdSyncFrame:
		d.processFrame(ctx, c.Frame)
	case cmdSync:
		d.processSync(c.Sync)
	default:
		slog.Error("client document: unknown command type", "type", c.Type)
	}
}

func (d *ClientDocument) processSync(s *syncCommand) {
	if d.link.State() != syncproto.Connected {
		s.Reply <- fmt.Errorf("document %s: link not connected", d.id)
		return
	}

	req := journal.RequestedLsnRange{JournalID: d.tl.ID(), First: d.remoteCursor}
	if err := d.link.Send(syncproto.TimelineSync{Partial: mustPartial(d.tl, req)}); err != nil {
		s.Reply <- fmt.Errorf("document %s: push timeline sync: %w", d.id, err)
		return
	}
	if err := d.link.Send(syncproto.StorageRequest{DocumentID: d.id, First: d.storage.Journal().Range().End}); err != nil {
		s.Reply <- fmt.Errorf("document %s: request storage sync: %w", d.id, err)
		return
	}
	s.Reply <- nil
}

func (d *ClientDocument) processMutate(ctx context.Context, m *mutateCommand) {
	l, err := d.tl.Append(ctx, reducer.EncodeMutation(m.Tag, m.Args))
	m.Reply <- MutateResult{LSN: l, Err: err}

	if d.link.State() == syncproto.Connected {
		req := journal.RequestedLsnRange{JournalID: d.tl.ID(), First: d.remoteCursor}
		if err := d.link.Send(syncproto.TimelineSync{Partial: mustPartial(d.tl, req)}); err != nil {
			slog.Warn("client document: failed to push timeline sync", "error", err)
		}
	}
}

func (d *ClientDocument) processQuery(ctx context.Context, q *queryCommand) {
	rows, err := d.engine.DB().QueryContext(ctx, q.SQL, q.Args...)
	q.Reply <- QueryResult{Rows: rows, Err: err}
}

func (d *ClientDocument) processFrame(ctx context.Context, f *syncFrameCommand) {
	switch msg := f.Message.(type) {
	case syncproto.StorageSync:
		d.storage.Revert()
		if _, err := d.storage.SyncReceive(msg.Partial); err != nil {
			slog.Error("client document: storage sync_receive failed", "doc_id", d.id, "error", err)
			return
		}
		for _, e := range msg.Partial.Entries {
			set, err := pagestore.Decode(e.Payload)
			if err != nil {
				slog.Error("client document: decode storage entry failed", "doc_id", d.id, "lsn", e.LSN, "error", err)
				return
			}
			if err := d.engine.ApplyPageDiff(set); err != nil {
				slog.Error("client document: apply page diff failed", "doc_id", d.id, "lsn", e.LSN, "error", err)
				return
			}
		}
		result, err := d.tl.Rebase(ctx, d.applied)
		if err != nil {
			slog.Error("client document: rebase failed", "doc_id", d.id, "error", err)
			return
		}
		for l, ferr := range result.Failures {
			slog.Warn("client document: rebase entry failed", "doc_id", d.id, "lsn", l, "error", ferr)
		}

	case syncproto.ChangeAvailable:
		if err := d.link.Send(syncproto.StorageRequest{DocumentID: d.id, First: d.storage.Journal().Range().End}); err != nil {
			slog.Warn("client document: failed to request storage sync", "error", err)
		}

	case syncproto.TimelineSyncAck:
		// The coordinator's view of our timeline range after merging our
		// last push; the next push must start here, not at our own tail.
		if msg.Range.End > d.remoteCursor {
			d.remoteCursor = msg.Range.End
		}
		slog.Debug("client document: timeline sync acked", "range", msg.Range)

	case syncproto.ErrorFrame:
		slog.Error("client document: peer reported error", "doc_id", d.id, "message", msg.Message)

	default:
		slog.Warn("client document: unexpected frame", "type", fmt.Sprintf("%T", msg))
	}
}

func mustPartial(tl *timeline.Timeline, req journal.RequestedLsnRange) journal.Partial {
	p, err := tl.SyncPrepare(req, 0)
	if err != nil || p == nil {
		return journal.Partial{JournalID: tl.ID(), FirstLSN: req.First}
	}
	return *p
}
