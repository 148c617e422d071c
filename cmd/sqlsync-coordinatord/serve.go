package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orbitinghail/sqlsync/internal/appreducers"
	"github.com/orbitinghail/sqlsync/internal/document"
	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/sqlengine"
	"github.com/orbitinghail/sqlsync/internal/syncproto"
)

// daemon holds the coordinator's process-wide state: one Arena of open
// documents, each backed by its own data directory under dataDir.
type daemon struct {
	dataDir   string
	arena     *document.Arena
	startedAt time.Time

	mu      sync.Mutex
	started map[journal.ID]bool // documents whose Run loop has already been launched
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listenAddr string
	var httpAddr string
	var dataDir string
	var stepBudget int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			d := &daemon{
				dataDir:   dataDir,
				arena:     document.NewArena(),
				startedAt: time.Now(),
				started:   make(map[journal.ID]bool),
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			ln, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return fmt.Errorf("serve: listen %s: %w", listenAddr, err)
			}
			defer ln.Close()
			slog.Info("coordinator listening", "addr", listenAddr)

			httpSrv := &http.Server{Addr: httpAddr, Handler: d.statusHandler()}
			go func() {
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("coordinator status server failed", "error", err)
				}
			}()
			slog.Info("coordinator status endpoint listening", "addr", httpAddr)

			go d.acceptLoop(ctx, ln, stepBudget)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh
			slog.Info("coordinator shutting down")
			cancel()
			_ = httpSrv.Close()
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:7701", "sync protocol listen address")
	cmd.Flags().StringVar(&httpAddr, "http", "127.0.0.1:7702", "status endpoint listen address")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./sqlsync-coordinator-data", "directory holding one subdirectory per document")
	cmd.Flags().IntVar(&stepBudget, "step-budget", 0, "reducer step budget per mutation (0 = default of 1000000)")
	return cmd
}

func (d *daemon) acceptLoop(ctx context.Context, ln net.Listener, stepBudget int) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				slog.Error("coordinator accept failed", "error", err)
				continue
			}
		}
		go d.handleConn(ctx, conn, stepBudget)
	}
}

// handleConn reads the one Open handshake frame a client writes immediately
// after dialing (see internal/cli.dialAndHandshake), then hands the same
// net.Conn to a syncproto.Link and routes it to the named document.
func (d *daemon) handleConn(ctx context.Context, conn net.Conn, stepBudget int) {
	framer := syncproto.NewFramer(conn)
	msg, err := framer.ReadMessage()
	if err != nil {
		slog.Warn("coordinator: handshake read failed", "error", err)
		conn.Close()
		return
	}
	open, ok := msg.(syncproto.Open)
	if !ok {
		slog.Warn("coordinator: expected Open handshake frame", "got", fmt.Sprintf("%T", msg))
		conn.Close()
		return
	}

	coordDoc, err := d.documentFor(open.DocumentID, stepBudget)
	if err != nil {
		slog.Error("coordinator: failed to open document", "doc_id", open.DocumentID, "error", err)
		conn.Close()
		return
	}

	link := syncproto.NewConnectedLink(conn)
	coordDoc.AddClient(ctx, open.TimelineID, link)
	slog.Info("coordinator: client connected", "doc_id", open.DocumentID, "timeline_id", open.TimelineID)
	link.Serve(ctx)
	coordDoc.RemoveClient(open.TimelineID)
	slog.Info("coordinator: client disconnected", "doc_id", open.DocumentID, "timeline_id", open.TimelineID)
}

// documentFor returns the open CoordinatorDocument for id, creating its
// on-disk state and launching its Run loop the first time it's seen.
func (d *daemon) documentFor(id journal.ID, stepBudget int) (*document.CoordinatorDocument, error) {
	coordDoc, err := d.arena.GetOrCreate(id, func() (*document.CoordinatorDocument, error) {
		dir := filepath.Join(d.dataDir, id.String())
		if err := os.MkdirAll(filepath.Join(dir, "storage"), 0o755); err != nil {
			return nil, err
		}
		engine, err := sqlengine.Open(filepath.Join(dir, "data.db"))
		if err != nil {
			return nil, err
		}
		store, err := journal.OpenFileStore(filepath.Join(dir, "storage"))
		if err != nil {
			engine.Close()
			return nil, err
		}
		cd := document.NewCoordinatorDocument(id, engine, appreducers.Builtin(), stepBudget, journal.New(id, store))
		if err := cd.EnsureSchema(context.Background()); err != nil {
			engine.Close()
			return nil, err
		}
		return cd, nil
	})
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started[id] {
		d.started[id] = true
		go func() {
			if err := coordDoc.Run(context.Background()); err != nil {
				slog.Info("coordinator document stopped", "doc_id", id, "error", err)
			}
		}()
	}
	return coordDoc, nil
}

type healthStatus struct {
	Status    string `json:"status"`
	Documents int    `json:"documents"`
	UptimeMS  int64  `json:"uptime_ms"`
}

func (d *daemon) statusHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthStatus{
			Status:    "ok",
			Documents: d.arena.Len(),
			UptimeMS:  time.Since(d.startedAt).Milliseconds(),
		})
	})
	return mux
}
