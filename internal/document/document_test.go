package document

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orbitinghail/sqlsync/internal/journal"
	"github.com/orbitinghail/sqlsync/internal/pagestore"
	"github.com/orbitinghail/sqlsync/internal/reducer"
	"github.com/orbitinghail/sqlsync/internal/sqlengine"
	"github.com/orbitinghail/sqlsync/internal/syncproto"
	"github.com/orbitinghail/sqlsync/internal/testutil"
)

func taskRegistry() *reducer.Registry {
	reg := reducer.NewRegistry()
	reg.Register("CreateTask", func(ctx context.Context, tx *reducer.GuardedTx, args []byte) error {
		_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS tasks(id TEXT PRIMARY KEY, title TEXT)`)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO tasks(id, title) VALUES (?, ?)`, string(args), string(args))
		return err
	})
	return reg
}

func newEngine(t *testing.T, name string) *sqlengine.Engine {
	return testutil.NewEngine(t, name)
}

// TestClientCoordinatorEndToEndSync wires a ClientDocument to a
// CoordinatorDocument over an in-process net.Pipe and exercises: local
// mutate with instant feedback, timeline sync to the coordinator,
// scheduled apply, storage sync back to the client, and rebase.
func TestClientCoordinatorEndToEndSync(t *testing.T) {
	docID := journal.NewID()
	timelineID := journal.NewID()

	coordEngine := newEngine(t, "coord.db")
	coordDoc := NewCoordinatorDocument(docID, coordEngine, taskRegistry(), 0,
		journal.New(docID, journal.NewMemStore()))
	require.NoError(t, coordDoc.EnsureSchema(context.Background()))

	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })

	clientLink := syncproto.NewConnectedLink(clientConn)
	serverLink := syncproto.NewConnectedLink(serverConn)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	coordDoc.AddClient(ctx, timelineID, serverLink)
	go serverLink.Serve(ctx)
	go clientLink.Serve(ctx)
	go coordDoc.Run(ctx)

	clientEngine := newEngine(t, "client.db")
	clientDoc := NewClientDocument(docID, clientEngine, taskRegistry(), 0,
		journal.New(docID, journal.NewMemStore()),
		journal.New(timelineID, journal.NewMemStore()),
		clientLink,
	)
	go clientDoc.Run(ctx)

	l, err := clientDoc.Mutate(context.Background(), "CreateTask", []byte("task-1"))
	require.NoError(t, err)
	require.EqualValues(t, 0, l)

	require.Eventually(t, func() bool {
		rows, err := coordDoc.Query(context.Background(), `SELECT COUNT(*) FROM tasks`)
		if err != nil {
			return false
		}
		defer rows.Close()
		var n int
		if rows.Next() {
			_ = rows.Scan(&n)
		}
		return n == 1
	}, 2*time.Second, 10*time.Millisecond, "coordinator never applied the client's mutation")

	require.Eventually(t, func() bool {
		page, err := clientDoc.storage.ReadPage(1)
		if err != nil {
			return false
		}
		return page != (pagestore.Page{})
	}, 2*time.Second, 10*time.Millisecond, "client storage never received the coordinator's page diff")
}
