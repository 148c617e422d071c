package syncproto

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/orbitinghail/sqlsync/internal/sqlsyncerr"
)

// readTimeout bounds how long readLoop waits for a frame before treating
// the connection as stalled, distinguishing ErrLinkTimeout from an
// ordinary ErrLinkDropped (peer closed / reset).
const readTimeout = 60 * time.Second

// State is one phase of a Link's connection lifecycle (spec §4.5).
type State int

const (
	// Disabled means the link has been turned off and will not attempt
	// to connect until explicitly enabled again.
	Disabled State = iota
	// Disconnected means the link is enabled but has no live connection,
	// waiting out a backoff interval before the next attempt.
	Disconnected
	// Connecting means a dial is in flight.
	Connecting
	// Connected means a session is live and frames may flow.
	Connected
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "Disabled"
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Dialer opens the transport connection a Link frames messages over.
// Implemented by a function wrapping net.Dial in production and an
// in-memory pipe in tests.
type Dialer func(ctx context.Context) (net.Conn, error)

// Backoff computes successive reconnect delays. DefaultBackoff doubles
// from an initial delay up to a cap, the arithmetic the teacher's CLI
// tunables pattern (internal/cli.RootOptions) would expose as flags —
// this package only needs the policy, not a dedicated retry library, so
// it stays a few lines of stdlib math rather than a new dependency.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	attempt int
}

// DefaultBackoff starts at 250ms and caps at 30s.
func DefaultBackoff() *Backoff {
	return &Backoff{Initial: 250 * time.Millisecond, Max: 30 * time.Second}
}

// Next returns the delay before the next attempt and advances internal
// state.
func (b *Backoff) Next() time.Duration {
	d := b.Initial << b.attempt
	if d <= 0 || d > b.Max {
		d = b.Max
	}
	b.attempt++
	return d
}

// Reset clears accumulated backoff after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Link owns one peer connection's frame stream and reconnect policy. A
// Link is driven by a single goroutine (Run); Send writes the frame
// directly on the calling goroutine, and concurrent Send calls are not
// serialized against each other.
type Link struct {
	dial    Dialer
	backoff *Backoff

	mu     sync.Mutex
	state  State
	framer *Framer
	conn   net.Conn

	inbox chan Message
}

// NewLink creates a disconnected link that will dial via dial once Run
// starts.
func NewLink(dial Dialer) *Link {
	return &Link{
		dial:    dial,
		backoff: DefaultBackoff(),
		state:   Disconnected,
		inbox:   make(chan Message, 64),
	}
}

// NewConnectedLink wraps an already-established connection (e.g. one just
// accepted by a coordinator listener) as an immediately-Connected Link.
// Unlike NewLink, it never redials on disconnect — Serve simply reads
// until the peer drops, leaving the caller (typically an Arena) to decide
// whether to forget the client or wait for a fresh inbound connection.
func NewConnectedLink(conn net.Conn) *Link {
	return &Link{
		backoff: DefaultBackoff(),
		state:   Connected,
		conn:    conn,
		framer:  NewFramer(conn),
		inbox:   make(chan Message, 64),
	}
}

// Serve reads frames from an already-Connected link (see
// NewConnectedLink) until the connection drops or ctx is cancelled.
func (l *Link) Serve(ctx context.Context) {
	l.readLoop(ctx, l.conn)
	l.setState(Disconnected)
}

// State returns the link's current connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Disable stops reconnect attempts and closes any live connection.
func (l *Link) Disable() {
	l.mu.Lock()
	l.state = Disabled
	conn := l.conn
	l.conn = nil
	l.framer = nil
	l.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Enable re-arms a disabled link for reconnection; Run must still be
// running to act on it.
func (l *Link) Enable() {
	l.mu.Lock()
	if l.state == Disabled {
		l.state = Disconnected
	}
	l.mu.Unlock()
}

// Inbox returns the channel of messages received from the peer.
func (l *Link) Inbox() <-chan Message { return l.inbox }

// Send writes m to the live connection. Returns an error (never blocks
// indefinitely) if the link is not currently Connected.
func (l *Link) Send(m Message) error {
	l.mu.Lock()
	framer := l.framer
	state := l.state
	l.mu.Unlock()
	if state != Connected || framer == nil {
		return fmt.Errorf("syncproto: link not connected (state=%s)", state)
	}
	return framer.WriteMessage(m)
}

// Run drives the link's connect/read loop until ctx is cancelled,
// reconnecting with backoff whenever the transport drops, mirroring the
// teacher's single-writer Run-loop shape (internal/engine.Engine.Run)
// generalized from an event queue to a network connection.
func (l *Link) Run(ctx context.Context) error {
	for {
		if l.State() == Disabled {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		l.setState(Connecting)
		conn, err := l.dial(ctx)
		if err != nil {
			slog.Warn("syncproto: dial failed", "error", err)
			l.setState(Disconnected)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.backoff.Next()):
				continue
			}
		}

		l.mu.Lock()
		l.conn = conn
		l.framer = NewFramer(conn)
		l.state = Connected
		l.mu.Unlock()
		l.backoff.Reset()

		l.readLoop(ctx, conn)

		l.mu.Lock()
		l.conn = nil
		l.framer = nil
		if l.state != Disabled {
			l.state = Disconnected
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (l *Link) readLoop(ctx context.Context, conn net.Conn) {
	framer := NewFramer(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		msg, err := framer.ReadMessage()
		if err != nil {
			linkErr := sqlsyncerr.ErrLinkDropped
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				linkErr = sqlsyncerr.ErrLinkTimeout
			}
			slog.Warn("syncproto: link read failed", "error", fmt.Errorf("%w: %w", linkErr, err))
			_ = conn.Close()
			return
		}
		select {
		case l.inbox <- msg:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
	}
}
