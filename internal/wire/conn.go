package wire

import (
	"context"
	"sync"

	"github.com/coder/websocket"
)

// Conn wraps a coder/websocket connection with the narrow surface the
// socket orchestrator needs: one read loop per connection, writes
// serialized by writeMu the way a single writer goroutine per socket
// would already guarantee, kept explicit here since broadcast fanout
// writes from other goroutines too.
type Conn struct {
	ws  *websocket.Conn
	ctx context.Context

	writeMu sync.Mutex
	closed  bool
	closeMu sync.Mutex
}

func newConn(ws *websocket.Conn, ctx context.Context) *Conn {
	return &Conn{ws: ws, ctx: ctx}
}

// SetMaxMessageBytes overrides the default inbound payload cap.
func (c *Conn) SetMaxMessageBytes(n int) {
	c.ws.SetReadLimit(int64(n))
}

// Close closes the underlying connection abruptly, without a close
// handshake. Prefer WriteClose for a graceful shutdown.
func (c *Conn) Close() error {
	c.closeMu.Lock()
	c.closed = true
	c.closeMu.Unlock()
	return c.ws.CloseNow()
}

func (c *Conn) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}
