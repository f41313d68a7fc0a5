package wire

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// DefaultMaxMessageBytes is the inbound payload cap applied to a freshly
// upgraded Conn.
const DefaultMaxMessageBytes = 16 * 1024

// Upgrade performs the WebSocket handshake over w/r via coder/websocket,
// the same library the rest of this codebase's WebSocket-facing repos
// reach for. OriginPatterns is left wide open here; CORS on the
// surrounding HTTP routes is the project's actual origin gate.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return nil, err
	}
	ws.SetReadLimit(DefaultMaxMessageBytes)
	return newConn(ws, r.Context()), nil
}

// contextWithoutCancel is used when a Conn needs to keep writing after
// the request context that created it has already been canceled, e.g.
// during the close handshake itself.
func contextWithoutCancel(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
