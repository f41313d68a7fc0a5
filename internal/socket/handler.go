package socket

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/farkleio/tablecore/internal/apperr"
	"github.com/farkleio/tablecore/internal/wire"
)

// ServeWebSocket is the net/http entrypoint bound to the upgrade route.
// It performs the RFC 6455 handshake first (so auth failures can be
// reported as WebSocket close codes, not HTTP statuses), then
// authenticates the session/playerId/token query parameters, registers
// the Client, and pumps inbound frames until the connection closes —
// one goroutine per connection, a single blocking read-pump loop.
func (o *Orchestrator) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wire.Upgrade(w, r)
	if err != nil {
		return // Upgrade already wrote the appropriate 400/405/426.
	}
	conn.SetMaxMessageBytes(o.Cfg.MaxMessageBytes)

	now := time.Now()
	sess, tok, err := o.AuthenticateSocketUpgrade(r.Context(), r.URL.RawQuery, now)
	if err != nil {
		code := closeCodeFor(err)
		_ = conn.WriteClose(code, apperr.Reason(err))
		_ = conn.Close()
		return
	}

	client := o.RegisterClient(conn, sess.SessionID, tok.PlayerID, tok.ExpiresAt, now)
	o.BroadcastSessionState(sess)

	defer o.UnregisterClient(client, time.Now())

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if wire.IsClientInitiatedClose(err) {
				o.safeCloseSocket(client, wire.CloseNormal, "client_close")
			} else if wire.IsMessageTooLarge(err) {
				slog.Warn("socket message exceeded size limit", "session_id", client.SessionID, "player_id", client.PlayerID, "reason", apperr.ErrMessageTooLarge)
			}
			return
		}
		o.HandleInboundMessage(client, payload, time.Now())
	}
}

// closeCodeFor maps an upgrade-authentication failure to the close code
// names for its category.
func closeCodeFor(err error) wire.CloseCode {
	switch {
	case err == apperr.ErrRoomBanned:
		return wire.CloseForbidden
	case err == apperr.ErrSessionExpired:
		return wire.CloseSessionExpired
	case err == apperr.ErrUnauthorized, err == apperr.ErrSessionTokenMismatch, err == apperr.ErrTokenNotFound, err == apperr.ErrUnknownSession:
		return wire.CloseUnauthorized
	default:
		return wire.CloseBadRequest
	}
}
