package wire

import "github.com/coder/websocket"

// CloseCode is a WebSocket close status code. It is a distinct type from
// websocket.StatusCode so callers outside this package never need to
// import coder/websocket directly just to report a close reason.
type CloseCode websocket.StatusCode

const (
	CloseNormal         CloseCode = CloseCode(websocket.StatusNormalClosure)
	CloseInternalError  CloseCode = CloseCode(websocket.StatusInternalError)
	CloseBadRequest     CloseCode = 4400
	CloseUnauthorized   CloseCode = 4401
	CloseForbidden      CloseCode = 4403
	CloseSessionExpired CloseCode = 4408
)
