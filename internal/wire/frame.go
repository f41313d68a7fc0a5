package wire

import (
	"github.com/coder/websocket"
)

// Opcode identifies whether an inbound message was sent as text or
// binary. coder/websocket reassembles fragmentation and answers
// ping/pong internally, so these are the only two values ReadMessage
// ever returns; a client-initiated close surfaces as an error instead,
// see IsClientInitiatedClose.
type Opcode byte

const (
	OpcodeText   Opcode = 0x1
	OpcodeBinary Opcode = 0x2
)

// ReadMessage reads one complete message off the connection.
func (c *Conn) ReadMessage() (Opcode, []byte, error) {
	typ, payload, err := c.ws.Read(c.ctx)
	if err != nil {
		return 0, nil, err
	}
	if typ == websocket.MessageBinary {
		return OpcodeBinary, payload, nil
	}
	return OpcodeText, payload, nil
}

// IsClientInitiatedClose reports whether err is the close-handshake
// error coder/websocket.Read returns once the peer sends a close frame,
// as opposed to a dropped connection or read timeout.
func IsClientInitiatedClose(err error) bool {
	return websocket.CloseStatus(err) != -1
}

// IsMessageTooLarge reports whether err is the connection-closing error
// coder/websocket.Read returns when a client sends a message over the
// Conn's SetMaxMessageBytes limit; the library has already closed the
// connection with StatusMessageTooBig by the time Read returns it.
func IsMessageTooLarge(err error) bool {
	return websocket.CloseStatus(err) == websocket.StatusMessageTooBig
}

// WriteText writes an unfragmented text frame.
func (c *Conn) WriteText(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.isClosed() {
		return websocket.CloseError{Code: websocket.StatusNormalClosure}
	}
	return c.ws.Write(contextWithoutCancel(c.ctx), websocket.MessageText, payload)
}

// WriteClose performs the close handshake with the given status code and
// reason; reason is truncated here to the 123 bytes RFC 6455 allows a
// close frame's payload after its 2-byte code.
func (c *Conn) WriteClose(code CloseCode, reason string) error {
	c.closeMu.Lock()
	c.closed = true
	c.closeMu.Unlock()
	if len(reason) > 123 {
		reason = reason[:123]
	}
	return c.ws.Close(websocket.StatusCode(code), reason)
}
