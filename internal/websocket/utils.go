package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// Exam sockets are long-lived: the server pushes a frame at least once per
// second while a module runs, and the client is expected to ping while
// idling in the lobby. The read deadline therefore only needs to catch
// fully dead peers.
const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteTyped sends one JSON frame with a write deadline applied.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse frame.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// ReadJSON decodes the next frame into v, refreshing the read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(readWait))
	return conn.ReadJSON(v)
}

// CloseWithReason sends a normal-closure frame carrying a short reason
// before the connection is torn down, so well-behaved clients can show it
// instead of a generic disconnect.
func CloseWithReason(conn *websocket.Conn, reason string) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	return conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
