package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// ReadWait bounds how long a stream may stay silent. Clients ping well inside it.
	ReadWait = 5 * time.Minute
)

// WriteTyped sends a typed payload with a write deadline.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends an ErrorResponse correlated with seq.
func WriteError(conn *websocket.Conn, seq int64, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{Event: EventError, Seq: seq, Error: errMsg})
}

// ReadJSON decodes the next message with a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetReadDeadline(time.Now().Add(ReadWait))
	return conn.ReadJSON(v)
}
