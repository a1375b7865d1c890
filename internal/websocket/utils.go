package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const (
	writeWait = 10 * time.Second
	readWait  = 5 * time.Minute
)

// WriteTyped sends a strongly-typed payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteData sends an event carrying data for the given request.
func WriteData(conn *websocket.Conn, event Event, requestID string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return WriteTyped(conn, Reply{Event: event, RequestID: requestID, Data: raw})
}

// WriteError sends a typed error reply.
func WriteError(conn *websocket.Conn, requestID string, code response.ErrCode) error {
	return WriteTyped(conn, Reply{
		Event:     EventError,
		RequestID: requestID,
		Error:     &response.ErrorBody{Code: code, Message: response.GetMessage(code)},
	})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetReadDeadline(time.Now().Add(readWait))
	return conn.ReadJSON(v)
}
