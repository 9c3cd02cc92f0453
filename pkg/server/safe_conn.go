package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ankan-coder/chat-app/pkg/protocol"
)

const writeTimeout = 10 * time.Second

// SafeConn wraps a websocket connection with automatic write
// synchronization. gorilla/websocket supports at most one concurrent
// writer; under load a connection is written to by its own handler,
// by broadcast fan-out from other handlers, and by the liveness
// monitor. SafeConn encapsulates the connection and its write mutex so
// writing without synchronization is impossible.
type SafeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex // Protects writes to conn
}

// NewSafeConn wraps a websocket connection with write synchronization.
func NewSafeConn(conn *websocket.Conn) *SafeConn {
	return &SafeConn{conn: conn}
}

// WriteFrame marshals and sends one structured frame as a text message.
// This is the only way to send server frames; the raw conn is private.
func (sc *SafeConn) WriteFrame(v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return sc.conn.WriteMessage(websocket.TextMessage, data)
}

// WritePing sends a liveness probe control frame.
func (sc *SafeConn) WritePing() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// ReadMessage reads the next websocket message. Reads don't need write
// synchronization; each connection has a single reader goroutine.
func (sc *SafeConn) ReadMessage() (int, []byte, error) {
	return sc.conn.ReadMessage()
}

// SetReadLimit caps inbound message size.
func (sc *SafeConn) SetReadLimit(limit int64) {
	sc.conn.SetReadLimit(limit)
}

// SetPongHandler installs the probe-reply handler.
func (sc *SafeConn) SetPongHandler(h func(string) error) {
	sc.conn.SetPongHandler(h)
}

// RemoteAddr returns the remote network address.
func (sc *SafeConn) RemoteAddr() string {
	return sc.conn.RemoteAddr().String()
}

// Close closes the underlying connection.
func (sc *SafeConn) Close() error {
	return sc.conn.Close()
}
