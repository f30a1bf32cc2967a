package signaling

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// sendBufferSize bounds per-connection outbound queueing. A receiver that
	// cannot drain this many messages is treated as gone.
	sendBufferSize = 32

	writeWait = 10 * time.Second
)

// wsConn adapts a gorilla connection to the Sender interface. Sends go through
// a buffered channel drained by a single write pump goroutine, since gorilla
// connections permit only one concurrent writer.
type wsConn struct {
	conn         *websocket.Conn
	pingInterval time.Duration

	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(conn *websocket.Conn, pingInterval time.Duration) *wsConn {
	return &wsConn{
		conn:         conn,
		pingInterval: pingInterval,
		send:         make(chan []byte, sendBufferSize),
		closed:       make(chan struct{}),
	}
}

// TrySend queues a message without blocking. A full buffer or a closed
// connection drops the message; signaling traffic is best effort and a peer
// that matters will reconnect or time out.
func (c *wsConn) TrySend(msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	case <-c.closed:
		return false
	default:
		return false
	}
}

// closeWith sends a close frame with the given code and reason, then tears the
// connection down.
func (c *wsConn) closeWith(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.Close()
}

func (c *wsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// writePump drains the send channel onto the socket and emits keepalive pings.
// It exits when the connection closes or a write fails.
func (c *wsConn) writePump() {
	var pingC <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-pingC:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
