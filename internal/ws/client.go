package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// sendBufferSize bounds how far a subscriber may fall behind before
	// fanout detaches it.
	sendBufferSize = 32
	writeWait      = 10 * time.Second
)

// ConnInfo carries identity and correlation data for one connection.
type ConnInfo struct {
	ConnID      string
	UserID      int
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client is one subscriber handle: a websocket connection plus a
// buffered outbound queue drained by its own write pump, so one slow
// socket never blocks fanout to the rest of the room.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	Info ConnInfo
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
		Info: info,
	}
}

// Enqueue offers a payload to the client without blocking. It reports
// false when the client is closed or its buffer is full.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close shuts the client down. Safe to call from any goroutine, any
// number of times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// WritePump drains the send queue to the socket until the client
// closes or a write fails.
func (c *Client) WritePump() {
	defer c.Close()
	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
