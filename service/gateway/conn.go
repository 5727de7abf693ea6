package gateway

import (
	"sync"
	"time"

	"CityOps/logger"

	"github.com/gorilla/websocket"
)

// Conn is one live socket. Outbound traffic goes through a buffered send
// queue consumed by a single writer goroutine; a full queue means a slow
// client and the frame is dropped (the poll is the backstop).
type Conn struct {
	ID string

	sock *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}

	// Identity and expiry bookkeeping, guarded by the registry lock.
	userID     int64
	authorized bool
	expireAt   time.Time
}

func newConn(id string, sock *websocket.Conn, queueSize int) *Conn {
	return &Conn{
		ID:   id,
		sock: sock,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

// Queue enqueues a frame without blocking; it reports false when the frame
// was dropped.
func (c *Conn) Queue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		logger.Debugf("[conn %s] send queue full, frame dropped", c.ID)
		return false
	}
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.sock != nil {
			_ = c.sock.Close()
		}
	})
}

// writeLoop is the only writer on the socket. It also keeps the transport
// alive with pings; pongs refresh the registry heartbeat via the pong handler
// installed by the server.
func (c *Conn) writeLoop(pingEvery, writeWait time.Duration) {
	t := time.NewTicker(pingEvery)
	defer t.Stop()
	defer c.Close()

	for {
		select {
		case data := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-t.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
