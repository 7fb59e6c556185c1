package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingEvery  = 15 * time.Second
	maxFrameSz = 1 << 20
)

// wsConn wraps one websocket connection as a registry Transport. Writes are
// serialized by the mutex so concurrent publishers interleave whole frames;
// per-publisher send order is preserved because Publish blocks until the
// frame is written.
type wsConn struct {
	id   uuid.UUID
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		id:     uuid.New(),
		conn:   conn,
		closed: make(chan struct{}),
	}
}

func (c *wsConn) SessionID() uuid.UUID { return c.id }

func (c *wsConn) Send(env *Envelope) error {
	payload, err := Encode(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// CloseWithCode sends a close frame carrying an application close code,
// then tears the connection down.
func (c *wsConn) CloseWithCode(code int, reason string) {
	c.writeMu.Lock()
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.writeMu.Unlock()
	_ = c.Close()
}

// Close shuts the underlying connection, unblocking any pending read.
// Idempotent; every exit path funnels through here.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// keepAlive pings the peer until the connection closes. The read side's
// pong handler pushes the read deadline forward, so a dead peer times out
// the read loop within pongWait.
func (c *wsConn) keepAlive() {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
