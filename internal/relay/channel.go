package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session is the origin and network a channel is bound to by its first
// request.
type Session struct {
	Origin    string
	NetworkID string
}

// channel is one gateway connection.
type channel struct {
	id   string
	conn *websocket.Conn

	// handshakeOrigin is the Origin header of the upgrade request, empty
	// for non-browser clients.
	handshakeOrigin string

	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu      sync.Mutex
	session *Session
}

// bind returns the channel's session, binding s when there is none yet.
// ok is false when s does not match the bound session.
func (c *channel) bind(s Session) (bound Session, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		if c.handshakeOrigin != "" && s.Origin != c.handshakeOrigin {
			return Session{}, false
		}
		c.session = &s
		return s, true
	}
	return *c.session, *c.session == s
}

func (c *channel) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *channel) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *channel) closeFrame(reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	return c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
