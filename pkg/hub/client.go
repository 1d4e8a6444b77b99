package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

// Connection tuning.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10 // Must be shorter than pongWait
	maxMessageSize = 4 * 1024          // Clients only send control frames
	sendBuffer     = 8
)

// Client is one websocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// Serve registers conn with the hub, queues greeting (if any) as the first
// message and pumps until the connection closes. Call it from the websocket handler.
func Serve(h *Hub, conn *websocket.Conn, greeting Message) {
	c := &Client{hub: h, conn: conn, send: make(chan Message, sendBuffer)}
	if greeting != nil {
		c.send <- greeting
	}
	if !h.add(c) {
		conn.Close()
		return
	}
	go c.writeLoop()
	c.readLoop()
}

// offer queues msg without blocking. A client that has fallen behind loses its
// oldest queued messages; every message is a full snapshot so the newest one is
// all it needs. It reports whether anything was discarded.
func (c *Client) offer(msg Message) (dropped bool) {
	for {
		select {
		case c.send <- msg:
			return dropped
		default:
		}
		select {
		case <-c.send:
			dropped = true
		default:
		}
	}
}

// readLoop only exists to notice disconnects and extend the deadline on pongs.
func (c *Client) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	extend := func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
	extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop is the only writer on the connection.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
