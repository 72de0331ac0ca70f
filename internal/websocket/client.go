package websocket

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"emicli/internal/infrastructure"
)

const (
	// writeWait bounds a single frame write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long the read side waits for the next pong.
	pongWait = 60 * time.Second

	// pingPeriod must stay under pongWait so the peer always has a ping
	// to answer before the read deadline fires.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames; clients only ever send heartbeats.
	maxMessageSize = 512
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Connection is the subset of a websocket connection the pumps use. Tests
// substitute an in-memory implementation.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	RemoteAddr() string
}

// gorillaConn adapts *websocket.Conn to the Connection interface.
type gorillaConn struct {
	*websocket.Conn
}

func (c gorillaConn) RemoteAddr() string {
	if addr := c.Conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Client sits between one websocket connection and the hub: the read pump
// consumes heartbeats, the write pump delivers broadcast frames.
type Client struct {
	hub  *Hub
	conn Connection

	// send carries outbound frames; the hub closes it on unregister.
	send chan []byte

	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time

	logger *slog.Logger

	messagesSent     int64
	messagesReceived int64
}

// NewClient wraps a gorilla connection in a Client.
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return NewClientWithConnection(hub, gorillaConn{conn}, logger)
}

// NewClientWithConnection accepts any Connection, which lets tests run the
// pumps without a network socket.
func NewClientWithConnection(hub *Hub, conn Connection, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	id := uuid.New().String()

	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
		id:   id,
		logger: logger.With(
			slog.String("component", "websocket.client"),
			slog.String("client_id", id),
		),
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
	}
}

// NewClientWithTrace builds a client carrying the upgrade request's trace ID.
func NewClientWithTrace(hub *Hub, conn *websocket.Conn, traceID string, logger *slog.Logger) *Client {
	client := NewClient(hub, conn, logger)
	client.traceID = traceID
	client.logger = client.logger.With(slog.String("trace_id", traceID))
	return client
}

// ReadPump consumes inbound frames until the connection drops, then
// unregisters the client. The stream is one way; the only application
// message clients send is a heartbeat.
func (c *Client) ReadPump() {
	defer func() {
		c.logger.InfoContext(c.ctx(), "WebSocket client disconnected",
			slog.Duration("connection_duration", time.Since(c.connectedAt)),
			slog.Int64("messages_received", c.messagesReceived))
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.ErrorContext(c.ctx(), "Unexpected WebSocket close error",
					slog.String("error", err.Error()))
			}
			return
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.messagesReceived++

		// The frontend sends application-level heartbeats alongside protocol
		// pings; both just prove the connection is alive.
		if string(message) == `{"type":"heartbeat"}` {
			c.logger.Debug("Heartbeat received")
		}
	}
}

// WritePump delivers frames from the send channel and keeps the connection
// alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.InfoContext(c.ctx(), "WebSocket write pump stopped",
			slog.Int64("messages_sent", c.messagesSent))
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// The hub closed the channel
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.writeFrame(message) {
				return
			}

			// Flush anything that queued up while we were writing
			for i := len(c.send); i > 0; i-- {
				select {
				case queued := <-c.send:
					if !c.writeFrame(queued) {
						return
					}
				default:
					i = 0
				}
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.ctx(), "Failed to send ping message",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}

// writeFrame sends one text frame, reporting whether the pump should keep
// going.
func (c *Client) writeFrame(message []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.ErrorContext(c.ctx(), "Error writing message to WebSocket",
			slog.String("error", err.Error()))
		return false
	}
	c.messagesSent++
	return true
}

// ctx returns a background context carrying the client's trace ID when set.
func (c *Client) ctx() context.Context {
	if c.traceID == "" {
		return context.Background()
	}
	return infrastructure.WithTraceID(context.Background(), c.traceID)
}

// ServeWS registers the connection with the hub and starts both pumps.
func ServeWS(hub *Hub, conn *websocket.Conn) {
	client := NewClient(hub, conn, nil)
	client.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
