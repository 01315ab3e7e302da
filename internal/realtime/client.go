package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/huangang/cocode/internal/metrics"
	"github.com/huangang/cocode/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	defaultSendBuffer = 256
)

// Client is one websocket connection subscribed to a project room.
type Client struct {
	ID        string
	ProjectID string
	User      Sender

	hub  *Hub
	conn *websocket.Conn

	// Send is the buffered outbound frame queue drained by WritePump.
	Send chan []byte

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex

	// IncomingHandler is called for every frame read from the peer.
	IncomingHandler func(*Client, []byte)
}

// NewClient creates a client. conn may be nil for in-process subscribers.
func NewClient(hub *Hub, conn *websocket.Conn, projectID string, user Sender, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	return &Client{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		User:      user,
		hub:       hub,
		conn:      conn,
		Send:      make(chan []byte, sendBuffer),
	}
}

// ReadPump pumps frames from the websocket connection to IncomingHandler.
// It returns when the peer goes away, after leaving the room.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Str("client_id", c.ID).Msg("realtime read error")
			}
			return
		}
		if c.IncomingHandler != nil {
			c.IncomingHandler(c, frame)
		}
	}
}

// WritePump pumps frames from Send to the websocket connection and keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a frame without blocking. A full buffer drops the frame.
func (c *Client) TrySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		metrics.RealtimeDrops.WithLabelValues("closed").Inc()
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		metrics.RealtimeDrops.WithLabelValues("full").Inc()
		logger.Warn().Str("client_id", c.ID).Str("project_id", c.ProjectID).Msg("realtime send buffer full, frame dropped")
		return false
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.Send)
		c.mu.Unlock()
	})
}
