// Package realtime fans project-message events out to the websocket
// subscribers of a project room.
package realtime

import (
	"context"
	"sync"

	"github.com/huangang/cocode/internal/metrics"
	"github.com/huangang/cocode/pkg/logger"
)

// Bus carries frames between server instances. Publish must eventually
// deliver the frame to the subscribe callback of every instance, this one included.
type Bus interface {
	Publish(ctx context.Context, projectID string, frame []byte) error
	Subscribe(ctx context.Context, deliver func(projectID string, frame []byte)) error
	Close() error
}

// Hub keeps one room per project id. Every subscriber of a room receives each
// published message, the sender's own connection included.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	bus   Bus
}

// NewHub creates a hub. With a nil bus, delivery stays in-process.
func NewHub(bus Bus) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		bus:   bus,
	}
}

func (h *Hub) Name() string { return "project hub" }

// Start subscribes to the bus, if any, until ctx is done.
func (h *Hub) Start(ctx context.Context) error {
	if h.bus == nil {
		return nil
	}
	return h.bus.Subscribe(ctx, h.deliverLocal)
}

// Join adds the client to its project's room.
func (h *Hub) Join(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.ProjectID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.ProjectID] = room
		metrics.RealtimeRooms.Inc()
	}
	room[c] = struct{}{}
	size := len(room)
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()
	logger.Info().Str("project_id", c.ProjectID).Str("user_id", c.User.ID).Str("client_id", c.ID).Int("room_size", size).Msg("realtime client joined")
}

// UnregisterClient removes the client and closes its send channel. Safe to call twice.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.ProjectID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, member := room[c]; !member {
		h.mu.Unlock()
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.ProjectID)
		metrics.RealtimeRooms.Dec()
	}
	c.closeSend()
	h.mu.Unlock()

	metrics.WebSocketConnections.Dec()
	logger.Info().Str("project_id", c.ProjectID).Str("client_id", c.ID).Msg("realtime client left")
}

// Publish sends msg to every subscriber of the project room.
func (h *Hub) Publish(ctx context.Context, projectID string, msg ChatMessage) error {
	frame, err := EncodeFrame(msg)
	if err != nil {
		return err
	}

	kind := KindHuman
	if _, ok := msg.(AIMessage); ok {
		kind = KindAI
	}
	metrics.RealtimeMessages.WithLabelValues(kind).Inc()

	if h.bus != nil {
		return h.bus.Publish(ctx, projectID, frame)
	}
	h.deliverLocal(projectID, frame)
	return nil
}

func (h *Hub) deliverLocal(projectID string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[projectID] {
		c.TrySend(frame)
	}
}

// RoomSize returns the number of local subscribers of a project.
func (h *Hub) RoomSize(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[projectID])
}

// ClientCount returns the number of local subscribers across all rooms.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// Close disconnects every client and releases the bus.
func (h *Hub) Close() error {
	h.mu.Lock()
	for projectID, room := range h.rooms {
		for c := range room {
			c.closeSend()
			if c.conn != nil {
				_ = c.conn.Close()
			}
			metrics.WebSocketConnections.Dec()
		}
		delete(h.rooms, projectID)
		metrics.RealtimeRooms.Dec()
	}
	h.mu.Unlock()

	if h.bus != nil {
		return h.bus.Close()
	}
	return nil
}
