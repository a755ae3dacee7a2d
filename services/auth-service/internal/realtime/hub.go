package realtime

import (
	"sync"

	"github.com/rs/zerolog"
)

// RoomRegistry is the room and delivery surface the gateway drives. The hub
// implements it in memory; a clustered deployment could swap in a fan-out
// backed by a broker without touching the gateway.
type RoomRegistry interface {
	Register(client *Client)
	Join(connID, room string)
	Leave(connID, room string)
	Emit(room string, event Event)
	EmitTo(connID string, event Event)
	Disconnect(connID string)
	DisconnectRoom(room string)
}

// Hub tracks connections and their room memberships.
type Hub struct {
	logger *zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

func NewHub(logger *zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
}

func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[connID] = client
}

func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(connID, room)
}

func (h *Hub) leaveLocked(connID, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Emit delivers an event to every member of a room. Slow consumers are
// skipped rather than blocking the whole room.
func (h *Hub) Emit(room string, event Event) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for _, client := range h.rooms[room] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		if !client.deliver(event) {
			h.logger.Warn().
				Str("conn_id", client.ID).
				Str("room", room).
				Str("event", event.Name).
				Msg("dropped event for slow or closed connection")
		}
	}
}

func (h *Hub) EmitTo(connID string, event Event) {
	h.mu.RLock()
	client, ok := h.clients[connID]
	h.mu.RUnlock()

	if !ok {
		return
	}
	if !client.deliver(event) {
		h.logger.Warn().
			Str("conn_id", connID).
			Str("event", event.Name).
			Msg("dropped event for slow or closed connection")
	}
}

// Disconnect removes a connection from every room and closes it.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	client, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
		for room := range h.rooms {
			h.leaveLocked(connID, room)
		}
	}
	h.mu.Unlock()

	if ok {
		client.Close()
	}
}

// DisconnectRoom closes every connection currently in a room.
func (h *Hub) DisconnectRoom(room string) {
	h.mu.RLock()
	ids := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Disconnect(id)
	}
}

// Client returns a registered connection, mainly for tests and diagnostics.
func (h *Hub) Client(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[connID]
	return client, ok
}
