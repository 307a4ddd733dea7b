package main

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// client is one live websocket connection bound to a room and player.
// Outbound messages go through the buffered send channel; a client that
// cannot keep up is dropped by the hub instead of blocking the room.
type client struct {
	conn     *websocket.Conn
	send     chan any
	roomID   string
	playerID int
	name     string
	addr     string
}

func newClient(conn *websocket.Conn, roomID string, playerID int, name, addr string) *client {
	return &client{
		conn:     conn,
		send:     make(chan any, 8),
		roomID:   roomID,
		playerID: playerID,
		name:     name,
		addr:     addr,
	}
}

// writePump serializes all writes to the socket. It exits when the hub
// closes the send channel or the connection dies.
func (c *client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// close sends a close frame with the given reason and tears the socket
// down. WriteControl may be called concurrently with the write pump.
func (c *client) close(code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = c.conn.Close()
}

// Hub maps each room to its live connections and fans room events out to
// them.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[int]*client
}

func newHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[int]*client),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	bucket, ok := h.rooms[c.roomID]
	if !ok {
		bucket = make(map[int]*client)
		h.rooms[c.roomID] = bucket
	}
	bucket[c.playerID] = c
}

func (h *Hub) unregister(roomID string, playerID int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	bucket, ok := h.rooms[roomID]
	if !ok {
		return
	}

	// The broadcast failure path may already have dropped this client,
	// in which case its channel is closed and must not be closed twice.
	c, ok := bucket[playerID]
	if !ok {
		return
	}

	delete(bucket, playerID)
	close(c.send)

	if len(bucket) == 0 {
		delete(h.rooms, roomID)
	}
}

// broadcast delivers msg to every connection in the room. A connection
// that cannot accept it is deregistered and closed; delivery continues to
// the rest, so one bad socket never stalls a room.
func (h *Hub) broadcast(roomID string, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	bucket := h.rooms[roomID]
	for playerID, c := range bucket {
		select {
		case c.send <- msg:
		default:
			delete(bucket, playerID)
			close(c.send)
		}
	}

	if len(bucket) == 0 {
		delete(h.rooms, roomID)
	}
}

// unicast delivers msg to a single registered client, with the same
// failure handling as broadcast.
func (h *Hub) unicast(c *client, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	bucket := h.rooms[c.roomID]
	if _, ok := bucket[c.playerID]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(bucket, c.playerID)
		close(c.send)
	}
}

func (h *Hub) get(roomID string, playerID int) *client {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.rooms[roomID][playerID]
}

// closeRoom disconnects every client in a room (sweep, empty-room cleanup,
// shutdown).
func (h *Hub) closeRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closeRoomLocked(roomID)
}

func (h *Hub) closeRoomLocked(roomID string) {
	for playerID, c := range h.rooms[roomID] {
		close(c.send)
		_ = c.conn.Close()
		delete(h.rooms[roomID], playerID)
	}
	delete(h.rooms, roomID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID := range h.rooms {
		h.closeRoomLocked(roomID)
	}
}

func (h *Hub) connectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for _, bucket := range h.rooms {
		total += len(bucket)
	}

	return total
}
