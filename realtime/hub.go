package realtime

import (
	"sync"
)

// Hub tracks live connections, the presence registry (user id → current
// connection) and conversation rooms. All of it is process-local and
// ephemeral: empty at boot, rebuilt only from live connections, never
// persisted. Presence is not authoritative for delivery; participant
// authorization happens against the durable store before any room
// subscription is granted.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*Conn            // connection id -> connection
	presence  map[uint]*Conn              // user id -> identified connection
	rooms     map[string]map[string]*Conn // conversation id -> connection id -> connection
	connRooms map[string]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns:     make(map[string]*Conn),
		presence:  make(map[uint]*Conn),
		rooms:     make(map[string]map[string]*Conn),
		connRooms: make(map[string]map[string]struct{}),
	}
}

// Register tracks a freshly upgraded, still unidentified connection and
// starts its write pump.
func (h *Hub) Register(conn *Conn) {
	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.connRooms[conn.ID] = make(map[string]struct{})
	h.mu.Unlock()

	conn.Start()
}

// Identify binds the connection to a user in the presence registry. Last
// writer wins: an earlier connection for the same user is detached and closed
// after the swap. A connection re-identifying as a different user gives up
// its previous presence entry first.
func (h *Hub) Identify(conn *Conn, userID uint) {
	var previous *Conn

	h.mu.Lock()
	if _, ok := h.conns[conn.ID]; !ok {
		h.mu.Unlock()
		return
	}
	if old := conn.UserID(); old != 0 && old != userID {
		if current, ok := h.presence[old]; ok && current.ID == conn.ID {
			delete(h.presence, old)
		}
	}
	if existing, ok := h.presence[userID]; ok && existing.ID != conn.ID {
		previous = existing
		h.detachLocked(existing.ID)
	}
	conn.setUserID(userID)
	h.presence[userID] = conn
	h.mu.Unlock()

	if previous != nil {
		previous.Close(4001, "session replaced")
	}
}

// Unregister removes the connection, its presence entry (found by reverse
// lookup) and all of its room subscriptions.
func (h *Hub) Unregister(conn *Conn) {
	h.mu.Lock()
	h.detachLocked(conn.ID)
	h.mu.Unlock()
}

// Join subscribes an identified connection to a conversation room.
func (h *Hub) Join(conversationID string, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn.ID]; !ok {
		return
	}

	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Conn)
		h.rooms[conversationID] = room
	}
	room[conn.ID] = conn
	h.connRooms[conn.ID][conversationID] = struct{}{}
}

// Leave drops one room subscription.
func (h *Hub) Leave(conversationID string, conn *Conn) {
	h.mu.Lock()
	h.leaveLocked(conversationID, conn.ID)
	h.mu.Unlock()
}

// Broadcast writes payload to every subscriber of the conversation room.
// excludeConnID, when non-empty, skips the acting connection. Returns the
// number of connections the payload was queued for.
func (h *Hub) Broadcast(conversationID string, payload []byte, excludeConnID string) int {
	h.mu.RLock()
	room := h.rooms[conversationID]
	targets := make([]*Conn, 0, len(room))
	for _, conn := range room {
		if excludeConnID != "" && conn.ID == excludeConnID {
			continue
		}
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// NotifyUser delivers payload to the user's current connection, if any.
func (h *Hub) NotifyUser(userID uint, payload []byte) bool {
	h.mu.RLock()
	conn := h.presence[userID]
	h.mu.RUnlock()
	if conn == nil {
		return false
	}
	return conn.Send(payload) == nil
}

// IsOnline reports whether the user has an identified connection right now.
// Used only for best-effort notification routing, never for delivery
// correctness.
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	_, ok := h.presence[userID]
	h.mu.RUnlock()
	return ok
}

// Close terminates all tracked connections and clears hub state.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[string]*Conn)
	h.presence = make(map[uint]*Conn)
	h.rooms = make(map[string]map[string]*Conn)
	h.connRooms = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(1001, "hub shutdown")
	}
}

func (h *Hub) detachLocked(connID string) {
	conn, ok := h.conns[connID]
	if !ok {
		return
	}
	delete(h.conns, connID)

	if userID := conn.UserID(); userID != 0 {
		if current, ok := h.presence[userID]; ok && current.ID == connID {
			delete(h.presence, userID)
		}
	}

	for roomID := range h.connRooms[connID] {
		h.leaveLocked(roomID, connID)
	}
	delete(h.connRooms, connID)
}

func (h *Hub) leaveLocked(conversationID string, connID string) {
	room := h.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
	if memberships, ok := h.connRooms[connID]; ok {
		delete(memberships, conversationID)
	}
}
