// Package runtime hosts the live-connection machinery: the session
// registry, the message router, and the supervised background workers.
// It orchestrates the system without containing business rules.
package runtime

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"market-live/contract"
	"market-live/domain"
)

// connection is one live socket of one authenticated user. A user may hold
// any number of simultaneous connections (multi-tab, multi-device); fan-out
// must reach all of them.
type connection struct {
	id       uuid.UUID
	userID   string
	sink     contract.EventSink
	chats    map[domain.ChatID]struct{}
	focused  *domain.ChatID
	lastSeen time.Time
}

// Registry tracks which connections belong to which user and which chats
// each connection has joined. Purely in-memory; destroyed state is rebuilt
// by clients through the resync protocol, never persisted.
type Registry struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*connection
	byUser      map[string]map[uuid.UUID]*connection
	now         func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[uuid.UUID]*connection),
		byUser:      make(map[string]map[uuid.UUID]*connection),
		now:         time.Now,
	}
}

// Register adds a live connection for an already-authenticated user and
// returns its connection ID. Credential validation happens at the
// transport boundary before this call.
func (r *Registry) Register(userID string, sink contract.EventSink) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := &connection{
		id:       uuid.New(),
		userID:   userID,
		sink:     sink,
		chats:    make(map[domain.ChatID]struct{}),
		lastSeen: r.now(),
	}
	r.connections[conn.id] = conn

	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[uuid.UUID]*connection)
	}
	r.byUser[userID][conn.id] = conn
	return conn.id
}

// Deregister is idempotent: removing an already-absent connection is a
// no-op, not an error. Empty per-user sets are cleaned up so the map does
// not leak over time.
func (r *Registry) Deregister(connectionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(connectionID)
}

func (r *Registry) remove(connectionID uuid.UUID) {
	conn, ok := r.connections[connectionID]
	if !ok {
		return
	}
	delete(r.connections, connectionID)

	if conns, ok := r.byUser[conn.userID]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(r.byUser, conn.userID)
		}
	}
}

// ConnectionsFor returns every live sink of a user. An empty result is the
// normal "offline" case, not an error.
func (r *Registry) ConnectionsFor(userID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []contract.EventSink
	for _, conn := range r.byUser[userID] {
		sinks = append(sinks, conn.sink)
	}
	return sinks
}

func (r *Registry) JoinChat(connectionID uuid.UUID, chatID domain.ChatID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[connectionID]; ok {
		conn.chats[chatID] = struct{}{}
	}
}

func (r *Registry) LeaveChat(connectionID uuid.UUID, chatID domain.ChatID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[connectionID]; ok {
		delete(conn.chats, chatID)
		if conn.focused != nil && *conn.focused == chatID {
			conn.focused = nil
		}
	}
}

// SetFocus records the client-reported "currently viewing this chat" flag.
// The router consults it to decide whether a recipient needs a notification
// on top of the fanned-out message.
func (r *Registry) SetFocus(connectionID uuid.UUID, chatID *domain.ChatID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[connectionID]; ok {
		conn.focused = chatID
	}
}

// IsViewing reports whether any of the user's connections has the chat
// focused. Client-reported, so best effort by design.
func (r *Registry) IsViewing(userID string, chatID domain.ChatID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, conn := range r.byUser[userID] {
		if conn.focused != nil && *conn.focused == chatID {
			return true
		}
	}
	return false
}

// Heartbeat refreshes the liveness timestamp of a connection.
func (r *Registry) Heartbeat(connectionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.connections[connectionID]; ok {
		conn.lastSeen = r.now()
	}
}

// ReapIdle deregisters every connection without a heartbeat inside the
// window, keeping fan-out sets accurate. Returns the number reaped.
func (r *Registry) ReapIdle(olderThan time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-olderThan)
	var stale []uuid.UUID
	for id, conn := range r.connections {
		if conn.lastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		r.remove(id)
	}
	return len(stale)
}

// ConnectionInfo is the read-only view exposed to the diagnostic surface.
type ConnectionInfo struct {
	ConnectionID uuid.UUID
	UserID       string
	JoinedChats  []domain.ChatID
	LastSeen     time.Time
}

// Snapshot copies the live connection-to-user mapping for operational
// debugging. It must not be used for fan-out and never mutates anything.
func (r *Registry) Snapshot() []ConnectionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ConnectionInfo, 0, len(r.connections))
	for _, conn := range r.connections {
		info := ConnectionInfo{
			ConnectionID: conn.id,
			UserID:       conn.userID,
			LastSeen:     conn.lastSeen,
		}
		for chatID := range conn.chats {
			info.JoinedChats = append(info.JoinedChats, chatID)
		}
		infos = append(infos, info)
	}
	return infos
}
