package connmgr

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// connKey identifies one OOB connection by the session that owns it and
// the peer it talks to.
type connKey struct {
	sessionID uint64
	peerID    rangingapi.PeerID
}

// Manager is the OOB Connection Manager (C5): it owns no Connection
// lifetimes (the owning Session does) but keeps a (session, peer) →
// connection lookup table for routing inbound transport callbacks and for
// session-wide close fan-out, mirroring the switchboard mediaclient.Pool's
// sessionToNode/nodeToSessions affinity maps (§4.5).
type Manager struct {
	mu               sync.RWMutex
	connections      map[connKey]*Connection
	sessionToConns   map[uint64]map[rangingapi.PeerID]*Connection
	log              *slog.Logger
}

// NewManager constructs an empty registry.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		connections:    make(map[connKey]*Connection),
		sessionToConns: make(map[uint64]map[rangingapi.PeerID]*Connection),
		log:            log,
	}
}

// Register creates and indexes a Connection for (sessionID, peerID) over
// transport. It is an error to register the same (sessionID, peerID) twice
// without first calling Remove. A zero disconnectTimeout uses
// DefaultDisconnectTimeout.
func (m *Manager) Register(sessionID uint64, peerID rangingapi.PeerID, transport Transport, disconnectTimeout time.Duration) *Connection {
	conn := NewConnection(peerID, transport, disconnectTimeout, m.log.With("session_id", sessionID))

	key := connKey{sessionID: sessionID, peerID: peerID}
	m.mu.Lock()
	m.connections[key] = conn
	if m.sessionToConns[sessionID] == nil {
		m.sessionToConns[sessionID] = make(map[rangingapi.PeerID]*Connection)
	}
	m.sessionToConns[sessionID][peerID] = conn
	m.mu.Unlock()

	return conn
}

// Lookup returns the connection for (sessionID, peerID), if registered.
func (m *Manager) Lookup(sessionID uint64, peerID rangingapi.PeerID) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[connKey{sessionID: sessionID, peerID: peerID}]
	return c, ok
}

// Remove unregisters and closes the connection for (sessionID, peerID), if
// any. Safe to call more than once.
func (m *Manager) Remove(sessionID uint64, peerID rangingapi.PeerID) {
	m.mu.Lock()
	key := connKey{sessionID: sessionID, peerID: peerID}
	conn, ok := m.connections[key]
	if ok {
		delete(m.connections, key)
		delete(m.sessionToConns[sessionID], peerID)
		if len(m.sessionToConns[sessionID]) == 0 {
			delete(m.sessionToConns, sessionID)
		}
	}
	m.mu.Unlock()

	if ok {
		conn.Close()
	}
}

// CloseSession closes every connection registered under sessionID, fanning
// out over the reverse index rather than scanning the full registry —
// the same shape as the switchboard pool's nodeToSessions reverse lookup.
func (m *Manager) CloseSession(sessionID uint64) {
	m.mu.Lock()
	byPeer := m.sessionToConns[sessionID]
	delete(m.sessionToConns, sessionID)
	var toClose []*Connection
	for peerID, conn := range byPeer {
		delete(m.connections, connKey{sessionID: sessionID, peerID: peerID})
		toClose = append(toClose, conn)
	}
	m.mu.Unlock()

	for _, conn := range toClose {
		conn.Close()
	}
}

// Count reports the number of live connections, for metrics (§2.1/§2.2).
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}
