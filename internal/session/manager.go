package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sebas/rangingcore/internal/connmgr"
	"github.com/sebas/rangingcore/internal/engine"
	"github.com/sebas/rangingcore/internal/fusion"
	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// DefaultMaxSessions bounds the registry (§4.1, "Fails with ResourceExhausted
// if the per-process cap is hit"). Override via ManagerConfig.
const DefaultMaxSessions = 256

// ManagerConfig bundles the Session Manager's process-wide collaborators,
// shared by every Session it creates (§4.1, §4.2 Deps).
type ManagerConfig struct {
	CapabilityProvider *engine.CapabilityProvider
	ConnManager        *connmgr.Manager
	AdapterFactory     AdapterFactory
	Fusion             *fusion.DriftGuard
	Metrics            Metrics
	MaxSessions        int
	StopDeadline       time.Duration

	// MaxConcurrentNegotiations bounds how many peers, across every session
	// this manager owns, may run OOB negotiation at once. 0 leaves it
	// unbounded.
	MaxConcurrentNegotiations int64

	Log *slog.Logger
}

// Manager is the Session Manager (C1): owns the set of live sessions and
// allocates session identifiers. OOB transports are registered with the
// connection manager directly, not through Manager. Mirrors the switchboard rtpmanager session.Manager's
// single-registry-lock shape, generalized to a monotonic uint64 id instead
// of a callID-keyed uuid since sessions here have no correlated call leg.
type Manager struct {
	cfg ManagerConfig
	log *slog.Logger

	nextID atomic.Uint64

	mu       sync.RWMutex
	sessions map[uint64]*Session

	negotiationSem *semaphore.Weighted
}

// NewManager constructs an empty registry bound to cfg.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	var sem *semaphore.Weighted
	if cfg.MaxConcurrentNegotiations > 0 {
		sem = semaphore.NewWeighted(cfg.MaxConcurrentNegotiations)
	}
	return &Manager{
		cfg:            cfg,
		log:            log,
		sessions:       make(map[uint64]*Session),
		negotiationSem: sem,
	}
}

// CreateSession allocates a fresh monotonically-increasing session id,
// instantiates a Session in state INIT, and registers it (§4.1). Rejects
// with ErrResourceExhausted once MaxSessions live sessions are registered.
func (m *Manager) CreateSession(attribution rangingapi.AttributionToken, callback rangingapi.Callback, executor rangingapi.Executor) (*Session, error) {
	if callback == nil {
		return nil, fmt.Errorf("%w: callback is required", rangingapi.ErrInvalidConfig)
	}

	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: session cap (%d) reached", rangingapi.ErrResourceExhausted, m.cfg.MaxSessions)
	}

	id := m.nextID.Add(1)
	if id == 0 {
		// atomic.Uint64 wraparound after 2^64 sessions in one process
		// lifetime: refuse rather than risk handing out a reused id.
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: session id counter exhausted", rangingapi.ErrInternal)
	}

	deps := Deps{
		Selector:       m.cfg.CapabilityProvider.NewSelector(),
		ConnManager:    m.cfg.ConnManager,
		AdapterFactory: m.cfg.AdapterFactory,
		Fusion:               m.cfg.Fusion,
		Metrics:              m.cfg.Metrics,
		StopDeadline:         m.cfg.StopDeadline,
		Log:                  m.log,
		OnTerminated:         m.Remove,
		NegotiationSemaphore: m.negotiationSem,
	}
	sess := New(id, attribution, callback, executor, deps)
	m.sessions[id] = sess
	m.mu.Unlock()

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.SessionCreated()
	}
	m.log.Info("session created", "session_id", id, "attribution", attribution)
	return sess, nil
}

// Lookup returns the session registered under id, if any.
func (m *Manager) Lookup(id uint64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Dispatch delivers event to the named session's handler if it is still
// registered; otherwise it logs and drops the event (§4.1). fn receives the
// looked-up session and runs synchronously on the caller's goroutine — it is
// the caller's responsibility to make fn non-blocking (e.g. forwarding into
// an adapter callback) since Dispatch holds no lock of its own across fn.
func (m *Manager) Dispatch(id uint64, fn func(*Session)) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		m.log.Warn("dropped event for unknown session", "session_id", id)
		return
	}
	fn(sess)
}

// Remove unregisters a session, e.g. once it reaches TERMINATED. Idempotent.
func (m *Manager) Remove(id uint64) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count reports the number of live (registered) sessions, for metrics
// (§2.1/§2.2).
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll initiates ordered teardown of every live session (§4.1), waiting
// for each to finish draining before returning. Intended for process
// shutdown; reason is surfaced to every session's caller via OnClosed.
func (m *Manager) CloseAll(ctx context.Context, reason rangingapi.ClosedReason) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.stopInternal(ctx, reason)
		}()
	}
	wg.Wait()
}
