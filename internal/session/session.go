// Package session implements the Session (C2) and Session Manager (C1)
// from §4.1/§4.2: per-client ranging requests driven to completion across
// N peers and M technologies, the session state machine, and callback
// ordering/measurement aggregation guarantees.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sebas/rangingcore/internal/adapter"
	"github.com/sebas/rangingcore/internal/connmgr"
	"github.com/sebas/rangingcore/internal/engine"
	"github.com/sebas/rangingcore/internal/fusion"
	"github.com/sebas/rangingcore/internal/oob"
	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// DefaultStopDeadline is the §5 session_stop_deadline default: 3s.
const DefaultStopDeadline = 3 * time.Second

// AdapterFactory constructs an adapter for one technology; it is an alias of
// adapter.Factory. The peer id is not passed to the factory; the adapter
// receives it in the parameters given to Start.
type AdapterFactory = adapter.Factory

// Metrics is the metrics contract a Session reports through;
// *rangingmetrics.Collector satisfies it. Nil disables metrics entirely.
type Metrics interface {
	oob.MetricsSink
	SessionCreated()
	SessionClosed(reason string)
	MeasurementDelivered(technology string)
}

// Deps bundles a Session's external collaborators, all supplied by the
// owning Session Manager at CreateSession time.
type Deps struct {
	Selector       *engine.Selector
	ConnManager    *connmgr.Manager
	AdapterFactory AdapterFactory
	Fusion         *fusion.DriftGuard // nil when sensor fusion is disabled process-wide
	StopDeadline   time.Duration
	Log            *slog.Logger
	Metrics        Metrics // nil disables metrics entirely

	// OnTerminated is invoked once, after the TERMINATED transition, so the
	// owning Session Manager can deregister the session (§4.2, "the session
	// object becomes unreachable from the Session Manager on entry" to
	// TERMINATED). Nil is valid for sessions constructed directly in tests.
	OnTerminated func(id uint64)

	// NegotiationSemaphore bounds the process-wide number of peers
	// concurrently running OOB negotiation, shared across every Session the
	// Manager constructs. Nil leaves negotiation fan-out unbounded.
	NegotiationSemaphore *semaphore.Weighted
}

// Session drives one client ranging request (§4.2).
type Session struct {
	id         uint64
	attribution rangingapi.AttributionToken
	callback    rangingapi.Callback
	executor    rangingapi.Executor
	deps        Deps
	log         *slog.Logger

	mu       sync.Mutex
	state    State
	role     rangingapi.DeviceRole
	limit    int
	notify   rangingapi.NotificationPolicy
	fuseOn   bool
	peers    map[rangingapi.PeerID]*peerEntry
	closedOnce sync.Once

	rounds *roundTracker
}

// New constructs a Session in state INIT. The Session Manager is the only
// intended caller; tests construct one directly for unit coverage of the
// state machine in isolation.
func New(id uint64, attribution rangingapi.AttributionToken, callback rangingapi.Callback, executor rangingapi.Executor, deps Deps) *Session {
	if executor == nil {
		executor = rangingapi.GoExecutor
	}
	if deps.StopDeadline <= 0 {
		deps.StopDeadline = DefaultStopDeadline
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		id:          id,
		attribution: attribution,
		callback:    callback,
		executor:    executor,
		deps:        deps,
		log:         log.With("session_id", id),
		state:       StateInit,
		peers:       make(map[rangingapi.PeerID]*peerEntry),
		rounds:      newRoundTracker(),
	}
}

// ID returns the session's process-unique identifier.
func (s *Session) ID() uint64 { return s.id }

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(next State) bool {
	if !s.state.CanTransitionTo(next) {
		s.log.Warn("rejected session transition", "from", s.state, "to", next)
		return false
	}
	s.log.Debug("session transition", "from", s.state, "to", next)
	s.state = next
	return true
}

// Start begins the session (§4.2): valid only in INIT. OOB peers start
// negotiation concurrently; raw peers start their adapters immediately.
// Peers proceed independently of one another, but Start returns only once
// every peer's negotiation or raw start has finished; per-peer failures are
// reported through the callback, not returned.
func (s *Session) Start(ctx context.Context, pref rangingapi.StartPreference) error {
	if err := pref.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateInit {
		s.mu.Unlock()
		return fmt.Errorf("%w: start called in state %s", rangingapi.ErrInvalidConfig, s.state)
	}
	s.role = pref.Role
	s.limit = pref.MeasurementLimit
	s.notify = pref.Notification
	s.fuseOn = pref.SensorFusionEnabled
	if !s.transition(StateNegotiating) {
		s.mu.Unlock()
		return fmt.Errorf("%w: invalid state transition", rangingapi.ErrInternal)
	}

	entries := make([]*peerEntry, 0, len(pref.Peers))
	for _, p := range pref.Peers {
		p.RequestAoA = pref.RequestAoA
		entry := newPeerEntry(p.PeerID, p)
		s.peers[p.PeerID] = entry
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			s.startPeer(ctx, entry)
			return nil // errors are reported per-peer via callbacks, never aggregated here
		})
	}
	_ = g.Wait()

	return nil
}

func (s *Session) startPeer(ctx context.Context, entry *peerEntry) {
	if !entry.pref.UseOOB {
		s.startRawPeer(ctx, entry)
		return
	}

	conn, ok := s.deps.ConnManager.Lookup(s.id, entry.id)
	if !ok {
		s.reportStartFailed(entry.id, rangingapi.StartFailureInvalidConfig, fmt.Errorf("%w: no OOB connection registered for peer", rangingapi.ErrInvalidConfig))
		return
	}

	if s.deps.NegotiationSemaphore != nil {
		if err := s.deps.NegotiationSemaphore.Acquire(ctx, 1); err != nil {
			s.reportStartFailed(entry.id, rangingapi.StartFailureOobTimeout, fmt.Errorf("waiting for a negotiation slot: %w", err))
			return
		}
		defer s.deps.NegotiationSemaphore.Release(1)
	}

	negotiator := oob.New(entry.id, conn, s.deps.Selector, s.deps.Selector.Local(), entry.pref, oob.DefaultDeadlines(), &negotiatorCallback{s: s, entry: entry}, s.log)
	if s.deps.Metrics != nil {
		negotiator.WithMetrics(s.deps.Metrics)
	}
	entry.setNegotiator(negotiator)
	var err error
	if s.role == rangingapi.RoleResponder {
		err = negotiator.RunResponder(ctx)
	} else {
		err = negotiator.RunInitiator(ctx)
	}
	if err != nil {
		s.log.Info("peer negotiation did not complete", "peer_id", entry.id, "error", err)
	}
}

func (s *Session) startRawPeer(ctx context.Context, entry *peerEntry) {
	if entry.pref.Raw == nil {
		s.reportStartFailed(entry.id, rangingapi.StartFailureInvalidConfig, fmt.Errorf("%w: raw peer missing parameters", rangingapi.ErrInvalidConfig))
		return
	}
	s.startAdapter(ctx, entry, *entry.pref.Raw)
}

// onPeerNegotiated is called by the negotiator callback once configuration
// is acknowledged; the session does not start local hardware until the
// peer's own START_RANGING_RESPONSE confirms readiness (onPeerRunning).
func (s *Session) onPeerNegotiated(entry *peerEntry, selections []engine.Selection) {
	entry.mu.Lock()
	entry.selections = selections
	entry.mu.Unlock()
}

func (s *Session) onPeerRunning(ctx context.Context, entry *peerEntry) {
	entry.mu.Lock()
	selections := entry.selections
	entry.mu.Unlock()

	var g errgroup.Group
	for _, sel := range selections {
		sel := sel
		g.Go(func() error {
			s.startAdapter(ctx, entry, sel.LocalParams)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Session) startAdapter(ctx context.Context, entry *peerEntry, params rangingapi.TechnologyParams) {
	a, err := s.deps.AdapterFactory(params.Technology)
	if err != nil {
		s.reportStartFailed(entry.id, rangingapi.StartFailureUnsupported, err)
		return
	}
	cb := &adapterCallback{s: s, entry: entry, tech: params.Technology}
	entry.addAdapter(params.Technology, a)
	entry.armAdapterDone(params.Technology)
	s.rounds.addPeer(entry.id)
	if err := a.Start(ctx, params, cb); err != nil {
		entry.removeAdapter(params.Technology)
		entry.consumeAdapterDone(params.Technology) // never started; nothing to wait out
		s.reportStartFailed(entry.id, rangingapi.StartFailureAdapterFailedToStart, err)
		return
	}

	s.mu.Lock()
	if s.state == StateNegotiating {
		s.transition(StateStarting)
	}
	s.mu.Unlock()
}

func (s *Session) reportStartFailed(peer rangingapi.PeerID, reason rangingapi.StartFailureReason, err error) {
	s.log.Warn("peer start failed", "peer_id", peer, "reason", reason, "error", err)
	s.executor(func() { s.callback.OnStartFailed(peer, reason) })
}

// Stop broadcasts a stop to all peers and drains pending adapter closures
// with a bounded deadline (§4.2, §5). Idempotent.
func (s *Session) Stop(ctx context.Context) error {
	return s.stopInternal(ctx, rangingapi.ClosedRequested)
}

// stopInternal is the shared drain routine behind the caller-facing Stop
// and the measurement-limit shutdown path (§4.2): both broadcast a stop to
// every peer and drain adapter closures, differing only in the reason
// reported on onClosed.
func (s *Session) stopInternal(ctx context.Context, reason rangingapi.ClosedReason) error {
	s.mu.Lock()
	switch s.state {
	case StateStopping, StateTerminated:
		s.mu.Unlock()
		return nil
	case StateInit:
		s.transition(StateStopping)
		s.mu.Unlock()
		s.finish(reason)
		return nil
	}
	s.transition(StateStopping)
	entries := make([]*peerEntry, 0, len(s.peers))
	for _, e := range s.peers {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, s.deps.StopDeadline)
	defer cancel()

	var g errgroup.Group
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			s.stopPeer(stopCtx, entry)
			return nil
		})
	}
	_ = g.Wait()

	s.finish(reason)
	return nil
}

func (s *Session) stopPeer(ctx context.Context, entry *peerEntry) {
	if negotiator := entry.getNegotiator(); negotiator != nil {
		_ = negotiator.Stop(ctx)
	}
	entry.mu.Lock()
	adapters := make(map[rangingapi.Technology]adapter.Adapter, len(entry.liveAdapters))
	for t, a := range entry.liveAdapters {
		adapters[t] = a
	}
	entry.mu.Unlock()

	var wg sync.WaitGroup
	for tech, a := range adapters {
		tech, a := tech, a
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.stopAdapterWithDeadline(ctx, entry, tech, a)
		}()
	}
	wg.Wait()
}

// stopAdapterWithDeadline requests one adapter's shutdown and waits, up to
// the session's stop deadline, for its terminal close. a.Stop is launched
// on its own goroutine rather than awaited directly: an adapter that
// ignores ctx cancellation and never returns must not block the rest of
// the peer's shutdown, so past the deadline its close is synthesised and
// the adapter abandoned (§5, "session_stop_deadline... any adapter not yet
// closed is considered stuck and its close is synthesised").
func (s *Session) stopAdapterWithDeadline(ctx context.Context, entry *peerEntry, tech rangingapi.Technology, a adapter.Adapter) {
	done := entry.waitAdapterDone(tech)
	if done == nil {
		return
	}

	go func() { _ = a.Stop(ctx) }()

	select {
	case <-done:
	case <-time.After(s.deps.StopDeadline):
		s.log.Warn("adapter did not close before the stop deadline; synthesising closed event", "peer_id", entry.id, "technology", tech)
		(&adapterCallback{s: s, entry: entry, tech: tech}).OnClosed(rangingapi.AdapterClosedUnresponsive)
	}
}

// finish transitions to TERMINATED and fires onClosed exactly once,
// strictly after every peer's onStopped (enforced by the caller having
// already drained adapters before calling finish).
func (s *Session) finish(reason rangingapi.ClosedReason) {
	s.closedOnce.Do(func() {
		s.mu.Lock()
		s.transition(StateTerminated)
		s.mu.Unlock()
		s.deps.ConnManager.CloseSession(s.id)
		if s.deps.Metrics != nil {
			s.deps.Metrics.SessionClosed(reason.String())
		}
		s.executor(func() { s.callback.OnClosed(reason) })
		if s.deps.OnTerminated != nil {
			s.deps.OnTerminated(s.id)
		}
	})
}

// AddPeer adds a peer to a RANGING session (§4.2).
func (s *Session) AddPeer(ctx context.Context, pref rangingapi.PeerPreference) error {
	s.mu.Lock()
	if s.state != StateRanging && s.state != StateNegotiating && s.state != StateStarting {
		s.mu.Unlock()
		return fmt.Errorf("%w: add_peer called in state %s", rangingapi.ErrInvalidConfig, s.state)
	}
	if _, exists := s.peers[pref.PeerID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: peer already present", rangingapi.ErrInvalidConfig)
	}
	entry := newPeerEntry(pref.PeerID, pref)
	s.peers[pref.PeerID] = entry
	s.mu.Unlock()

	s.startPeer(ctx, entry)
	return nil
}

// RemovePeer tears down one peer's negotiation/adapters (§4.2). Removing
// the last peer implicitly stops the session.
func (s *Session) RemovePeer(ctx context.Context, peer rangingapi.PeerID) error {
	s.mu.Lock()
	entry, ok := s.peers[peer]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: unknown peer", rangingapi.ErrInvalidConfig)
	}
	delete(s.peers, peer)
	remaining := len(s.peers)
	s.mu.Unlock()

	s.stopPeer(ctx, entry)
	s.rounds.removePeer(peer)

	if remaining == 0 {
		return s.Stop(ctx)
	}
	return nil
}
