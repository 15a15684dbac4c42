package session

import (
	"sync"

	"github.com/sebas/rangingcore/internal/adapter"
	"github.com/sebas/rangingcore/internal/engine"
	"github.com/sebas/rangingcore/internal/oob"
	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// peerPhase tracks where a peer entry is in its own lifecycle, independent
// of the session-wide State (§3, "peer entry").
type peerPhase uint8

const (
	peerNegotiating peerPhase = iota
	peerStarting
	peerRanging
	peerStopped
	peerFailed
)

// peerEntry is one (peer id, selected technologies, per-technology
// parameters, per-peer OOB connection, per-peer negotiation state) tuple
// (§3). Created when a caller adds a peer; destroyed when the session
// closes or the peer is individually removed.
type peerEntry struct {
	id   rangingapi.PeerID
	pref rangingapi.PeerPreference

	mu          sync.Mutex
	negotiator  *oob.Negotiator // nil for raw (no-OOB) peers; guarded by mu like the other mutable fields below
	phase       peerPhase
	startedOnce bool // onStarted fired exactly once (§4.2)
	stoppedOnce bool // onRangingStopped fired exactly once (§4.2)

	// selections holds the config selector's output once negotiation
	// reaches READY, consumed when the peer's START_RANGING_RESPONSE
	// confirms readiness (onPeerRunning).
	selections []engine.Selection

	// liveAdapters tracks outstanding adapter.Adapter instances per
	// technology so the session can wait for every one's onClosed before
	// declaring the peer stopped (§3, "adapter session" lifetime invariant).
	liveAdapters map[rangingapi.Technology]adapter.Adapter

	// adapterDone holds one channel per technology with a started, not yet
	// terminally-closed adapter; closed exactly once by whichever arrives
	// first, the adapter's own OnClosed or the stop deadline's synthesised
	// close (§5, "stuck" adapter handling).
	adapterDone map[rangingapi.Technology]chan struct{}
}

func newPeerEntry(id rangingapi.PeerID, pref rangingapi.PeerPreference) *peerEntry {
	return &peerEntry{
		id:           id,
		pref:         pref,
		phase:        peerNegotiating,
		liveAdapters: make(map[rangingapi.Technology]adapter.Adapter),
		adapterDone:  make(map[rangingapi.Technology]chan struct{}),
	}
}

func (p *peerEntry) setPhase(phase peerPhase) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

func (p *peerEntry) getPhase() peerPhase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *peerEntry) addAdapter(t rangingapi.Technology, a adapter.Adapter) {
	p.mu.Lock()
	p.liveAdapters[t] = a
	p.mu.Unlock()
}

func (p *peerEntry) removeAdapter(t rangingapi.Technology) int {
	p.mu.Lock()
	delete(p.liveAdapters, t)
	remaining := len(p.liveAdapters)
	p.mu.Unlock()
	return remaining
}

func (p *peerEntry) markStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedOnce {
		return false
	}
	p.startedOnce = true
	return true
}

func (p *peerEntry) setNegotiator(n *oob.Negotiator) {
	p.mu.Lock()
	p.negotiator = n
	p.mu.Unlock()
}

func (p *peerEntry) getNegotiator() *oob.Negotiator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.negotiator
}

// armAdapterDone records that t now has a live adapter whose terminal
// close hasn't happened yet, returning the channel closed when it does.
func (p *peerEntry) armAdapterDone(t rangingapi.Technology) chan struct{} {
	ch := make(chan struct{})
	p.mu.Lock()
	p.adapterDone[t] = ch
	p.mu.Unlock()
	return ch
}

// waitAdapterDone returns t's done channel, or nil if t has no outstanding
// close to wait for (never armed, or already consumed).
func (p *peerEntry) waitAdapterDone(t rangingapi.Technology) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.adapterDone[t]
}

// consumeAdapterDone reports whether this is the first terminal close for
// t (real or synthesised) and, if so, closes its done channel so a
// concurrent stop-deadline wait unblocks immediately.
func (p *peerEntry) consumeAdapterDone(t rangingapi.Technology) bool {
	p.mu.Lock()
	ch, ok := p.adapterDone[t]
	if ok {
		delete(p.adapterDone, t)
	}
	p.mu.Unlock()
	if ok {
		close(ch)
	}
	return ok
}

func (p *peerEntry) markStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stoppedOnce {
		return false
	}
	p.stoppedOnce = true
	return true
}
