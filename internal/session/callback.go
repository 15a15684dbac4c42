package session

import (
	"context"
	"time"

	"github.com/sebas/rangingcore/internal/engine"
	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// negotiatorCallback adapts one peer's oob.Negotiator outcomes into
// session-level actions and caller-visible callbacks.
type negotiatorCallback struct {
	s     *Session
	entry *peerEntry
}

func (c *negotiatorCallback) OnNegotiated(selections []engine.Selection) {
	c.s.onPeerNegotiated(c.entry, selections)
}

func (c *negotiatorCallback) OnStarted() {
	c.s.onPeerRunning(context.Background(), c.entry)
}

func (c *negotiatorCallback) OnFailed(reason rangingapi.StartFailureReason, err error) {
	c.s.reportStartFailed(c.entry.id, reason, err)
}

func (c *negotiatorCallback) OnStopped() {
	c.s.log.Debug("peer negotiation closed", "peer_id", c.entry.id)
}

// adapterCallback adapts one (peer, technology) adapter's events into
// session-level bookkeeping and the caller-visible Callback (§4.2,
// "callback ordering").
type adapterCallback struct {
	s     *Session
	entry *peerEntry
	tech  rangingapi.Technology
}

func (c *adapterCallback) OnStarted(peer rangingapi.PeerID) {
	c.s.mu.Lock()
	if c.s.state == StateNegotiating {
		c.s.transition(StateStarting)
	}
	if c.s.state == StateStarting {
		c.s.transition(StateRanging)
	}
	c.s.mu.Unlock()
	if c.entry.markStarted() {
		c.s.executor(func() { c.s.callback.OnStarted(peer, c.tech) })
	}
}

func (c *adapterCallback) OnStopped(peer rangingapi.PeerID) {
	c.s.log.Debug("adapter stopped", "peer_id", peer, "technology", c.tech)
}

func (c *adapterCallback) OnClosed(reason rangingapi.AdapterClosedReason) {
	if !c.entry.consumeAdapterDone(c.tech) {
		return // already handled by a synthesised close after the stop deadline
	}
	remaining := c.entry.removeAdapter(c.tech)
	c.s.log.Debug("adapter closed", "peer_id", c.entry.id, "technology", c.tech, "reason", reason, "remaining", remaining)

	if remaining > 0 {
		return
	}
	c.s.rounds.removePeer(c.entry.id)
	if c.s.fuseOn && c.s.deps.Fusion != nil {
		c.s.deps.Fusion.Forget(c.entry.id)
	}
	if c.entry.markStopped() {
		c.s.executor(func() { c.s.callback.OnRangingStopped(c.entry.id) })
	}
}

func (c *adapterCallback) OnRangingData(peer rangingapi.PeerID, m rangingapi.Measurement) {
	if err := m.Validate(); err != nil {
		c.s.log.Warn("dropping invalid measurement", "peer_id", peer, "error", err)
		return
	}

	if c.s.fuseOn && c.s.deps.Fusion != nil {
		m = c.s.deps.Fusion.Fuse(context.Background(), peer, m, time.Now())
	}

	if c.s.deps.Metrics != nil {
		c.s.deps.Metrics.MeasurementDelivered(m.Technology.String())
	}
	c.s.executor(func() { c.s.callback.OnData(peer, m) })

	completed, count := c.s.rounds.record(peer)
	if !completed || c.s.limit <= 0 {
		return
	}
	if count >= c.s.limit {
		go c.s.stopForLimit()
	}
}

func (s *Session) stopForLimit() {
	ctx, cancel := context.WithTimeout(context.Background(), s.deps.StopDeadline)
	defer cancel()
	_ = s.stopInternal(ctx, rangingapi.ClosedLimitReached)
}
