// Package fusion defines the sensor-fusion collaborator contract the
// session hands measurements to when a caller enables fusion (§4.2), and a
// drift-timeout wrapper that falls back to forwarding raw measurements
// when the collaborator goes quiet. The fusion algorithm itself is an
// external collaborator and out of scope (§1); this package only pins down
// the boundary and the degraded-mode behaviour the session relies on.
package fusion

import (
	"context"
	"sync"
	"time"

	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// Collaborator consumes raw per-peer measurements and produces fused ones.
// Implementations may buffer across peers and technologies; Fuse must not
// block indefinitely — the DriftGuard wrapper below enforces that from the
// caller side regardless.
type Collaborator interface {
	Fuse(peer rangingapi.PeerID, raw rangingapi.Measurement) (rangingapi.Measurement, bool)
}

// DefaultDriftTimeout is the §5 default: 5s of collaborator silence before
// the session reverts to forwarding raw measurements for the affected peer.
const DefaultDriftTimeout = 5 * time.Second

// DriftGuard wraps a Collaborator and tracks, per peer, how long it has
// been since the collaborator last produced an output. Fuse itself returns
// either the fused output or the raw measurement, so callers forward its
// result directly (§4.2, "measurement merging").
type DriftGuard struct {
	inner   Collaborator
	timeout time.Duration

	mu        sync.Mutex
	lastSeen  map[rangingapi.PeerID]time.Time
	reported  map[rangingapi.PeerID]bool
	onDrift   func(peer rangingapi.PeerID)
}

// NewDriftGuard wraps inner with the given drift timeout (zero uses
// DefaultDriftTimeout). onDrift, if non-nil, is invoked the moment a peer
// first crosses the drift threshold, intended for the fusion_drift_total
// metric counter (§2.2).
func NewDriftGuard(inner Collaborator, timeout time.Duration, onDrift func(peer rangingapi.PeerID)) *DriftGuard {
	if timeout <= 0 {
		timeout = DefaultDriftTimeout
	}
	return &DriftGuard{
		inner:    inner,
		timeout:  timeout,
		lastSeen: make(map[rangingapi.PeerID]time.Time),
		reported: make(map[rangingapi.PeerID]bool),
		onDrift:  onDrift,
	}
}

// Fuse returns the wrapped collaborator's fused output whenever it produces
// one, and the raw measurement unchanged whenever it does not, whether or
// not the drift threshold has been crossed. onDrift fires once per drift
// episode, on the first miss that lands more than the timeout after the
// peer's last fused output.
func (g *DriftGuard) Fuse(_ context.Context, peer rangingapi.PeerID, raw rangingapi.Measurement, now time.Time) rangingapi.Measurement {
	fused, ok := g.inner.Fuse(peer, raw)

	g.mu.Lock()
	defer g.mu.Unlock()

	if ok {
		g.lastSeen[peer] = now
		g.reported[peer] = false
		return fused
	}

	last, seen := g.lastSeen[peer]
	if !seen {
		g.lastSeen[peer] = now
		return raw
	}
	if now.Sub(last) > g.timeout {
		if !g.reported[peer] {
			g.reported[peer] = true
			if g.onDrift != nil {
				g.onDrift(peer)
			}
		}
	}
	return raw
}

// Forget drops drift tracking for a peer, called when the peer's adapters
// stop.
func (g *DriftGuard) Forget(peer rangingapi.PeerID) {
	g.mu.Lock()
	delete(g.lastSeen, peer)
	delete(g.reported, peer)
	g.mu.Unlock()
}
