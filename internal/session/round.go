package session

import (
	"sync"

	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// roundTracker implements the §4.2 "measurement merging" round count: one
// round is one full polling cycle across all currently-ranging peers (the
// §9 design-note resolution of the source's ambiguous round definition). A
// round completes once every peer that was ranging when the round began
// has delivered at least one measurement.
type roundTracker struct {
	mu      sync.Mutex
	pending map[rangingapi.PeerID]bool
	active  map[rangingapi.PeerID]bool
	rounds  int
}

func newRoundTracker() *roundTracker {
	return &roundTracker{
		pending: make(map[rangingapi.PeerID]bool),
		active:  make(map[rangingapi.PeerID]bool),
	}
}

// addPeer registers a peer as ranging, joining the round in progress.
func (r *roundTracker) addPeer(peer rangingapi.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[peer] = true
	r.pending[peer] = true
}

// removePeer drops a peer that stopped ranging; if it was the last pending
// member, this can itself complete the round.
func (r *roundTracker) removePeer(peer rangingapi.PeerID) (completed bool, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, peer)
	delete(r.pending, peer)
	return r.checkCompleteLocked()
}

// record marks peer as having delivered a measurement this round; returns
// whether that delivery completed the round, and the new round count.
func (r *roundTracker) record(peer rangingapi.PeerID) (completed bool, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active[peer] {
		return false, r.rounds
	}
	delete(r.pending, peer)
	return r.checkCompleteLocked()
}

func (r *roundTracker) checkCompleteLocked() (bool, int) {
	if len(r.active) == 0 || len(r.pending) > 0 {
		return false, r.rounds
	}
	r.rounds++
	for peer := range r.active {
		r.pending[peer] = true
	}
	return true, r.rounds
}
