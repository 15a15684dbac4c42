package session

import (
	"testing"

	"github.com/sebas/rangingcore/pkg/rangingapi"
)

func TestRoundTrackerCompletesOnceEveryActivePeerReports(t *testing.T) {
	t.Parallel()
	r := newRoundTracker()
	a, b := rangingapi.NewPeerID(), rangingapi.NewPeerID()
	r.addPeer(a)
	r.addPeer(b)

	if completed, _ := r.record(a); completed {
		t.Fatal("round should not complete with b still pending")
	}
	completed, count := r.record(b)
	if !completed {
		t.Fatal("round should complete once every active peer has reported")
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestRoundTrackerStartsANewRoundAfterCompletion(t *testing.T) {
	t.Parallel()
	r := newRoundTracker()
	a := rangingapi.NewPeerID()
	r.addPeer(a)

	completed, count := r.record(a)
	if !completed || count != 1 {
		t.Fatalf("first round: completed=%v count=%d, want true 1", completed, count)
	}
	// The tracker should have reset "a" back into pending for round two.
	if completed, _ := r.record(a); !completed {
		t.Fatal("second round should complete on the same single active peer")
	}
}

func TestRoundTrackerIgnoresMeasurementsFromInactivePeers(t *testing.T) {
	t.Parallel()
	r := newRoundTracker()
	stranger := rangingapi.NewPeerID()
	completed, count := r.record(stranger)
	if completed {
		t.Error("a peer that was never added should never complete a round")
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestRoundTrackerRemovingLastPendingPeerCompletesTheRound(t *testing.T) {
	t.Parallel()
	r := newRoundTracker()
	a, b := rangingapi.NewPeerID(), rangingapi.NewPeerID()
	r.addPeer(a)
	r.addPeer(b)

	if completed, _ := r.record(a); completed {
		t.Fatal("round should not complete with b still pending")
	}
	completed, count := r.removePeer(b)
	if !completed {
		t.Fatal("removing the only remaining pending peer should complete the round")
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestRoundTrackerMultiPeerMultiRound(t *testing.T) {
	t.Parallel()
	r := newRoundTracker()
	peers := []rangingapi.PeerID{rangingapi.NewPeerID(), rangingapi.NewPeerID(), rangingapi.NewPeerID()}
	for _, p := range peers {
		r.addPeer(p)
	}

	for round := 1; round <= 3; round++ {
		var lastCompleted bool
		var lastCount int
		for _, p := range peers {
			lastCompleted, lastCount = r.record(p)
		}
		if !lastCompleted {
			t.Fatalf("round %d: expected the last report to complete the round", round)
		}
		if lastCount != round {
			t.Errorf("round %d: count = %d, want %d", round, lastCount, round)
		}
	}
}
