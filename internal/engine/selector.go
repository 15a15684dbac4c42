// Package engine implements the ranging configuration selector (§4.3): a
// pure function from (caller preference, local capabilities, peer
// capabilities) to a deterministic set of (technology, local params, peer
// params) tuples, or a typed rejection. It reads no clock, no randomness,
// and performs no I/O, which is what makes its golden-output tests (§8)
// reproducible.
package engine

import (
	"fmt"
	"sort"

	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// Selection is one technology this selector chose for a peer, together with
// the local and peer-bound parameter bundles.
type Selection struct {
	Technology  rangingapi.Technology
	LocalParams rangingapi.TechnologyParams
	PeerParams  rangingapi.TechnologyParams
}

// Selector runs the algorithm in §4.3 against a fixed local capability
// descriptor. It holds no mutable state; constructed once per process (or
// once per test) and safe for concurrent use by many negotiators.
type Selector struct {
	local rangingapi.CapabilityDescriptor
}

// New constructs a Selector bound to the local device's capability
// descriptor. This replaces the source's static per-class singleton
// capability adapters (§9 design note) with an explicit value passed by
// reference.
func New(local rangingapi.CapabilityDescriptor) *Selector {
	return &Selector{local: local}
}

// Select runs the capability gate and per-technology intersection for one
// peer. Peers is plural in the general protocol (a session may negotiate
// against more than one peer's advertised capabilities at once via
// multi-cast discovery) but the common case — and the one exercised by the
// OOB negotiator — is a single peer descriptor; Select accepts a slice to
// keep the gate's "at least one peer supports it" language faithful to §4.3
// step 1b without forcing every caller to wrap a single descriptor.
func (s *Selector) Select(peers []rangingapi.CapabilityDescriptor, pref rangingapi.PeerPreference) ([]Selection, error) {
	if len(peers) == 0 {
		return nil, fmt.Errorf("%w: no peer capabilities supplied", rangingapi.ErrPeerCapabilitiesMismatch)
	}

	var out []Selection
	var anyLocalSupport, anyIntervalMatch bool

	for _, tech := range rangingapi.AllTechnologies {
		if pref.ExcludedTechnologies[tech] {
			continue
		}
		if !s.local.Supported[tech] {
			continue
		}
		anyLocalSupport = true

		if !allPeersSupport(peers, tech) {
			continue
		}

		interval := s.technologyInterval(tech)
		if pref.RequestedInterval != (rangingapi.IntervalRange{}) && !intervalsIntersect(pref.RequestedInterval, interval) {
			continue
		}
		anyIntervalMatch = true

		sel, err := s.selectTechnology(tech, peers, pref)
		if err != nil {
			continue // this technology did not survive its own intersection; try the next
		}
		out = append(out, sel)
	}

	if len(out) == 0 {
		switch {
		case !anyLocalSupport:
			return nil, rangingapi.ErrUnsupported
		case !anyIntervalMatch:
			return nil, rangingapi.ErrIncompatibleInterval
		default:
			return nil, rangingapi.ErrPeerCapabilitiesMismatch
		}
	}

	// §4.3 step 3: UWB > CS > RTT > RSSI, already the iteration order above,
	// but re-sort defensively so the output is deterministic regardless of
	// how selectTechnology might someday be reordered.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Technology < out[j].Technology })
	return out, nil
}

func allPeersSupport(peers []rangingapi.CapabilityDescriptor, t rangingapi.Technology) bool {
	for _, p := range peers {
		if !p.Supported[t] {
			return false
		}
	}
	return true
}

func intervalsIntersect(a, b rangingapi.IntervalRange) bool {
	return a.MinMS <= b.MaxMS && b.MinMS <= a.MaxMS
}

func (s *Selector) technologyInterval(t rangingapi.Technology) rangingapi.IntervalRange {
	switch t {
	case rangingapi.TechnologyUWB:
		return s.local.UWB.IntervalRange
	case rangingapi.TechnologyCS:
		return s.local.CS.IntervalRange
	case rangingapi.TechnologyRTT:
		return s.local.RTT.IntervalRange
	case rangingapi.TechnologyRSSI:
		return s.local.RSSI.IntervalRange
	default:
		return rangingapi.IntervalRange{}
	}
}

func (s *Selector) selectTechnology(t rangingapi.Technology, peers []rangingapi.CapabilityDescriptor, pref rangingapi.PeerPreference) (Selection, error) {
	switch t {
	case rangingapi.TechnologyUWB:
		return s.selectUWB(peers, pref)
	case rangingapi.TechnologyCS:
		return s.selectCS(peers, pref)
	case rangingapi.TechnologyRTT:
		return s.selectRTT(peers, pref)
	case rangingapi.TechnologyRSSI:
		return s.selectRSSI(peers, pref)
	default:
		return Selection{}, rangingapi.ErrUnsupported
	}
}
