package engine

import "github.com/sebas/rangingcore/pkg/rangingapi"

// selectUWB intersects channels, preamble indices, config ids and slot
// durations across every peer, picks the numerically lowest surviving
// element of each (§4.3 step 2, UWB), and derives a deterministic session
// id from the local address and the chosen channel/preamble.
func (s *Selector) selectUWB(peers []rangingapi.CapabilityDescriptor, pref rangingapi.PeerPreference) (Selection, error) {
	channels := intIntersectAll(s.local.UWB.Channels, peers, func(c rangingapi.CapabilityDescriptor) []int { return c.UWB.Channels })
	preambles := intIntersectAll(s.local.UWB.PreambleIndices, peers, func(c rangingapi.CapabilityDescriptor) []int { return c.UWB.PreambleIndices })
	configIDs := intIntersectAll(s.local.UWB.ConfigIDs, peers, func(c rangingapi.CapabilityDescriptor) []int { return c.UWB.ConfigIDs })
	slots := intIntersectAll(s.local.UWB.SlotDurationsMS, peers, func(c rangingapi.CapabilityDescriptor) []int { return c.UWB.SlotDurationsMS })

	if len(channels) == 0 || len(preambles) == 0 || len(configIDs) == 0 || len(slots) == 0 {
		return Selection{}, rangingapi.ErrPeerCapabilitiesMismatch
	}

	channel := minInt(channels)
	preamble := minInt(preambles)
	configID := minInt(configIDs)
	slot := minInt(slots)
	if err := rangingapi.ValidateSlotDuration(slot); err != nil {
		return Selection{}, err
	}

	rate := highestRateWithinRange(pref.RequestedInterval)
	sessionID := rangingapi.DeriveUWBSessionID(s.local.UWB.LocalAddress, channel, preamble)

	peerID := pref.PeerID
	local := rangingapi.UWBParams{
		PeerID:     peerID,
		Channel:    channel,
		Preamble:   preamble,
		ConfigID:   configID,
		SlotMS:     slot,
		UpdateRate: rate,
		SessionID:  sessionID,
		RequestAoA: pref.RequestAoA,
	}
	peerParams := local // identical bundle sent to the peer over OOB; UWB has no asymmetric fields

	return Selection{
		Technology:  rangingapi.TechnologyUWB,
		LocalParams: rangingapi.TechnologyParams{Technology: rangingapi.TechnologyUWB, UWB: &local},
		PeerParams:  rangingapi.TechnologyParams{Technology: rangingapi.TechnologyUWB, UWB: &peerParams},
	}, nil
}

// highestRateWithinRange picks the fastest (highest) update rate tier whose
// nominal interval still lies within the caller's requested range (§4.3
// step 2). If the caller supplied no range (zero value), the fastest tier
// is used.
func highestRateWithinRange(r rangingapi.IntervalRange) rangingapi.UpdateRate {
	tiers := []rangingapi.UpdateRate{
		rangingapi.UpdateRateFrequent,
		rangingapi.UpdateRateFast,
		rangingapi.UpdateRateNormal,
		rangingapi.UpdateRateInfrequent,
	}
	zero := rangingapi.IntervalRange{}
	for _, t := range tiers {
		if r == zero || r.Contains(t.NominalIntervalMS()) {
			return t
		}
	}
	return rangingapi.UpdateRateInfrequent
}

func intIntersectAll(local []int, peers []rangingapi.CapabilityDescriptor, get func(rangingapi.CapabilityDescriptor) []int) []int {
	set := toIntSet(local)
	for _, p := range peers {
		set = intersectIntSet(set, toIntSet(get(p)))
		if len(set) == 0 {
			return nil
		}
	}
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}

func toIntSet(vs []int) map[int]bool {
	m := make(map[int]bool, len(vs))
	for _, v := range vs {
		m[v] = true
	}
	return m
}

func intersectIntSet(a, b map[int]bool) map[int]bool {
	out := make(map[int]bool)
	for v := range a {
		if b[v] {
			out[v] = true
		}
	}
	return out
}

func minInt(vs []int) int {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
