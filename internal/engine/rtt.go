package engine

import "github.com/sebas/rangingcore/pkg/rangingapi"

// selectRTT picks a service name and match filter shared by every peer, and
// verifies bandwidth/Rx-chain minima (§4.3 step 2, RTT).
func (s *Selector) selectRTT(peers []rangingapi.CapabilityDescriptor, pref rangingapi.PeerPreference) (Selection, error) {
	service, ok := firstShared(s.local.RTT.ServiceNames, peers, func(c rangingapi.CapabilityDescriptor) []string { return c.RTT.ServiceNames })
	if !ok {
		return Selection{}, rangingapi.ErrPeerCapabilitiesMismatch
	}
	filter, ok := firstShared(s.local.RTT.MatchFilters, peers, func(c rangingapi.CapabilityDescriptor) []string { return c.RTT.MatchFilters })
	if !ok {
		return Selection{}, rangingapi.ErrPeerCapabilitiesMismatch
	}

	bandwidth := s.local.RTT.MaxBandwidthMHz
	rxChains := s.local.RTT.RxChains
	for _, p := range peers {
		if p.RTT.MaxBandwidthMHz < bandwidth {
			bandwidth = p.RTT.MaxBandwidthMHz
		}
		if p.RTT.RxChains < rxChains {
			rxChains = p.RTT.RxChains
		}
	}
	if bandwidth <= 0 || rxChains <= 0 {
		return Selection{}, rangingapi.ErrPeerCapabilitiesMismatch
	}

	peerID := pref.PeerID
	local := rangingapi.RTTParams{
		PeerID:       peerID,
		ServiceName:  service,
		MatchFilter:  filter,
		BandwidthMHz: bandwidth,
		RxChains:     rxChains,
	}
	peerParams := local

	return Selection{
		Technology:  rangingapi.TechnologyRTT,
		LocalParams: rangingapi.TechnologyParams{Technology: rangingapi.TechnologyRTT, RTT: &local},
		PeerParams:  rangingapi.TechnologyParams{Technology: rangingapi.TechnologyRTT, RTT: &peerParams},
	}, nil
}

func firstShared(local []string, peers []rangingapi.CapabilityDescriptor, get func(rangingapi.CapabilityDescriptor) []string) (string, bool) {
	for _, candidate := range local {
		shared := true
		for _, p := range peers {
			if !containsString(get(p), candidate) {
				shared = false
				break
			}
		}
		if shared {
			return candidate, true
		}
	}
	return "", false
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
