package engine

import "github.com/sebas/rangingcore/pkg/rangingapi"

// csNominalIntervalMS is the fixed table from §4.3 step 2 (CS): FREQUENT ->
// 100ms, NORMAL -> 200ms, INFREQUENT -> 5s. FAST has no CS-specific tier in
// the spec's table, so it collapses into NORMAL for this technology.
func csNominalIntervalMS(r rangingapi.UpdateRate) int {
	switch r {
	case rangingapi.UpdateRateFrequent:
		return 100
	case rangingapi.UpdateRateInfrequent:
		return 5000
	default:
		return 200
	}
}

func (s *Selector) selectCS(peers []rangingapi.CapabilityDescriptor, pref rangingapi.PeerPreference) (Selection, error) {
	secure := pref.RequestSecureCS && localSupportsCS(s.local, rangingapi.CSSecuritySecure) && allPeersSupportCS(peers, rangingapi.CSSecuritySecure)
	basic := localSupportsCS(s.local, rangingapi.CSSecurityBasic) && allPeersSupportCS(peers, rangingapi.CSSecurityBasic)

	var level rangingapi.CSSecurityLevel
	switch {
	case secure:
		level = rangingapi.CSSecuritySecure
	case basic:
		level = rangingapi.CSSecurityBasic
	default:
		return Selection{}, rangingapi.ErrPeerCapabilitiesMismatch
	}

	rate := highestCSRateWithinRange(pref.RequestedInterval)

	peerID := pref.PeerID
	local := rangingapi.CSParams{PeerID: peerID, Security: level, UpdateRate: rate}
	peerParams := local

	return Selection{
		Technology:  rangingapi.TechnologyCS,
		LocalParams: rangingapi.TechnologyParams{Technology: rangingapi.TechnologyCS, CS: &local},
		PeerParams:  rangingapi.TechnologyParams{Technology: rangingapi.TechnologyCS, CS: &peerParams},
	}, nil
}

func highestCSRateWithinRange(r rangingapi.IntervalRange) rangingapi.UpdateRate {
	tiers := []rangingapi.UpdateRate{rangingapi.UpdateRateFrequent, rangingapi.UpdateRateNormal, rangingapi.UpdateRateInfrequent}
	zero := rangingapi.IntervalRange{}
	for _, t := range tiers {
		if r == zero || r.Contains(csNominalIntervalMS(t)) {
			return t
		}
	}
	return rangingapi.UpdateRateInfrequent
}

func localSupportsCS(c rangingapi.CapabilityDescriptor, level rangingapi.CSSecurityLevel) bool {
	for _, l := range c.CS.SecurityLevels {
		if l == level {
			return true
		}
	}
	return false
}

func allPeersSupportCS(peers []rangingapi.CapabilityDescriptor, level rangingapi.CSSecurityLevel) bool {
	for _, p := range peers {
		if !localSupportsCS(p, level) {
			return false
		}
	}
	return true
}
