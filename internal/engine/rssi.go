package engine

import "github.com/sebas/rangingcore/pkg/rangingapi"

// selectRSSI has no negotiable parameters beyond the peer's Bluetooth
// address (§4.3 step 2, RSSI); once the capability gate has confirmed
// support, the only rejection is a first peer descriptor with no address.
func (s *Selector) selectRSSI(peers []rangingapi.CapabilityDescriptor, pref rangingapi.PeerPreference) (Selection, error) {
	addr := peers[0].RSSI.BluetoothAddress
	if addr == "" {
		return Selection{}, rangingapi.ErrPeerCapabilitiesMismatch
	}
	for _, p := range peers[1:] {
		if p.RSSI.BluetoothAddress != addr {
			// A multi-peer call still succeeds; both bundles carry the
			// first peer descriptor's address.
			break
		}
	}

	peerID := pref.PeerID
	local := rangingapi.RSSIParams{PeerID: peerID, BluetoothAddress: peers[0].RSSI.BluetoothAddress}
	peerParams := local

	return Selection{
		Technology:  rangingapi.TechnologyRSSI,
		LocalParams: rangingapi.TechnologyParams{Technology: rangingapi.TechnologyRSSI, RSSI: &local},
		PeerParams:  rangingapi.TechnologyParams{Technology: rangingapi.TechnologyRSSI, RSSI: &peerParams},
	}, nil
}
