package engine_test

import (
	"errors"
	"testing"

	"github.com/sebas/rangingcore/internal/engine"
	"github.com/sebas/rangingcore/pkg/rangingapi"
)

func fullCapabilities() rangingapi.CapabilityDescriptor {
	return rangingapi.CapabilityDescriptor{
		Supported: map[rangingapi.Technology]bool{
			rangingapi.TechnologyUWB:  true,
			rangingapi.TechnologyCS:   true,
			rangingapi.TechnologyRTT:  true,
			rangingapi.TechnologyRSSI: true,
		},
		UWB: rangingapi.UWBCapability{
			Channels:        []int{9, 5},
			PreambleIndices: []int{10, 9},
			ConfigIDs:       []int{2, 1},
			SlotDurationsMS: []int{2, 1},
			IntervalRange:   rangingapi.IntervalRange{MinMS: 100, MaxMS: 5000},
			LocalAddress:    0xA5A5,
		},
		CS: rangingapi.CSCapability{
			SecurityLevels: []rangingapi.CSSecurityLevel{rangingapi.CSSecurityBasic, rangingapi.CSSecuritySecure},
			IntervalRange:  rangingapi.IntervalRange{MinMS: 100, MaxMS: 5000},
		},
		RTT: rangingapi.RTTCapability{
			ServiceNames:    []string{"com.example.ranging"},
			MatchFilters:    []string{"filter-a"},
			MaxBandwidthMHz: 80,
			RxChains:        2,
			IntervalRange:   rangingapi.IntervalRange{MinMS: 100, MaxMS: 5000},
		},
		RSSI: rangingapi.RSSICapability{
			BluetoothAddress: "AA:BB:CC:DD:EE:FF",
			IntervalRange:    rangingapi.IntervalRange{MinMS: 100, MaxMS: 5000},
		},
	}
}

func TestSelectorPicksHighestPriorityTechnologyFirst(t *testing.T) {
	t.Parallel()
	local := fullCapabilities()
	sel := engine.New(local)

	out, err := sel.Select([]rangingapi.CapabilityDescriptor{fullCapabilities()}, rangingapi.PeerPreference{PeerID: rangingapi.NewPeerID()})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("Select returned no selections")
	}
	if out[0].Technology != rangingapi.TechnologyUWB {
		t.Errorf("first selection = %v, want UWB (§4.3 priority order)", out[0].Technology)
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].Technology > out[i].Technology {
			t.Errorf("selections not in ascending priority order: %v before %v", out[i-1].Technology, out[i].Technology)
		}
	}
}

func TestSelectorIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	t.Parallel()
	sel := engine.New(fullCapabilities())
	pref := rangingapi.PeerPreference{PeerID: rangingapi.NewPeerID()}
	peers := []rangingapi.CapabilityDescriptor{fullCapabilities()}

	first, err := sel.Select(peers, pref)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := sel.Select(peers, pref)
		if err != nil {
			t.Fatalf("Select iteration %d: %v", i, err)
		}
		if len(got) != len(first) {
			t.Fatalf("iteration %d: len(got) = %d, want %d", i, len(got), len(first))
		}
		for j := range got {
			if got[j].Technology != first[j].Technology {
				t.Errorf("iteration %d: selection %d technology = %v, want %v (non-deterministic)", i, j, got[j].Technology, first[j].Technology)
			}
		}
	}
}

func TestSelectorUWBPicksLowestIntersectingValues(t *testing.T) {
	t.Parallel()
	local := fullCapabilities()
	peer := fullCapabilities()
	peer.UWB.Channels = []int{9, 7}
	peer.UWB.PreambleIndices = []int{10}
	peer.UWB.ConfigIDs = []int{1, 2}
	peer.UWB.SlotDurationsMS = []int{2}

	sel := engine.New(local)
	out, err := sel.Select([]rangingapi.CapabilityDescriptor{peer}, rangingapi.PeerPreference{PeerID: rangingapi.NewPeerID()})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	var uwb *rangingapi.UWBParams
	for _, s := range out {
		if s.Technology == rangingapi.TechnologyUWB {
			uwb = s.LocalParams.UWB
		}
	}
	if uwb == nil {
		t.Fatal("no UWB selection produced")
	}
	if uwb.Channel != 9 {
		t.Errorf("Channel = %d, want 9 (only channel present in both local {9,5} and peer {9,7})", uwb.Channel)
	}
	if uwb.Preamble != 10 {
		t.Errorf("Preamble = %d, want 10", uwb.Preamble)
	}
	if uwb.ConfigID != 1 {
		t.Errorf("ConfigID = %d, want the lowest intersecting value 1", uwb.ConfigID)
	}
	if uwb.SlotMS != 2 {
		t.Errorf("SlotMS = %d, want 2", uwb.SlotMS)
	}
}

func TestSelectorUWBSessionIDIsDerivedDeterministically(t *testing.T) {
	t.Parallel()
	sel := engine.New(fullCapabilities())
	pref := rangingapi.PeerPreference{PeerID: rangingapi.NewPeerID()}
	peers := []rangingapi.CapabilityDescriptor{fullCapabilities()}

	a, err := sel.Select(peers, pref)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	b, err := sel.Select(peers, pref)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	var idA, idB uint32
	for _, s := range a {
		if s.Technology == rangingapi.TechnologyUWB {
			idA = s.LocalParams.UWB.SessionID
		}
	}
	for _, s := range b {
		if s.Technology == rangingapi.TechnologyUWB {
			idB = s.LocalParams.UWB.SessionID
		}
	}
	if idA == 0 || idA != idB {
		t.Errorf("SessionID = %d then %d, want equal nonzero values", idA, idB)
	}
}

func TestSelectorCSPrefersSecureWhenRequestedAndSupported(t *testing.T) {
	t.Parallel()
	sel := engine.New(fullCapabilities())
	out, err := sel.Select([]rangingapi.CapabilityDescriptor{fullCapabilities()}, rangingapi.PeerPreference{
		PeerID:          rangingapi.NewPeerID(),
		RequestSecureCS: true,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	var cs *rangingapi.CSParams
	for _, s := range out {
		if s.Technology == rangingapi.TechnologyCS {
			cs = s.LocalParams.CS
		}
	}
	if cs == nil {
		t.Fatal("no CS selection produced")
	}
	if cs.Security != rangingapi.CSSecuritySecure {
		t.Errorf("Security = %v, want SECURE", cs.Security)
	}
}

func TestSelectorCSFallsBackToBasicWhenPeerLacksSecure(t *testing.T) {
	t.Parallel()
	peer := fullCapabilities()
	peer.CS.SecurityLevels = []rangingapi.CSSecurityLevel{rangingapi.CSSecurityBasic}

	sel := engine.New(fullCapabilities())
	out, err := sel.Select([]rangingapi.CapabilityDescriptor{peer}, rangingapi.PeerPreference{
		PeerID:          rangingapi.NewPeerID(),
		RequestSecureCS: true,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	var cs *rangingapi.CSParams
	for _, s := range out {
		if s.Technology == rangingapi.TechnologyCS {
			cs = s.LocalParams.CS
		}
	}
	if cs == nil {
		t.Fatal("no CS selection produced")
	}
	if cs.Security != rangingapi.CSSecurityBasic {
		t.Errorf("Security = %v, want BASIC (peer does not support SECURE)", cs.Security)
	}
}

func TestSelectorExcludedTechnologiesAreSkipped(t *testing.T) {
	t.Parallel()
	sel := engine.New(fullCapabilities())
	out, err := sel.Select([]rangingapi.CapabilityDescriptor{fullCapabilities()}, rangingapi.PeerPreference{
		PeerID:               rangingapi.NewPeerID(),
		ExcludedTechnologies: map[rangingapi.Technology]bool{rangingapi.TechnologyUWB: true, rangingapi.TechnologyCS: true},
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	for _, s := range out {
		if s.Technology == rangingapi.TechnologyUWB || s.Technology == rangingapi.TechnologyCS {
			t.Errorf("selection included excluded technology %v", s.Technology)
		}
	}
	if len(out) == 0 {
		t.Fatal("RTT/RSSI should still have been selected")
	}
}

func TestSelectorRejectsWhenLocalDoesNotSupportAnyRequestedTechnology(t *testing.T) {
	t.Parallel()
	local := rangingapi.CapabilityDescriptor{Supported: map[rangingapi.Technology]bool{}}
	sel := engine.New(local)
	_, err := sel.Select([]rangingapi.CapabilityDescriptor{fullCapabilities()}, rangingapi.PeerPreference{PeerID: rangingapi.NewPeerID()})
	if !errors.Is(err, rangingapi.ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}

func TestSelectorRejectsIncompatibleInterval(t *testing.T) {
	t.Parallel()
	sel := engine.New(fullCapabilities())
	_, err := sel.Select([]rangingapi.CapabilityDescriptor{fullCapabilities()}, rangingapi.PeerPreference{
		PeerID:            rangingapi.NewPeerID(),
		RequestedInterval: rangingapi.IntervalRange{MinMS: 10000, MaxMS: 20000},
	})
	if !errors.Is(err, rangingapi.ErrIncompatibleInterval) {
		t.Fatalf("err = %v, want ErrIncompatibleInterval", err)
	}
}

func TestSelectorRejectsWhenPeerCapabilitiesDoNotIntersect(t *testing.T) {
	t.Parallel()
	peer := rangingapi.CapabilityDescriptor{Supported: map[rangingapi.Technology]bool{
		rangingapi.TechnologyUWB:  true,
		rangingapi.TechnologyCS:   true,
		rangingapi.TechnologyRTT:  true,
		rangingapi.TechnologyRSSI: true,
	}}
	peer.UWB.Channels = []int{200}
	peer.UWB.PreambleIndices = []int{200}
	peer.UWB.ConfigIDs = []int{200}
	peer.UWB.SlotDurationsMS = []int{2}
	peer.UWB.IntervalRange = rangingapi.IntervalRange{MinMS: 100, MaxMS: 5000}
	peer.CS.IntervalRange = rangingapi.IntervalRange{MinMS: 100, MaxMS: 5000}
	peer.RTT.IntervalRange = rangingapi.IntervalRange{MinMS: 100, MaxMS: 5000}
	peer.RSSI.IntervalRange = rangingapi.IntervalRange{MinMS: 100, MaxMS: 5000}

	sel := engine.New(fullCapabilities())
	_, err := sel.Select([]rangingapi.CapabilityDescriptor{peer}, rangingapi.PeerPreference{PeerID: rangingapi.NewPeerID()})
	if !errors.Is(err, rangingapi.ErrPeerCapabilitiesMismatch) {
		t.Fatalf("err = %v, want ErrPeerCapabilitiesMismatch", err)
	}
}

func TestSelectorRejectsEmptyPeerList(t *testing.T) {
	t.Parallel()
	sel := engine.New(fullCapabilities())
	_, err := sel.Select(nil, rangingapi.PeerPreference{PeerID: rangingapi.NewPeerID()})
	if !errors.Is(err, rangingapi.ErrPeerCapabilitiesMismatch) {
		t.Fatalf("err = %v, want ErrPeerCapabilitiesMismatch", err)
	}
}

func TestSelectorRTTPicksSharedServiceAndMinimumBandwidth(t *testing.T) {
	t.Parallel()
	local := fullCapabilities()
	local.RTT.MaxBandwidthMHz = 160
	local.RTT.RxChains = 4
	peer := fullCapabilities()
	peer.RTT.MaxBandwidthMHz = 80
	peer.RTT.RxChains = 2

	sel := engine.New(local)
	out, err := sel.Select([]rangingapi.CapabilityDescriptor{peer}, rangingapi.PeerPreference{PeerID: rangingapi.NewPeerID()})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	var rtt *rangingapi.RTTParams
	for _, s := range out {
		if s.Technology == rangingapi.TechnologyRTT {
			rtt = s.LocalParams.RTT
		}
	}
	if rtt == nil {
		t.Fatal("no RTT selection produced")
	}
	if rtt.BandwidthMHz != 80 {
		t.Errorf("BandwidthMHz = %d, want the minimum of the two sides, 80", rtt.BandwidthMHz)
	}
	if rtt.RxChains != 2 {
		t.Errorf("RxChains = %d, want 2", rtt.RxChains)
	}
	if rtt.ServiceName != "com.example.ranging" {
		t.Errorf("ServiceName = %q, want the shared service name", rtt.ServiceName)
	}
}

func TestSelectorRSSIUsesPeerAddress(t *testing.T) {
	t.Parallel()
	sel := engine.New(fullCapabilities())
	peer := fullCapabilities()
	peer.RSSI.BluetoothAddress = "11:22:33:44:55:66"

	out, err := sel.Select([]rangingapi.CapabilityDescriptor{peer}, rangingapi.PeerPreference{PeerID: rangingapi.NewPeerID()})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	var rssi *rangingapi.RSSIParams
	for _, s := range out {
		if s.Technology == rangingapi.TechnologyRSSI {
			rssi = s.LocalParams.RSSI
		}
	}
	if rssi == nil {
		t.Fatal("no RSSI selection produced")
	}
	if rssi.BluetoothAddress != "11:22:33:44:55:66" {
		t.Errorf("BluetoothAddress = %q, want the peer's advertised address", rssi.BluetoothAddress)
	}
}

func TestCapabilityProviderNewSelectorBindsCurrentSnapshot(t *testing.T) {
	t.Parallel()
	p := &engine.CapabilityProvider{Local: fullCapabilities()}
	sel := p.NewSelector()
	if !sel.Local().Equal(fullCapabilities()) {
		t.Error("Selector built from CapabilityProvider should be bound to the provider's Local snapshot")
	}
}
