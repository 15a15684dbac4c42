package rangingapi

// UpdateRate is the ranging cadence tier used by UWB and CS (§4.3 step 2).
// Ordered from slowest to fastest so "highest" in the spec's selection rule
// means the numerically largest value whose nominal interval still fits the
// caller's requested range.
type UpdateRate uint8

const (
	UpdateRateInfrequent UpdateRate = iota
	UpdateRateNormal
	UpdateRateFast
	UpdateRateFrequent
)

func (r UpdateRate) String() string {
	switch r {
	case UpdateRateInfrequent:
		return "INFREQUENT"
	case UpdateRateNormal:
		return "NORMAL"
	case UpdateRateFast:
		return "FAST"
	case UpdateRateFrequent:
		return "FREQUENT"
	default:
		return "UNKNOWN"
	}
}

// NominalIntervalMS is the nominal polling interval for a rate tier, in
// milliseconds. UWB keys its update-rate selection off this table (§4.3
// step 2); CS uses its own three-tier table, which has no FAST entry.
func (r UpdateRate) NominalIntervalMS() int {
	switch r {
	case UpdateRateFrequent:
		return 100
	case UpdateRateFast:
		return 150
	case UpdateRateNormal:
		return 200
	case UpdateRateInfrequent:
		return 5000
	default:
		return 5000
	}
}

// IntervalRange is the caller's accepted ranging-interval window, in
// milliseconds, used by the capability gate (§4.3 step 1c).
type IntervalRange struct {
	MinMS int
	MaxMS int
}

// Contains reports whether ms falls within [MinMS, MaxMS].
func (r IntervalRange) Contains(ms int) bool {
	return ms >= r.MinMS && ms <= r.MaxMS
}

// CSSecurityLevel is the Bluetooth CS security tier (§4.3 step 2, CS).
type CSSecurityLevel uint8

const (
	CSSecurityBasic CSSecurityLevel = iota
	CSSecuritySecure
)

// UWBCapability is the UWB-specific slice of a capability descriptor (§3).
type UWBCapability struct {
	Channels        []int
	PreambleIndices []int
	ConfigIDs       []int
	SlotDurationsMS []int // constrained to {1, 2} per §8
	IntervalRange   IntervalRange
	LocalAddress    uint64 // 16 or 64-bit UWB MAC address, opaque to the core
}

// CSCapability is the Bluetooth CS slice of a capability descriptor.
type CSCapability struct {
	SecurityLevels []CSSecurityLevel
	IntervalRange  IntervalRange
}

// RTTCapability is the Wi-Fi NAN RTT slice of a capability descriptor.
type RTTCapability struct {
	ServiceNames    []string
	MatchFilters    []string
	MaxBandwidthMHz int
	RxChains        int
	IntervalRange   IntervalRange
}

// RSSICapability is the Bluetooth RSSI slice; RSSI has no negotiable
// parameters beyond the peer's Bluetooth address (§4.3 step 2, RSSI).
type RSSICapability struct {
	BluetoothAddress string
	IntervalRange    IntervalRange
}

// CapabilityDescriptor is the structural-equality capability set for one
// device (local or peer), keyed by technology (§3).
type CapabilityDescriptor struct {
	Supported map[Technology]bool
	UWB       UWBCapability
	CS        CSCapability
	RTT       RTTCapability
	RSSI      RSSICapability
}

// Equal performs the structural-equality comparison mandated for capability
// descriptors (§3). Order-insensitive on all slice fields.
func (d CapabilityDescriptor) Equal(other CapabilityDescriptor) bool {
	for _, t := range AllTechnologies {
		if d.Supported[t] != other.Supported[t] {
			return false
		}
	}
	return intsEqualSet(d.UWB.Channels, other.UWB.Channels) &&
		intsEqualSet(d.UWB.PreambleIndices, other.UWB.PreambleIndices) &&
		intsEqualSet(d.UWB.ConfigIDs, other.UWB.ConfigIDs) &&
		intsEqualSet(d.UWB.SlotDurationsMS, other.UWB.SlotDurationsMS) &&
		d.UWB.IntervalRange == other.UWB.IntervalRange &&
		csSecurityEqualSet(d.CS.SecurityLevels, other.CS.SecurityLevels) &&
		d.CS.IntervalRange == other.CS.IntervalRange &&
		stringsEqualSet(d.RTT.ServiceNames, other.RTT.ServiceNames) &&
		stringsEqualSet(d.RTT.MatchFilters, other.RTT.MatchFilters) &&
		d.RTT.MaxBandwidthMHz == other.RTT.MaxBandwidthMHz &&
		d.RTT.RxChains == other.RTT.RxChains &&
		d.RTT.IntervalRange == other.RTT.IntervalRange &&
		d.RSSI == other.RSSI
}

func intsEqualSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
	}
	for _, c := range seen {
		if c != 0 {
			return false
		}
	}
	return true
}

func stringsEqualSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
	}
	for _, c := range seen {
		if c != 0 {
			return false
		}
	}
	return true
}

func csSecurityEqualSet(a, b []CSSecurityLevel) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[CSSecurityLevel]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
	}
	for _, c := range seen {
		if c != 0 {
			return false
		}
	}
	return true
}
