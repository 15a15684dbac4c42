package rangingapi

// UWBParams is the canonical UWB parameter shape (§9 open question: the one
// surviving revision of the source's two overlapping UwbRangingParams
// classes).
type UWBParams struct {
	PeerID       PeerID
	Channel      int
	Preamble     int
	ConfigID     int
	SlotMS       int // must be 1 or 2, validated by ValidateSlotDuration
	UpdateRate   UpdateRate
	SessionID    uint32 // derived deterministically, see DeriveUWBSessionID
	RequestAoA   bool
}

// ValidateSlotDuration enforces the §8 boundary: slot duration is
// constrained to {1, 2} ms; anything else is rejected at build time.
func ValidateSlotDuration(ms int) error {
	if ms != 1 && ms != 2 {
		return ErrInvalidConfig
	}
	return nil
}

// DeriveUWBSessionID derives a deterministic UWB session id from the local
// address and chosen channel/preamble (§4.3 step 2, UWB), so reconnecting
// peers land on the same id. 64-bit FNV-1a over the three fields, folded
// to 32 bits by XORing the high half into the low; deterministic and collision-cheap for the small input domain.
func DeriveUWBSessionID(localAddr uint64, channel, preamble int) uint32 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211

	h := uint64(offset64)
	mix := func(v uint64) {
		for i := 0; i < 8; i++ {
			h ^= (v >> (8 * i)) & 0xff
			h *= prime64
		}
	}
	mix(localAddr)
	mix(uint64(channel))
	mix(uint64(preamble))
	return uint32(h ^ (h >> 32))
}

// CSParams is the Bluetooth CS parameter bundle. LocationType/SightType are
// opaque pass-through values per the §9 open question.
type CSParams struct {
	PeerID       PeerID
	Security     CSSecurityLevel
	UpdateRate   UpdateRate
	LocationType uint8
	SightType    uint8
}

// RTTParams is the Wi-Fi NAN RTT parameter bundle.
type RTTParams struct {
	PeerID          PeerID
	ServiceName     string
	MatchFilter     string
	BandwidthMHz    int
	RxChains        int
}

// RSSIParams is the Bluetooth RSSI parameter bundle: no negotiable
// parameters beyond the peer's address.
type RSSIParams struct {
	PeerID           PeerID
	BluetoothAddress string
}

// TechnologyParams is the sum type collapsing the source's per-technology
// inheritance hierarchy (design note §9): exactly one of the four fields is
// populated, selected by Technology.
type TechnologyParams struct {
	Technology Technology
	UWB        *UWBParams
	CS         *CSParams
	RTT        *RTTParams
	RSSI       *RSSIParams
}

// PeerIDOf returns the peer id carried by whichever variant is populated.
func (p TechnologyParams) PeerIDOf() PeerID {
	switch p.Technology {
	case TechnologyUWB:
		if p.UWB != nil {
			return p.UWB.PeerID
		}
	case TechnologyCS:
		if p.CS != nil {
			return p.CS.PeerID
		}
	case TechnologyRTT:
		if p.RTT != nil {
			return p.RTT.PeerID
		}
	case TechnologyRSSI:
		if p.RSSI != nil {
			return p.RSSI.PeerID
		}
	}
	return PeerID{}
}

// PeerPreference is the caller's per-peer request passed to Session.Start
// (§4.2): either a raw parameter bundle (no OOB needed) or an OOB
// negotiation request. Exactly one of Raw/UseOOB should be set.
type PeerPreference struct {
	PeerID PeerID
	UseOOB bool
	Raw    *TechnologyParams // populated when UseOOB is false

	// ExcludedTechnologies lists technologies the caller will not accept for
	// this peer, feeding the capability gate (§4.3 step 1).
	ExcludedTechnologies map[Technology]bool
	RequestedInterval    IntervalRange
	RequestSecureCS      bool

	// RequestAoA carries the session-level StartPreference.RequestAoA flag
	// down to the per-peer UWB selection (§4.3 step 2, UWB). Session.Start
	// populates this on every peer entry before negotiation begins.
	RequestAoA bool
}

// StartPreference is the full Session.Start argument (§4.2).
type StartPreference struct {
	Role               DeviceRole
	Peers              []PeerPreference
	MeasurementLimit   int // 0 = unbounded, max 65535 (§8)
	Notification       NotificationPolicy
	SensorFusionEnabled bool
	RequestAoA          bool
}

// Validate enforces the preference-level invariants surfaced as
// InvalidConfig (§7): the notification policy's near<=far rule and the
// measurement limit's 65535 ceiling.
func (p StartPreference) Validate() error {
	if err := p.Notification.Validate(); err != nil {
		return err
	}
	if p.MeasurementLimit > MaxMeasurementLimit {
		return ErrInvalidConfig
	}
	if p.MeasurementLimit < 0 {
		return ErrInvalidConfig
	}
	return nil
}
