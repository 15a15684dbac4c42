// Package rangingapi defines the wire-independent data model shared by every
// component of the ranging core: technologies, capabilities, measurements,
// and the caller-facing preference/callback types from spec §3 and §6.1.
package rangingapi

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// PeerID is a stable 128-bit opaque identifier used as a map key throughout
// the core. It is not a radio address.
type PeerID uuid.UUID

// NewPeerID allocates a fresh random peer id.
func NewPeerID() PeerID { return PeerID(uuid.New()) }

// String implements fmt.Stringer.
func (p PeerID) String() string { return uuid.UUID(p).String() }

// AttributionToken is the opaque identity token surfaced to the permission
// layer; the core never interprets it.
type AttributionToken uuid.UUID

func (a AttributionToken) String() string { return uuid.UUID(a).String() }

// Technology is the closed set of ranging technologies this core drives.
type Technology uint8

const (
	TechnologyUWB Technology = iota
	TechnologyCS
	TechnologyRTT
	TechnologyRSSI
)

// String implements fmt.Stringer. A Technology's numeric value is its bit
// position in the OOB bitmap encodings (§4.4) and doubles as the wire
// technology id.
func (t Technology) String() string {
	switch t {
	case TechnologyUWB:
		return "UWB"
	case TechnologyCS:
		return "CS"
	case TechnologyRTT:
		return "RTT"
	case TechnologyRSSI:
		return "RSSI"
	default:
		return fmt.Sprintf("Technology(%d)", t)
	}
}

// Valid reports whether t is one of the four known technologies.
func (t Technology) Valid() bool {
	return t <= TechnologyRSSI
}

// AllTechnologies enumerates the technologies in the deterministic
// preference order required by §4.3 step 3: UWB > CS > RTT > RSSI.
var AllTechnologies = []Technology{TechnologyUWB, TechnologyCS, TechnologyRTT, TechnologyRSSI}

// Confidence is the measurement confidence tier.
type Confidence uint8

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "LOW"
	case ConfidenceMedium:
		return "MEDIUM"
	case ConfidenceHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Measurement is one ranging result for a single peer (spec §3).
//
// DistanceM is the only mandatory field; NaN means unavailable. AzimuthDeg
// and ElevationDeg use HasAzimuth/HasElevation to signal absence rather than
// a sentinel value, since 0 is a valid angle.
type Measurement struct {
	Technology   Technology
	PeerID       PeerID
	DistanceM    float64
	HasAzimuth   bool
	AzimuthDeg   float64
	HasElevation bool
	ElevationDeg float64
	RSSI         int
	TimestampNS  int64
	Confidence   Confidence
}

// Validate enforces the measurement invariants from spec §3: if reported,
// distance is finite, and confidence is one of the three known tiers.
func (m Measurement) Validate() error {
	if !math.IsNaN(m.DistanceM) && math.IsInf(m.DistanceM, 0) {
		return fmt.Errorf("%w: distance %v is not finite", ErrInvalidConfig, m.DistanceM)
	}
	if m.Confidence > ConfidenceHigh {
		return fmt.Errorf("%w: unknown confidence tier %d", ErrInvalidConfig, m.Confidence)
	}
	return nil
}

// DeviceRole is the local device's role in the ranging exchange.
type DeviceRole uint8

const (
	RoleInitiator DeviceRole = iota
	RoleResponder
)

// NotificationPolicyKind is the closed set of data-notification policies
// (spec §3).
type NotificationPolicyKind uint8

const (
	NotificationDisabled NotificationPolicyKind = iota
	NotificationEnabled
	NotificationProximityLevel
	NotificationProximityEdge
)

// NotificationPolicy controls when onData fires for proximity-gated modes.
// NearCM/FarCM are only meaningful for the two PROXIMITY_* kinds.
type NotificationPolicy struct {
	Kind  NotificationPolicyKind
	NearCM int
	FarCM  int
}

// Validate enforces the near <= far invariant from spec §3 and §8.
func (p NotificationPolicy) Validate() error {
	if p.Kind != NotificationProximityLevel && p.Kind != NotificationProximityEdge {
		return nil
	}
	if p.NearCM > p.FarCM {
		return fmt.Errorf("%w: proximity near (%d cm) > far (%d cm)", ErrInvalidConfig, p.NearCM, p.FarCM)
	}
	return nil
}

// MaxMeasurementLimit is the largest accepted round count (spec §8): 65535.
const MaxMeasurementLimit = 65535
