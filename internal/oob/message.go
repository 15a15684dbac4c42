// Package oob implements the out-of-band negotiation protocol (§4.4): a
// small framed binary wire format plus the per-peer negotiation state
// machine that drives capability exchange, configuration selection, and
// start/stop coordination.
package oob

import "github.com/sebas/rangingcore/pkg/rangingapi"

// ProtocolVersion is the only version this implementation emits. Parsers
// reject a version byte of zero; any non-zero version is accepted and
// assumed forward-compatible at the framing level.
const ProtocolVersion = 1

// MessageType is the closed set of OOB message types (§4.4).
type MessageType uint8

const (
	CapabilityRequest         MessageType = 0
	CapabilityResponse        MessageType = 1
	SetConfiguration          MessageType = 2
	SetConfigurationResponse  MessageType = 3
	StartRanging              MessageType = 4
	StartRangingResponse       MessageType = 5
	StopRanging                MessageType = 6
	StopRangingResponse         MessageType = 7
	Unknown                      MessageType = 8
)

func (t MessageType) String() string {
	switch t {
	case CapabilityRequest:
		return "CAPABILITY_REQUEST"
	case CapabilityResponse:
		return "CAPABILITY_RESPONSE"
	case SetConfiguration:
		return "SET_CONFIGURATION"
	case SetConfigurationResponse:
		return "SET_CONFIGURATION_RESPONSE"
	case StartRanging:
		return "START_RANGING"
	case StartRangingResponse:
		return "START_RANGING_RESPONSE"
	case StopRanging:
		return "STOP_RANGING"
	case StopRangingResponse:
		return "STOP_RANGING_RESPONSE"
	default:
		return "UNKNOWN"
	}
}

// TechStatus is the per-technology accept/reject outcome carried by
// SET_CONFIGURATION_RESPONSE.
type TechStatus struct {
	Technology rangingapi.Technology
	OK         bool
}

// Message is the parsed, structurally-typed form of an OOB wire message.
// Exactly the fields relevant to Type are meaningful; the rest are zero
// values. This sum-type-by-convention mirrors the params sum type in
// pkg/rangingapi (design note on collapsed inheritance hierarchies).
type Message struct {
	Version uint8
	Type    MessageType

	// CAPABILITY_REQUEST
	RequestedTechnologies TechnologySet

	// CAPABILITY_RESPONSE
	Capabilities rangingapi.CapabilityDescriptor

	// SET_CONFIGURATION
	ConfigTechnologies  TechnologySet
	StartImmediately    TechnologySet
	UWBConfig           *rangingapi.UWBParams
	CSConfig            *rangingapi.CSParams
	RTTConfig           *rangingapi.RTTParams
	RSSIConfig          *rangingapi.RSSIParams

	// SET_CONFIGURATION_RESPONSE
	ConfigStatus []TechStatus

	// START_RANGING / STOP_RANGING
	Technologies TechnologySet

	// START_RANGING_RESPONSE / STOP_RANGING_RESPONSE
	SucceededTechnologies TechnologySet
}

// TechnologySet is the little-endian two-byte bitmap described in §4.4,
// bit i corresponding to technology id i.
type TechnologySet uint16

// NewTechnologySet builds a set from individual technologies.
func NewTechnologySet(techs ...rangingapi.Technology) TechnologySet {
	var s TechnologySet
	for _, t := range techs {
		s |= 1 << uint(t)
	}
	return s
}

// Has reports whether t is a member of the set.
func (s TechnologySet) Has(t rangingapi.Technology) bool {
	return s&(1<<uint(t)) != 0
}

// Add returns a copy of s with t added.
func (s TechnologySet) Add(t rangingapi.Technology) TechnologySet {
	return s | (1 << uint(t))
}

// Slice returns the set's members in the deterministic preference order
// (§4.3 step 3: UWB > CS > RTT > RSSI).
func (s TechnologySet) Slice() []rangingapi.Technology {
	var out []rangingapi.Technology
	for _, t := range rangingapi.AllTechnologies {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}
