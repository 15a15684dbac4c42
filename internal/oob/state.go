package oob

// NegotiationState is the per-peer negotiation FSM state (§4.4, initiator
// side; the responder side is symmetric and purely reactive).
type NegotiationState uint8

const (
	StateIdle NegotiationState = iota
	StateAwaitCaps
	StateSelect
	StateSendConfig
	StateAwaitConfigAck
	StateReady
	StateAwaitStartAck
	StateRunning
	StateAwaitStopAck
	StateClosed
	StateFailed
)

func (s NegotiationState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAwaitCaps:
		return "AWAIT_CAPS"
	case StateSelect:
		return "SELECT"
	case StateSendConfig:
		return "SEND_CONFIG"
	case StateAwaitConfigAck:
		return "AWAIT_CONFIG_ACK"
	case StateReady:
		return "READY"
	case StateAwaitStartAck:
		return "AWAIT_START_ACK"
	case StateRunning:
		return "RUNNING"
	case StateAwaitStopAck:
		return "AWAIT_STOP_ACK"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// validTransitions mirrors the switchboard dialog package's
// validTransitions/CanTransitionTo pattern: every state lists the states it
// may move to. FAILED is reachable from any non-terminal state (timeout,
// malformed message, or disconnect-exceeds-timeout), so it is added
// programmatically in init rather than spelled out N times; CLOSED is
// reachable only from AWAIT_STOP_ACK.
var validTransitions = map[NegotiationState][]NegotiationState{
	StateIdle:           {StateAwaitCaps},
	StateAwaitCaps:       {StateSelect},
	StateSelect:           {StateSendConfig},
	StateSendConfig:        {StateAwaitConfigAck},
	StateAwaitConfigAck:     {StateReady},
	StateReady:               {StateAwaitStartAck},
	StateAwaitStartAck:        {StateRunning},
	StateRunning:                {StateAwaitStopAck},
	StateAwaitStopAck:             {StateClosed},
	StateClosed:                    {},
	StateFailed:                     {},
}

func init() {
	for s, next := range validTransitions {
		if s == StateClosed || s == StateFailed {
			continue
		}
		validTransitions[s] = append(next, StateFailed)
	}
}

// CanTransitionTo reports whether moving from s to next is permitted.
func (s NegotiationState) CanTransitionTo(next NegotiationState) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a terminal state (no further transitions).
func (s NegotiationState) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
