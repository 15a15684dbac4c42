package rangingapi

import "errors"

// The failure taxonomy from spec §7. Each is a sentinel, checked with
// errors.Is; wrapping with fmt.Errorf("...: %w", ...) is expected throughout
// the core so context travels with the sentinel.
var (
	ErrInvalidConfig             = errors.New("invalid config")
	ErrUnsupported                = errors.New("unsupported")
	ErrPeerCapabilitiesMismatch   = errors.New("peer capabilities mismatch")
	ErrOobTimeout                 = errors.New("oob timeout")
	ErrOobMalformed                = errors.New("oob message malformed")
	ErrPeerLost                    = errors.New("peer lost")
	ErrFailedToStart                = errors.New("adapter failed to start")
	ErrLostConnection                = errors.New("adapter lost connection")
	ErrLimitReached                   = errors.New("measurement limit reached")
	ErrCancelled                       = errors.New("cancelled")
	ErrInternal                        = errors.New("internal error")
	ErrIncompatibleInterval             = errors.New("incompatible ranging interval")
	ErrResourceExhausted                 = errors.New("resource exhausted")
	ErrClosed                              = errors.New("closed")
)

// ClosedReason is the tagged variant surfaced on Callback.OnClosed, replacing
// the source's numeric reason codes (design note §9).
type ClosedReason uint8

const (
	ClosedRequested ClosedReason = iota
	ClosedLimitReached
	ClosedError
)

func (r ClosedReason) String() string {
	switch r {
	case ClosedRequested:
		return "REQUESTED"
	case ClosedLimitReached:
		return "LIMIT_REACHED"
	case ClosedError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StartFailureReason is surfaced per-peer on Callback.OnStartFailed.
type StartFailureReason uint8

const (
	StartFailurePeerCapabilitiesMismatch StartFailureReason = iota
	StartFailureOobTimeout
	StartFailureOobMalformed
	StartFailurePeerLost
	StartFailureAdapterFailedToStart
	StartFailureUnsupported
	StartFailureInvalidConfig
	StartFailureCancelled
)

func (r StartFailureReason) String() string {
	switch r {
	case StartFailurePeerCapabilitiesMismatch:
		return "PEER_CAPABILITIES_MISMATCH"
	case StartFailureOobTimeout:
		return "OOB_TIMEOUT"
	case StartFailureOobMalformed:
		return "OOB_MALFORMED"
	case StartFailurePeerLost:
		return "PEER_LOST"
	case StartFailureAdapterFailedToStart:
		return "FAILED_TO_START"
	case StartFailureUnsupported:
		return "UNSUPPORTED"
	case StartFailureInvalidConfig:
		return "INVALID_CONFIG"
	case StartFailureCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// AdapterClosedReason is the reason an adapter contract (§6.3) reports on
// OnClosed.
type AdapterClosedReason uint8

const (
	AdapterClosedRequested AdapterClosedReason = iota
	AdapterClosedFailedToStart
	AdapterClosedLostConnection
	AdapterClosedSystemPolicy
	AdapterClosedError
	AdapterClosedUnresponsive // synthesised by the session after the stop deadline; see §5 "stuck" adapter handling
)

func (r AdapterClosedReason) String() string {
	switch r {
	case AdapterClosedRequested:
		return "REQUESTED"
	case AdapterClosedFailedToStart:
		return "FAILED_TO_START"
	case AdapterClosedLostConnection:
		return "LOST_CONNECTION"
	case AdapterClosedSystemPolicy:
		return "SYSTEM_POLICY"
	case AdapterClosedError:
		return "ERROR"
	case AdapterClosedUnresponsive:
		return "UNRESPONSIVE"
	default:
		return "UNKNOWN"
	}
}
