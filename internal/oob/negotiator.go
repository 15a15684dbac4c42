package oob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sebas/rangingcore/internal/engine"
	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// Connection is the narrow send/receive contract the negotiator needs from
// the OOB connection manager (C5). internal/connmgr's *Connection satisfies
// this; tests commonly supply an in-memory fake.
type Connection interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// Selector is the narrow contract the negotiator needs from the config
// selector (C3); *engine.Selector satisfies it.
type Selector interface {
	Select(peers []rangingapi.CapabilityDescriptor, pref rangingapi.PeerPreference) ([]engine.Selection, error)
}

// Callback is how a Negotiator reports outcomes back to its owning Session.
// Every method is called on the negotiator's own goroutine; callers must
// hand off before touching session state under a different lock.
type Callback interface {
	OnNegotiated(selections []engine.Selection)
	OnStarted()
	OnFailed(reason rangingapi.StartFailureReason, err error)
	OnStopped()
}

// MetricsSink is the narrow metrics contract the negotiator reports
// through; *rangingmetrics.Collector satisfies it. Nil is valid and
// disables metrics entirely.
type MetricsSink interface {
	OOBMessageSent(msgType string)
	OOBMessageReceived(msgType string)
	NegotiationOutcome(outcome string)
}

// Deadlines holds the per-stage timeouts from §5, overridable so tests can
// shrink them to milliseconds.
type Deadlines struct {
	Caps   time.Duration
	Config time.Duration
	Start  time.Duration
	Stop   time.Duration
}

// DefaultDeadlines returns the §5 defaults: caps 5s, config 5s, start 10s.
// Stop reuses the start deadline; the spec does not give STOP_RANGING its
// own figure.
func DefaultDeadlines() Deadlines {
	return Deadlines{
		Caps:   5 * time.Second,
		Config: 5 * time.Second,
		Start:  10 * time.Second,
		Stop:   10 * time.Second,
	}
}

// Negotiator drives one peer's negotiation FSM (§4.4) in either role, via RunInitiator or RunResponder. Each
// peer's negotiator runs independently; the owning session must not block
// one peer's progress on another's.
type Negotiator struct {
	peerID     rangingapi.PeerID
	conn       Connection
	selector   Selector
	localCaps  rangingapi.CapabilityDescriptor
	pref       rangingapi.PeerPreference
	deadlines  Deadlines
	callback   Callback
	metrics    MetricsSink
	log        *slog.Logger

	mu        sync.Mutex
	state     NegotiationState
	role      rangingapi.DeviceRole // set on entry to RunInitiator/RunResponder; gates Stop's behavior
	runCancel context.CancelFunc    // cancels the Run*'s derived context; set for the duration of RunInitiator/RunResponder
}

// WithMetrics attaches a metrics sink; returns n for chaining. Nil detaches.
func (n *Negotiator) WithMetrics(sink MetricsSink) *Negotiator {
	n.metrics = sink
	return n
}

// New constructs a Negotiator for one peer. localCaps is advertised
// verbatim in response to the peer's own CAPABILITY_REQUEST when this
// device acts as responder (see RunResponder).
func New(peerID rangingapi.PeerID, conn Connection, selector Selector, localCaps rangingapi.CapabilityDescriptor, pref rangingapi.PeerPreference, deadlines Deadlines, callback Callback, log *slog.Logger) *Negotiator {
	if log == nil {
		log = slog.Default()
	}
	return &Negotiator{
		peerID:    peerID,
		conn:      conn,
		selector:  selector,
		localCaps: localCaps,
		pref:      pref,
		deadlines: deadlines,
		callback:  callback,
		state:     StateIdle,
		log:       log.With("peer_id", peerID.String()),
	}
}

// State returns the negotiator's current state.
func (n *Negotiator) State() NegotiationState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Negotiator) transition(next NegotiationState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.state.CanTransitionTo(next) {
		n.log.Warn("rejected negotiation transition", "from", n.state, "to", next)
		return
	}
	n.log.Debug("negotiation transition", "from", n.state, "to", next)
	n.state = next
}

// armCancel derives a cancellable context from ctx and records its cancel
// func so a concurrent Stop can unblock whatever recv call is in flight.
func (n *Negotiator) armCancel(ctx context.Context) context.Context {
	runCtx, cancel := context.WithCancel(ctx)
	n.mu.Lock()
	n.runCancel = cancel
	n.mu.Unlock()
	return runCtx
}

func (n *Negotiator) disarmCancel() {
	n.mu.Lock()
	cancel := n.runCancel
	n.runCancel = nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// cancelRun unblocks a recv in flight on the RunInitiator/RunResponder
// goroutine without affecting ctx passed into Stop itself.
func (n *Negotiator) cancelRun() {
	n.mu.Lock()
	cancel := n.runCancel
	n.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// RunInitiator drives the full negotiation sequence as the initiating
// device: capability exchange, configuration, and ranging start. It blocks
// until RUNNING is reached or a stage fails; Stop drives the symmetric
// shutdown sequence afterwards.
func (n *Negotiator) RunInitiator(ctx context.Context) error {
	ctx = n.armCancel(ctx)
	defer n.disarmCancel()

	n.role = rangingapi.RoleInitiator
	n.transition(StateAwaitCaps)
	requested := requestedTechnologies(n.localCaps, n.pref)
	if err := n.send(ctx, Message{Type: CapabilityRequest, RequestedTechnologies: requested}); err != nil {
		return n.fail(rangingapi.StartFailureOobTimeout, err)
	}

	capsMsg, err := n.recv(ctx, n.deadlines.Caps, CapabilityResponse)
	if err != nil {
		return n.fail(classifyRecvFailure(err), err)
	}

	n.transition(StateSelect)
	selections, err := n.selector.Select([]rangingapi.CapabilityDescriptor{capsMsg.Capabilities}, n.pref)
	if err != nil {
		return n.fail(classifySelectFailure(err), err)
	}

	n.transition(StateSendConfig)
	cfgMsg := buildSetConfiguration(selections)
	if err := n.send(ctx, cfgMsg); err != nil {
		return n.fail(rangingapi.StartFailureOobTimeout, err)
	}

	n.transition(StateAwaitConfigAck)
	ackMsg, err := n.recv(ctx, n.deadlines.Config, SetConfigurationResponse)
	if err != nil {
		return n.fail(classifyRecvFailure(err), err)
	}
	if !allOK(ackMsg.ConfigStatus) {
		return n.fail(rangingapi.StartFailurePeerCapabilitiesMismatch, fmt.Errorf("%w: peer rejected configuration", rangingapi.ErrPeerCapabilitiesMismatch))
	}

	n.transition(StateReady)
	n.callback.OnNegotiated(selections)

	n.transition(StateAwaitStartAck)
	startSet := NewTechnologySet(selectionTechs(selections)...)
	if err := n.send(ctx, Message{Type: StartRanging, Technologies: startSet}); err != nil {
		return n.fail(rangingapi.StartFailureOobTimeout, err)
	}

	startAck, err := n.recv(ctx, n.deadlines.Start, StartRangingResponse)
	if err != nil {
		return n.fail(classifyRecvFailure(err), err)
	}
	if startAck.SucceededTechnologies == 0 {
		return n.fail(rangingapi.StartFailureAdapterFailedToStart, fmt.Errorf("%w: peer started no technologies", rangingapi.ErrFailedToStart))
	}

	n.transition(StateRunning)
	if n.metrics != nil {
		n.metrics.NegotiationOutcome("ready")
	}
	n.callback.OnStarted()
	return nil
}

// RunResponder drives the full negotiation sequence as the responding
// device (§4.4, "Responder side is symmetric and purely reactive"): it
// reacts to the initiator's requests rather than issuing them, advertising
// localCaps verbatim and accepting whatever configuration the initiator's
// own Config Selector already narrowed down to a common set.
func (n *Negotiator) RunResponder(ctx context.Context) error {
	ctx = n.armCancel(ctx)
	defer n.disarmCancel()

	n.role = rangingapi.RoleResponder
	_, err := n.recv(ctx, n.deadlines.Caps, CapabilityRequest)
	if err != nil {
		return n.fail(classifyRecvFailure(err), err)
	}
	n.transition(StateAwaitCaps)

	if err := n.send(ctx, Message{Type: CapabilityResponse, Capabilities: n.localCaps}); err != nil {
		return n.fail(rangingapi.StartFailureOobTimeout, err)
	}

	n.transition(StateSelect)
	cfgMsg, err := n.recv(ctx, n.deadlines.Config, SetConfiguration)
	if err != nil {
		return n.fail(classifyRecvFailure(err), err)
	}

	n.transition(StateSendConfig)
	selections := selectionsFromConfig(cfgMsg)
	status := make([]TechStatus, len(selections))
	for i, sel := range selections {
		status[i] = TechStatus{Technology: sel.Technology, OK: true}
	}
	if err := n.send(ctx, Message{Type: SetConfigurationResponse, ConfigStatus: status}); err != nil {
		return n.fail(rangingapi.StartFailureOobTimeout, err)
	}

	n.transition(StateAwaitConfigAck)
	n.transition(StateReady)
	n.callback.OnNegotiated(selections)

	n.transition(StateAwaitStartAck)
	startMsg, err := n.recv(ctx, n.deadlines.Start, StartRanging)
	if err != nil {
		return n.fail(classifyRecvFailure(err), err)
	}
	succeeded := startMsg.Technologies
	if err := n.send(ctx, Message{Type: StartRangingResponse, SucceededTechnologies: succeeded}); err != nil {
		return n.fail(rangingapi.StartFailureOobTimeout, err)
	}

	n.transition(StateRunning)
	if n.metrics != nil {
		n.metrics.NegotiationOutcome("ready")
	}
	n.callback.OnStarted()
	return nil
}

func selectionsFromConfig(m Message) []engine.Selection {
	selections := make([]engine.Selection, 0, len(m.ConfigTechnologies.Slice()))
	for _, t := range m.ConfigTechnologies.Slice() {
		params := rangingapi.TechnologyParams{Technology: t}
		switch t {
		case rangingapi.TechnologyUWB:
			params.UWB = m.UWBConfig
		case rangingapi.TechnologyCS:
			params.CS = m.CSConfig
		case rangingapi.TechnologyRTT:
			params.RTT = m.RTTConfig
		case rangingapi.TechnologyRSSI:
			params.RSSI = m.RSSIConfig
		}
		selections = append(selections, engine.Selection{Technology: t, LocalParams: params, PeerParams: params})
	}
	return selections
}

// Stop drives the STOP_RANGING / STOP_RANGING_RESPONSE exchange. Safe to
// call from RUNNING or any earlier non-terminal state. A negotiation still
// short of RUNNING has no peer exchange worth completing, so Stop cancels
// whatever recv the Run*'s own goroutine is blocked in (unblocking it with
// Cancelled) and records the negotiation as FAILED rather than CLOSED, since
// CLOSED is only reachable from AWAIT_STOP_ACK (§4.4, §5 "cancels pending
// OOB waits with Cancelled").
func (n *Negotiator) Stop(ctx context.Context) error {
	state := n.State()
	if state.Terminal() {
		return nil
	}

	if state != StateRunning {
		n.cancelRun()
		n.transition(StateFailed)
		n.callback.OnStopped()
		return rangingapi.ErrCancelled
	}

	if n.role == rangingapi.RoleResponder {
		n.awaitStop(ctx)
	} else if err := n.send(ctx, Message{Type: StopRanging, Technologies: NewTechnologySet(rangingapi.AllTechnologies...)}); err == nil {
		n.transition(StateAwaitStopAck)
		_, _ = n.recv(ctx, n.deadlines.Stop, StopRangingResponse)
	}
	n.transition(StateClosed)
	n.callback.OnStopped()
	return nil
}

// awaitStop is the responder-side counterpart of Stop's initiator send:
// it waits (bounded by the stop deadline) for the initiator's STOP_RANGING
// and acknowledges it, rather than sending one itself (§4.4, "Responder
// side is symmetric and purely reactive").
func (n *Negotiator) awaitStop(ctx context.Context) {
	n.transition(StateAwaitStopAck)
	msg, err := n.recv(ctx, n.deadlines.Stop, StopRanging)
	if err != nil {
		n.log.Debug("responder stop wait ended without a STOP_RANGING", "error", err)
		return
	}
	_ = n.send(ctx, Message{Type: StopRangingResponse, SucceededTechnologies: msg.Technologies})
}

func (n *Negotiator) send(ctx context.Context, m Message) error {
	b, err := Encode(m)
	if err != nil {
		return fmt.Errorf("%w: %v", rangingapi.ErrOobMalformed, err)
	}
	if err := n.conn.Send(ctx, b); err != nil {
		return err
	}
	if n.metrics != nil {
		n.metrics.OOBMessageSent(m.Type.String())
	}
	return nil
}

func (n *Negotiator) recv(ctx context.Context, deadline time.Duration, want MessageType) (Message, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	b, err := n.conn.Receive(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Message{}, fmt.Errorf("%w: awaiting %s", rangingapi.ErrCancelled, want)
		}
		if ctx.Err() != nil {
			return Message{}, fmt.Errorf("%w: awaiting %s", rangingapi.ErrOobTimeout, want)
		}
		return Message{}, err
	}
	m, err := Decode(b)
	if err != nil {
		return Message{}, err
	}
	if n.metrics != nil {
		n.metrics.OOBMessageReceived(m.Type.String())
	}
	if m.Type == Unknown {
		return Message{}, fmt.Errorf("%w: received unknown message while awaiting %s", rangingapi.ErrOobMalformed, want)
	}
	if m.Type != want {
		return Message{}, fmt.Errorf("%w: expected %s, got %s", rangingapi.ErrOobMalformed, want, m.Type)
	}
	return m, nil
}

func (n *Negotiator) fail(reason rangingapi.StartFailureReason, err error) error {
	n.transition(StateFailed)
	n.log.Warn("negotiation failed", "reason", reason, "error", err)
	if n.metrics != nil {
		n.metrics.NegotiationOutcome("failed")
	}
	n.callback.OnFailed(reason, err)
	return err
}

func requestedTechnologies(local rangingapi.CapabilityDescriptor, pref rangingapi.PeerPreference) TechnologySet {
	var set TechnologySet
	for _, t := range rangingapi.AllTechnologies {
		if pref.ExcludedTechnologies[t] {
			continue
		}
		if local.Supported[t] {
			set = set.Add(t)
		}
	}
	return set
}

func buildSetConfiguration(selections []engine.Selection) Message {
	m := Message{Type: SetConfiguration}
	for _, sel := range selections {
		m.ConfigTechnologies = m.ConfigTechnologies.Add(sel.Technology)
		switch sel.Technology {
		case rangingapi.TechnologyUWB:
			m.UWBConfig = sel.PeerParams.UWB
		case rangingapi.TechnologyCS:
			m.CSConfig = sel.PeerParams.CS
		case rangingapi.TechnologyRTT:
			m.RTTConfig = sel.PeerParams.RTT
		case rangingapi.TechnologyRSSI:
			m.RSSIConfig = sel.PeerParams.RSSI
		}
	}
	return m
}

func selectionTechs(selections []engine.Selection) []rangingapi.Technology {
	out := make([]rangingapi.Technology, len(selections))
	for i, s := range selections {
		out[i] = s.Technology
	}
	return out
}

func allOK(statuses []TechStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if !s.OK {
			return false
		}
	}
	return true
}

func classifyRecvFailure(err error) rangingapi.StartFailureReason {
	switch {
	case errors.Is(err, rangingapi.ErrCancelled):
		return rangingapi.StartFailureCancelled
	case isTimeout(err):
		return rangingapi.StartFailureOobTimeout
	default:
		return rangingapi.StartFailureOobMalformed
	}
}

func classifySelectFailure(err error) rangingapi.StartFailureReason {
	switch {
	case errors.Is(err, rangingapi.ErrUnsupported):
		return rangingapi.StartFailureUnsupported
	case errors.Is(err, rangingapi.ErrIncompatibleInterval):
		return rangingapi.StartFailureInvalidConfig
	default:
		return rangingapi.StartFailurePeerCapabilitiesMismatch
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, rangingapi.ErrOobTimeout)
}
