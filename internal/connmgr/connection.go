// Package connmgr implements the OOB Connection Manager (C5): a per-peer
// reliable-duplex message channel over a caller-supplied Transport, with
// disconnect/reconnect/close semantics and bounded buffering (§4.5).
package connmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// State is the OOB connection's lifecycle state (§3).
type State uint8

const (
	StateConnected State = iota
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DefaultDisconnectTimeout is the §5 default: 30s from DISCONNECTED to
// forced CLOSED.
const DefaultDisconnectTimeout = 30 * time.Second

type pendingSend struct {
	payload []byte
	result  chan error
}

// Connection is one (session, peer) OOB channel. It implements
// TransportCallback so the Transport can hand events straight back to it.
type Connection struct {
	peerID            rangingapi.PeerID
	transport         Transport
	disconnectTimeout time.Duration
	log               *slog.Logger

	mu              sync.Mutex
	state           State
	pending         []pendingSend
	disconnectTimer *time.Timer

	recvBuf  chan []byte
	closedCh chan struct{}
	closeOnce sync.Once
}

// NewConnection constructs a Connection bound to transport and registers
// itself as the transport's receive callback. The connection starts
// CONNECTED; callers that know the transport begins disconnected should
// call OnDisconnect immediately after construction.
func NewConnection(peerID rangingapi.PeerID, transport Transport, disconnectTimeout time.Duration, log *slog.Logger) *Connection {
	if disconnectTimeout <= 0 {
		disconnectTimeout = DefaultDisconnectTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Connection{
		peerID:            peerID,
		transport:         transport,
		disconnectTimeout: disconnectTimeout,
		state:             StateConnected,
		recvBuf:           make(chan []byte, 1),
		closedCh:          make(chan struct{}),
		log:               log.With("peer_id", peerID.String()),
	}
	transport.RegisterReceiveCallback(c)
	return c
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send resolves once the transport acknowledges transmission. While
// DISCONNECTED the payload is enqueued in arrival order and resolved on
// reconnect (§4.5); while CLOSED it resolves immediately with ErrClosed.
func (c *Connection) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return rangingapi.ErrClosed
	case StateConnected:
		c.mu.Unlock()
		return c.transmit(ctx, payload)
	default: // StateDisconnected
		req := pendingSend{payload: payload, result: make(chan error, 1)}
		c.pending = append(c.pending, req)
		c.mu.Unlock()
		select {
		case err := <-req.result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closedCh:
			return rangingapi.ErrClosed
		}
	}
}

func (c *Connection) transmit(ctx context.Context, payload []byte) error {
	ok, err := c.transport.Send(ctx, payload)
	if err != nil {
		return fmt.Errorf("%w: transport send: %v", rangingapi.ErrPeerLost, err)
	}
	if !ok {
		return fmt.Errorf("%w: transport rejected send", rangingapi.ErrPeerLost)
	}
	return nil
}

// Receive resolves with the next message after the call. If a message
// arrived before Receive was called, it resolves immediately with that
// most recent message — only the latest buffered payload is retained
// (§4.5). While CLOSED it resolves with ErrClosed.
func (c *Connection) Receive(ctx context.Context) ([]byte, error) {
	if c.State() == StateClosed {
		return nil, rangingapi.ErrClosed
	}
	select {
	case b := <-c.recvBuf:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closedCh:
		return nil, rangingapi.ErrClosed
	}
}

// Close transitions to CLOSED. Pending sends and receives resolve with
// ErrClosed; further operations return ErrClosed synchronously.
func (c *Connection) Close() {
	c.closeInternal(rangingapi.ErrClosed)
}

// OnReceive implements TransportCallback. The single-slot buffer is
// overwritten on new data (§4.5); a caller that does not pull fast enough
// loses the earlier payload, which the strictly request/response OOB
// protocol is designed to tolerate.
func (c *Connection) OnReceive(payload []byte) {
	select {
	case <-c.recvBuf:
	default:
	}
	select {
	case c.recvBuf <- payload:
	default:
	}
}

// OnDisconnect implements TransportCallback: arms the disconnect deadline
// (§4.5).
func (c *Connection) OnDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return
	}
	c.state = StateDisconnected
	c.log.Info("oob connection disconnected", "deadline", c.disconnectTimeout)
	c.disconnectTimer = time.AfterFunc(c.disconnectTimeout, c.onDisconnectTimeout)
}

// OnReconnect implements TransportCallback: cancels the deadline and
// flushes whatever sends queued while disconnected, in arrival order.
func (c *Connection) OnReconnect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	if c.disconnectTimer != nil {
		c.disconnectTimer.Stop()
		c.disconnectTimer = nil
	}
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.log.Info("oob connection reconnected", "flushed", len(pending))
	for _, req := range pending {
		req.result <- c.transmit(context.Background(), req.payload)
	}
}

// OnClose implements TransportCallback: the transport itself closed.
func (c *Connection) OnClose() {
	c.closeInternal(rangingapi.ErrClosed)
}

func (c *Connection) onDisconnectTimeout() {
	c.log.Warn("oob disconnect deadline exceeded, closing")
	c.closeInternal(rangingapi.ErrPeerLost)
}

func (c *Connection) closeInternal(pendingReason error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	if c.disconnectTimer != nil {
		c.disconnectTimer.Stop()
		c.disconnectTimer = nil
	}
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.closedCh) })
	for _, req := range pending {
		req.result <- pendingReason
	}
}
