// Package loopback provides an in-process pair of connmgr.Transport
// implementations that deliver directly to one another, for local exercise
// of the daemon and for connection-manager/negotiator tests without a real
// OOB radio (§6.2).
package loopback

import (
	"context"
	"sync"

	"github.com/sebas/rangingcore/internal/connmgr"
)

// Pair wires two Transport endpoints together: writes to A are delivered
// to B's callback and vice versa.
type Pair struct {
	A *Transport
	B *Transport
}

// NewPair constructs a connected loopback pair.
func NewPair() *Pair {
	a := &Transport{}
	b := &Transport{}
	a.peer = b
	b.peer = a
	return &Pair{A: a, B: b}
}

// Transport is one end of a loopback pair.
type Transport struct {
	mu       sync.Mutex
	peer     *Transport
	cb       connmgr.TransportCallback
	closed   bool
	disabled bool // simulates a disconnect without tearing down the pair
}

// RegisterReceiveCallback implements connmgr.Transport.
func (t *Transport) RegisterReceiveCallback(cb connmgr.TransportCallback) {
	t.mu.Lock()
	t.cb = cb
	t.mu.Unlock()
}

// Send implements connmgr.Transport: delivers payload to the peer
// endpoint's registered callback synchronously.
func (t *Transport) Send(_ context.Context, payload []byte) (bool, error) {
	t.mu.Lock()
	if t.closed || t.disabled {
		t.mu.Unlock()
		return false, nil
	}
	peer := t.peer
	t.mu.Unlock()

	peer.mu.Lock()
	cb := peer.cb
	disabled := peer.disabled
	peer.mu.Unlock()

	if cb == nil || disabled {
		return false, nil
	}
	cb.OnReceive(payload)
	return true, nil
}

// SimulateDisconnect notifies this endpoint's callback of a disconnect and
// stops delivering/accepting sends until SimulateReconnect is called.
func (t *Transport) SimulateDisconnect() {
	t.mu.Lock()
	t.disabled = true
	cb := t.cb
	t.mu.Unlock()
	if cb != nil {
		cb.OnDisconnect()
	}
}

// SimulateReconnect resumes delivery and notifies the callback.
func (t *Transport) SimulateReconnect() {
	t.mu.Lock()
	t.disabled = false
	cb := t.cb
	t.mu.Unlock()
	if cb != nil {
		cb.OnReconnect()
	}
}

// Close marks the endpoint closed and notifies its callback.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	cb := t.cb
	t.mu.Unlock()
	if cb != nil {
		cb.OnClose()
	}
}
