package connmgr_test

import (
	"context"
	"testing"
	"time"

	"github.com/sebas/rangingcore/internal/connmgr"
	"github.com/sebas/rangingcore/internal/transport/loopback"
	"github.com/sebas/rangingcore/pkg/rangingapi"
)

func TestConnectionSendReceiveRoundTrip(t *testing.T) {
	t.Parallel()
	pair := loopback.NewPair()
	a := connmgr.NewConnection(rangingapi.NewPeerID(), pair.A, 0, nil)
	b := connmgr.NewConnection(rangingapi.NewPeerID(), pair.B, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := a.Send(ctx, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Receive() = %q, want %q", got, "hello")
	}
}

func TestConnectionReceiveOnlyKeepsLatestBufferedPayload(t *testing.T) {
	t.Parallel()
	pair := loopback.NewPair()
	a := connmgr.NewConnection(rangingapi.NewPeerID(), pair.A, 0, nil)
	b := connmgr.NewConnection(rangingapi.NewPeerID(), pair.B, 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := a.Send(ctx, []byte("first")); err != nil {
		t.Fatalf("Send first: %v", err)
	}
	if err := a.Send(ctx, []byte("second")); err != nil {
		t.Fatalf("Send second: %v", err)
	}

	got, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Receive() = %q, want the most recently buffered payload %q", got, "second")
	}
}

func TestConnectionQueuesSendsWhileDisconnectedAndFlushesOnReconnect(t *testing.T) {
	t.Parallel()
	pair := loopback.NewPair()
	a := connmgr.NewConnection(rangingapi.NewPeerID(), pair.A, time.Second, nil)
	b := connmgr.NewConnection(rangingapi.NewPeerID(), pair.B, 0, nil)

	pair.A.SimulateDisconnect()
	if got := a.State(); got != connmgr.StateDisconnected {
		t.Fatalf("State() after SimulateDisconnect = %v, want DISCONNECTED", got)
	}

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- a.Send(context.Background(), []byte("queued"))
	}()

	// The send must not resolve while disconnected.
	select {
	case err := <-sendErr:
		t.Fatalf("Send resolved while disconnected (err=%v), want it to block until reconnect", err)
	case <-time.After(50 * time.Millisecond):
	}

	pair.A.SimulateReconnect()
	if got := a.State(); got != connmgr.StateConnected {
		t.Fatalf("State() after SimulateReconnect = %v, want CONNECTED", got)
	}

	select {
	case err := <-sendErr:
		if err != nil {
			t.Errorf("queued Send resolved with error after reconnect: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the queued send to flush on reconnect")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != "queued" {
		t.Errorf("Receive() = %q, want %q", got, "queued")
	}
}

func TestConnectionDisconnectTimeoutForcesClose(t *testing.T) {
	t.Parallel()
	pair := loopback.NewPair()
	a := connmgr.NewConnection(rangingapi.NewPeerID(), pair.A, 20*time.Millisecond, nil)

	pair.A.SimulateDisconnect()

	time.Sleep(100 * time.Millisecond)

	if got := a.State(); got != connmgr.StateClosed {
		t.Fatalf("State() after the disconnect deadline elapsed = %v, want CLOSED", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := a.Receive(ctx); err != rangingapi.ErrClosed {
		t.Errorf("Receive() after close = %v, want ErrClosed", err)
	}
}

func TestConnectionCloseResolvesPendingOperationsWithErrClosed(t *testing.T) {
	t.Parallel()
	pair := loopback.NewPair()
	a := connmgr.NewConnection(rangingapi.NewPeerID(), pair.A, time.Second, nil)

	pair.A.SimulateDisconnect()

	sendErr := make(chan error, 1)
	go func() {
		sendErr <- a.Send(context.Background(), []byte("never delivered"))
	}()
	time.Sleep(20 * time.Millisecond)

	a.Close()

	select {
	case err := <-sendErr:
		if err != rangingapi.ErrClosed {
			t.Errorf("pending Send resolved with %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the pending send to resolve after Close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Send(ctx, []byte("after close")); err != rangingapi.ErrClosed {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
}

func TestManagerRegisterLookupAndCloseSession(t *testing.T) {
	t.Parallel()
	mgr := connmgr.NewManager(nil)
	pair := loopback.NewPair()
	peerID := rangingapi.NewPeerID()

	conn := mgr.Register(1, peerID, pair.A, 0)
	if conn == nil {
		t.Fatal("Register returned nil")
	}
	got, ok := mgr.Lookup(1, peerID)
	if !ok || got != conn {
		t.Fatal("Lookup should return the connection just registered")
	}
	if got := mgr.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}

	mgr.CloseSession(1)
	if _, ok := mgr.Lookup(1, peerID); ok {
		t.Error("Lookup should miss after CloseSession")
	}
	if got := mgr.Count(); got != 0 {
		t.Errorf("Count() after CloseSession = %d, want 0", got)
	}
	if got := conn.State(); got != connmgr.StateClosed {
		t.Errorf("connection State() after CloseSession = %v, want CLOSED", got)
	}
}

func TestManagerRemoveIsIdempotent(t *testing.T) {
	t.Parallel()
	mgr := connmgr.NewManager(nil)
	pair := loopback.NewPair()
	peerID := rangingapi.NewPeerID()
	mgr.Register(1, peerID, pair.A, 0)

	mgr.Remove(1, peerID)
	mgr.Remove(1, peerID) // must not panic
	if _, ok := mgr.Lookup(1, peerID); ok {
		t.Error("Lookup should miss after Remove")
	}
}
