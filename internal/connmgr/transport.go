package connmgr

import "context"

// Transport is the caller-supplied per-peer duplex channel contract (§6.2).
// The core never interprets the bytes it carries, never assumes ordering
// beyond what the transport itself provides, and treats each message as
// delivered whole (framing is the transport's responsibility).
type Transport interface {
	// Send is a best-effort single-shot transmit.
	Send(ctx context.Context, payload []byte) (bool, error)

	// RegisterReceiveCallback installs the sole receiver of transport
	// events; called once per Transport instance by the Connection that
	// owns it.
	RegisterReceiveCallback(cb TransportCallback)
}

// TransportCallback is how a Transport reports inbound data and link
// status back to its owning Connection.
type TransportCallback interface {
	OnReceive(payload []byte)
	OnDisconnect()
	OnReconnect()
	OnClose()
}
