// Package adapter defines the narrow contract the session engine drives
// each hardware-specific ranging technology through (spec §6.3). The real
// UWB/CS/RTT/RSSI drivers are external collaborators and out of scope; this
// package only pins down the interface and the reasons they report.
package adapter

import (
	"context"

	"github.com/sebas/rangingcore/pkg/rangingapi"
)

// Callback is the contract an Adapter invokes back into the session engine.
// Adapter callbacks run on the adapter's own goroutine (§5) and must be
// handed off before any session-state mutation.
type Callback interface {
	OnStarted(peer rangingapi.PeerID)
	OnStopped(peer rangingapi.PeerID)
	OnClosed(reason rangingapi.AdapterClosedReason)
	OnRangingData(peer rangingapi.PeerID, measurement rangingapi.Measurement)
}

// Adapter is the contract every technology driver implements (§6.3).
// Exactly one live Adapter instance exists per (session, peer, technology)
// at a time (§5).
type Adapter interface {
	// Start begins ranging for the given params, invoking callback
	// asynchronously as the adapter session progresses.
	Start(ctx context.Context, params rangingapi.TechnologyParams, callback Callback) error

	// Stop requests an orderly shutdown. The adapter must eventually call
	// Callback.OnClosed, even on error paths.
	Stop(ctx context.Context) error

	// Technology reports which technology this adapter instance drives.
	Technology() rangingapi.Technology

	// IsSupported reports whether the local hardware supports this
	// technology in the current context (country code, radio state, etc).
	IsSupported(ctx context.Context) bool
}

// Factory constructs a fresh Adapter instance for one (session, peer,
// technology) triple. The session engine calls this at most once per
// triple (§5, "single-use per session").
type Factory func(technology rangingapi.Technology) (Adapter, error)
