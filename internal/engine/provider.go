package engine

import "github.com/sebas/rangingcore/pkg/rangingapi"

// CapabilityProvider is the explicit, by-reference replacement for the
// source's static per-class singleton capability adapters (§9 design
// note). The Session Manager owns one instance and passes it to every
// Selector it constructs; nothing in this package reaches for a global.
type CapabilityProvider struct {
	// Local is this device's capability descriptor, refreshed by the
	// surrounding service (radio state, country code) between sessions.
	Local rangingapi.CapabilityDescriptor

	// CountryCode is read-only from the core's perspective (§6.4); surfaced
	// here because capability availability can be country-gated upstream.
	CountryCode string
}

// NewSelector builds a Selector bound to the provider's current local
// capability snapshot.
func (p *CapabilityProvider) NewSelector() *Selector {
	return New(p.Local)
}

// Local returns the capability descriptor a Selector is bound to, so
// callers that only hold a *Selector (e.g. the session, wiring a
// Negotiator) can still advertise it over CAPABILITY_RESPONSE without a
// back-reference to the CapabilityProvider.
func (s *Selector) Local() rangingapi.CapabilityDescriptor {
	return s.local
}
