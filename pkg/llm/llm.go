// Package llm provides the public SDK types for LLM provider integrations.
// All provider adapters (OpenAI, Claude, Gemini) implement these interfaces.
// Implementations live in internal/provider/{vendor}/ adapters.
//
// This package is Apache 2.0 licensed, part of the public plugin SDK.
package llm

import "context"

// Provider is the core interface implemented by all LLM provider adapters.
// It exposes chat completion over the canonical request/response pair plus
// the metadata the router needs for selection and billing.
type Provider interface {
	// ID returns the stable provider identifier used for routing and
	// usage attribution.
	ID() ProviderID

	// Complete sends a canonical request to the vendor and returns a
	// canonical response. It never returns an error: transport failures,
	// timeouts, and malformed vendor payloads all surface as a Response
	// with Success=false and ErrorMessage set.
	Complete(ctx context.Context, req *Request) *Response

	// Available reports whether this provider is configured with usable
	// credentials. Unavailable providers are skipped by the router.
	Available() bool

	// DefaultModel returns the model identifier used when a request does
	// not pin one.
	DefaultModel() string

	// EstimateCostCents estimates the cost of a call in integer US cents,
	// always rounding up so the platform never undercharges.
	EstimateCostCents(inputTokens, outputTokens int) int
}
