package pilot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sensorvision/pilot/pkg/llm"
	"github.com/sensorvision/pilot/pkg/plugin"
)

const noProviderMessage = "No LLM provider is configured"

// Router selects a provider adapter for each request and records every
// call in the usage ledger.
type Router struct {
	providers       map[llm.ProviderID]llm.Provider
	defaultProvider llm.ProviderID
	timeout         time.Duration
	ledger          *Ledger
	bus             plugin.Publisher
	logger          *zap.Logger
}

// NewRouter creates a Router over the given adapters. Adapters are consulted
// in llm.AllProviders order when neither the request nor the configuration
// pins an available provider. The bus may be nil.
func NewRouter(providers map[llm.ProviderID]llm.Provider, defaultProvider llm.ProviderID, timeout time.Duration, ledger *Ledger, bus plugin.Publisher, logger *zap.Logger) *Router {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Router{
		providers:       providers,
		defaultProvider: defaultProvider,
		timeout:         timeout,
		ledger:          ledger,
		bus:             bus,
		logger:          logger,
	}
}

// Complete resolves a provider, delegates the request, and appends a usage
// record. It never returns nil: when no provider is available the result is
// a failure response and nothing is recorded.
func (r *Router) Complete(ctx context.Context, req *llm.Request, orgID, userID string) *llm.Response {
	provider := r.resolve(req.Provider)
	if provider == nil {
		r.logger.Warn("no available LLM provider",
			zap.String("requested", string(req.Provider)),
			zap.String("feature", string(req.Feature)))
		return llm.NewFailure(req.Provider, noProviderMessage)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp := provider.Complete(callCtx, req)

	r.record(ctx, req, resp, orgID, userID)

	if !resp.Success {
		r.logger.Warn("LLM call failed",
			zap.String("provider", string(resp.Provider)),
			zap.String("feature", string(req.Feature)),
			zap.String("error", resp.ErrorMessage))
	}
	return resp
}

// resolve picks an adapter: the explicitly requested provider if available,
// then the configured default, then the first available adapter in
// llm.AllProviders order.
func (r *Router) resolve(requested llm.ProviderID) llm.Provider {
	if requested != "" {
		if p, ok := r.providers[requested]; ok && p.Available() {
			return p
		}
	}
	if p, ok := r.providers[r.defaultProvider]; ok && p.Available() {
		return p
	}
	for _, id := range llm.AllProviders() {
		if p, ok := r.providers[id]; ok && p.Available() {
			return p
		}
	}
	return nil
}

// record appends a ledger row for the completed call. Ledger failures are
// logged and never propagated: billing must not break the user-facing path.
func (r *Router) record(ctx context.Context, req *llm.Request, resp *llm.Response, orgID, userID string) {
	rec := &UsageRecord{
		OrgID:         orgID,
		UserID:        userID,
		Provider:      string(resp.Provider),
		ModelID:       resp.Model,
		Feature:       string(req.Feature),
		InputTokens:   resp.InputTokens,
		OutputTokens:  resp.OutputTokens,
		TotalTokens:   resp.TotalTokens,
		CostCents:     resp.CostCents,
		LatencyMs:     resp.LatencyMs,
		Success:       resp.Success,
		ErrorMessage:  resp.ErrorMessage,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
	}
	if err := r.ledger.Record(ctx, rec); err != nil {
		r.logger.Error("failed to record LLM usage",
			zap.String("provider", rec.Provider),
			zap.String("feature", rec.Feature),
			zap.Error(err))
		return
	}

	if r.bus != nil {
		r.bus.Publish(ctx, plugin.Event{
			Topic:     TopicUsageRecorded,
			Source:    "pilot",
			Timestamp: time.Now(),
			Payload: map[string]any{
				"org_id":       rec.OrgID,
				"provider":     rec.Provider,
				"feature":      rec.Feature,
				"total_tokens": rec.TotalTokens,
				"cost_cents":   rec.CostCents,
				"success":      rec.Success,
			},
		})
	}
}

// AvailableProviders returns the IDs of all adapters with usable
// credentials, in llm.AllProviders order.
func (r *Router) AvailableProviders() []llm.ProviderID {
	var out []llm.ProviderID
	for _, id := range llm.AllProviders() {
		if p, ok := r.providers[id]; ok && p.Available() {
			out = append(out, id)
		}
	}
	return out
}

// AnyAvailable reports whether at least one adapter is usable.
func (r *Router) AnyAvailable() bool {
	return len(r.AvailableProviders()) > 0
}

// Provider returns the adapter registered for id, or nil.
func (r *Router) Provider(id llm.ProviderID) llm.Provider {
	return r.providers[id]
}

// DefaultProvider returns the configured default provider ID.
func (r *Router) DefaultProvider() llm.ProviderID {
	return r.defaultProvider
}
