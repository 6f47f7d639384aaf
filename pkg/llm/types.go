package llm

// ProviderID identifies an LLM vendor. The set is closed: each ID maps to
// at most one adapter, registered at startup.
type ProviderID string

// Known provider identifiers.
const (
	ProviderOpenAI ProviderID = "openai"
	ProviderClaude ProviderID = "claude"
	ProviderGemini ProviderID = "gemini"
)

// AllProviders returns the known provider IDs in registration order. The
// order is significant: router fallback scans it first-to-last.
func AllProviders() []ProviderID {
	return []ProviderID{ProviderOpenAI, ProviderClaude, ProviderGemini}
}

// Feature tags the platform capability that issued a request, for usage
// attribution and per-feature billing breakdowns.
type Feature string

// Feature tags.
const (
	FeatureAnomalyExplanation Feature = "anomaly_explanation"
	FeatureNaturalQuery       Feature = "natural_language_query"
	FeatureReportGeneration   Feature = "report_generation"
	FeatureRootCause          Feature = "root_cause_analysis"
	FeatureWidgetAssistant    Feature = "widget_assistant"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"` // One of RoleSystem, RoleUser, RoleAssistant.
	Content string `json:"content"`
}

// Role constants for the Message.Role field. Adapters map these to the
// vendor's own role names where they differ.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is the canonical, provider-agnostic completion request. Context
// assemblers build one and hand it to the router; adapters translate it to
// the vendor wire format.
type Request struct {
	// Provider pins a specific vendor. Empty means "use the configured
	// default", with fallback to any available provider.
	Provider ProviderID `json:"provider,omitempty"`

	// Feature tags the calling capability for usage accounting.
	Feature Feature `json:"feature"`

	// System is the system instruction. May be empty.
	System string `json:"system,omitempty"`

	// UserMessage is the current user turn. Never empty for a request
	// that reaches an adapter.
	UserMessage string `json:"user_message"`

	// History is the ordered prior conversation, oldest first.
	History []Message `json:"history,omitempty"`

	// Context carries free-form request metadata. It is never sent to
	// the vendor; assemblers render domain data into UserMessage text.
	Context map[string]string `json:"context,omitempty"`

	// MaxTokens caps the generated output. Zero means the adapter default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature is the sampling temperature. Nil means the vendor default.
	Temperature *float64 `json:"temperature,omitempty"`

	// ReferenceType and ReferenceID link the request to the business
	// object that triggered it (e.g. an anomaly ID) for audit.
	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
}

// CostCents converts token usage into a cost in cents given per-million-token
// prices. The result is rounded up so nonzero usage never bills as free.
func CostCents(inputTokens, outputTokens, inputPricePerM, outputPricePerM int) int {
	micro := inputTokens*inputPricePerM + outputTokens*outputPricePerM
	if micro == 0 {
		return 0
	}
	return (micro + 999_999) / 1_000_000
}

// Response is the canonical completion result.
type Response struct {
	Provider     ProviderID `json:"provider"`
	Model        string     `json:"model,omitempty"`
	Content      string     `json:"content,omitempty"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
	TotalTokens  int        `json:"total_tokens"` // Always input + output.
	CostCents    int        `json:"cost_cents"`   // Estimated, rounded up.
	LatencyMs    int        `json:"latency_ms"`
	Success      bool       `json:"success"`
	ErrorMessage string     `json:"error_message,omitempty"` // Set iff !Success.
	StopReason   string     `json:"stop_reason,omitempty"`   // Vendor-specific, opaque.
}

// NewSuccess builds a successful response with the token total derived
// from the input and output counts.
func NewSuccess(provider ProviderID, model, content string, inputTokens, outputTokens, latencyMs int) *Response {
	return &Response{
		Provider:     provider,
		Model:        model,
		Content:      content,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		LatencyMs:    latencyMs,
		Success:      true,
	}
}

// NewFailure builds a failed response carrying the vendor or transport
// error text.
func NewFailure(provider ProviderID, errorMessage string) *Response {
	return &Response{
		Provider:     provider,
		Success:      false,
		ErrorMessage: errorMessage,
	}
}
