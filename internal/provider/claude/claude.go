// Package claude implements llm.Provider for the Anthropic Messages API.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sensorvision/pilot/pkg/llm"
	"go.uber.org/zap"
)

// Pricing in cents per million tokens (claude-sonnet-4).
const (
	priceInputCents  = 300
	priceOutputCents = 1500
)

const anthropicVersion = "2023-06-01"

// The Messages API requires max_tokens; used when the request leaves it unset.
const defaultMaxTokens = 4096

// Compile-time interface guard.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider for Anthropic Claude.
type Provider struct {
	apiKey     string
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New creates a Claude provider. A missing API key is not an error:
// the provider reports itself unavailable and the router skips it.
func New(cfg Config, apiKey string, logger *zap.Logger) *Provider {
	return &Provider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

func (p *Provider) ID() llm.ProviderID { return llm.ProviderClaude }

func (p *Provider) Available() bool { return p.apiKey != "" }

func (p *Provider) DefaultModel() string { return p.cfg.Model }

// EstimateCostCents returns the cost of a request in cents, rounded up.
func (p *Provider) EstimateCostCents(inputTokens, outputTokens int) int {
	return llm.CostCents(inputTokens, outputTokens, priceInputCents, priceOutputCents)
}

// Complete sends a Messages API request. Failures are reported in the
// Response rather than as an error so the caller can always record usage.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) *llm.Response {
	if !p.Available() {
		return llm.NewFailure(llm.ProviderClaude, "claude: api key not configured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	apiReq := messagesRequest{
		Model:       p.cfg.Model,
		System:      req.System,
		Messages:    buildMessages(req),
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return llm.NewFailure(llm.ProviderClaude, "claude: marshal request: "+err.Error())
	}

	start := time.Now()
	respBody, err := p.doPost(ctx, "/messages", body)
	latency := time.Since(start)
	if err != nil {
		p.logger.Warn("claude request failed",
			zap.String("feature", string(req.Feature)),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		resp := llm.NewFailure(llm.ProviderClaude, mapError(err).Error())
		resp.Model = p.cfg.Model
		resp.LatencyMs = int(latency.Milliseconds())
		return resp
	}
	defer respBody.Close()

	var apiResp messagesResponse
	if err := json.NewDecoder(respBody).Decode(&apiResp); err != nil {
		resp := llm.NewFailure(llm.ProviderClaude, "claude: decode response: "+err.Error())
		resp.Model = p.cfg.Model
		resp.LatencyMs = int(latency.Milliseconds())
		return resp
	}

	var content strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	resp := llm.NewSuccess(llm.ProviderClaude, apiResp.Model, content.String(),
		apiResp.Usage.InputTokens, apiResp.Usage.OutputTokens, int(latency.Milliseconds()))
	resp.CostCents = p.EstimateCostCents(apiResp.Usage.InputTokens, apiResp.Usage.OutputTokens)
	resp.StopReason = apiResp.StopReason
	return resp
}

// buildMessages converts history plus the current message to the Messages
// API shape. The system prompt travels in a dedicated request field.
func buildMessages(req *llm.Request) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.UserMessage})
	return msgs
}

// doPost sends an authenticated POST request and returns the response body.
func (p *Provider) doPost(ctx context.Context, path string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, parseStatusError(resp)
	}

	return resp.Body, nil
}

// parseStatusError reads an error response body.
func parseStatusError(resp *http.Response) *statusError {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil || json.Unmarshal(data, &errResp) != nil {
		return &statusError{StatusCode: resp.StatusCode, Message: resp.Status}
	}

	msg := errResp.Error.Message
	if msg == "" {
		msg = resp.Status
	}
	return &statusError{
		StatusCode: resp.StatusCode,
		Type:       errResp.Error.Type,
		Message:    msg,
	}
}

// --- Anthropic Messages API types (internal) ---

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}
