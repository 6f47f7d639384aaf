// Package openai implements llm.Provider for the OpenAI Chat Completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/sensorvision/pilot/pkg/llm"
	"go.uber.org/zap"
)

// Pricing in cents per million tokens (gpt-4o).
const (
	priceInputCents  = 250
	priceOutputCents = 1000
)

// Compile-time interface guard.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider for OpenAI.
type Provider struct {
	apiKey     string
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New creates an OpenAI provider. A missing API key is not an error:
// the provider reports itself unavailable and the router skips it.
func New(cfg Config, apiKey string, logger *zap.Logger) *Provider {
	return &Provider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

// ID returns the provider identifier.
func (p *Provider) ID() llm.ProviderID { return llm.ProviderOpenAI }

// Available reports whether the provider has credentials configured.
func (p *Provider) Available() bool { return p.apiKey != "" }

// DefaultModel returns the configured model identifier.
func (p *Provider) DefaultModel() string { return p.cfg.Model }

// EstimateCostCents returns the cost of a request in cents, rounded up
// so that any nonzero usage is never billed as free.
func (p *Provider) EstimateCostCents(inputTokens, outputTokens int) int {
	return llm.CostCents(inputTokens, outputTokens, priceInputCents, priceOutputCents)
}

// Complete sends a chat completion request. Failures are reported in the
// Response rather than as an error so the caller can always record usage.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) *llm.Response {
	if !p.Available() {
		return llm.NewFailure(llm.ProviderOpenAI, "openai: api key not configured")
	}

	apiReq := chatRequest{
		Model:       p.cfg.Model,
		Messages:    buildMessages(req),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return llm.NewFailure(llm.ProviderOpenAI, "openai: marshal request: "+err.Error())
	}

	start := time.Now()
	respBody, err := p.doPost(ctx, "/chat/completions", body)
	latency := time.Since(start)
	if err != nil {
		p.logger.Warn("openai request failed",
			zap.String("feature", string(req.Feature)),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		resp := llm.NewFailure(llm.ProviderOpenAI, mapError(err).Error())
		resp.Model = p.cfg.Model
		resp.LatencyMs = int(latency.Milliseconds())
		return resp
	}
	defer respBody.Close()

	var apiResp chatResponse
	if err := json.NewDecoder(respBody).Decode(&apiResp); err != nil {
		resp := llm.NewFailure(llm.ProviderOpenAI, "openai: decode response: "+err.Error())
		resp.Model = p.cfg.Model
		resp.LatencyMs = int(latency.Milliseconds())
		return resp
	}

	if len(apiResp.Choices) == 0 {
		resp := llm.NewFailure(llm.ProviderOpenAI, "openai: response contained no choices")
		resp.Model = apiResp.Model
		resp.LatencyMs = int(latency.Milliseconds())
		return resp
	}

	choice := apiResp.Choices[0]
	resp := llm.NewSuccess(llm.ProviderOpenAI, apiResp.Model, choice.Message.Content,
		apiResp.Usage.PromptTokens, apiResp.Usage.CompletionTokens, int(latency.Milliseconds()))
	resp.CostCents = p.EstimateCostCents(apiResp.Usage.PromptTokens, apiResp.Usage.CompletionTokens)
	resp.StopReason = choice.FinishReason
	return resp
}

// buildMessages flattens system prompt, history, and the current message
// into the OpenAI message list.
func buildMessages(req *llm.Request) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.History)+2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
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
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

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
			Code    string `json:"code"`
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

// --- OpenAI Chat Completions API types (internal) ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}
