// Package gemini implements llm.Provider for the Google Gemini API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sensorvision/pilot/pkg/llm"
	"go.uber.org/zap"
)

// Pricing in cents per million tokens (gemini-1.5-pro).
const (
	priceInputCents  = 125
	priceOutputCents = 500
)

// Compile-time interface guard.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider for Google Gemini.
type Provider struct {
	apiKey     string
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger
}

// New creates a Gemini provider. A missing API key is not an error:
// the provider reports itself unavailable and the router skips it.
func New(cfg Config, apiKey string, logger *zap.Logger) *Provider {
	return &Provider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
	}
}

func (p *Provider) ID() llm.ProviderID { return llm.ProviderGemini }

func (p *Provider) Available() bool { return p.apiKey != "" }

func (p *Provider) DefaultModel() string { return p.cfg.Model }

// EstimateCostCents returns the cost of a request in cents, rounded up.
func (p *Provider) EstimateCostCents(inputTokens, outputTokens int) int {
	return llm.CostCents(inputTokens, outputTokens, priceInputCents, priceOutputCents)
}

// Complete sends a generateContent request. Failures are reported in the
// Response rather than as an error so the caller can always record usage.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) *llm.Response {
	if !p.Available() {
		return llm.NewFailure(llm.ProviderGemini, "gemini: api key not configured")
	}

	apiReq := generateRequest{
		Contents: buildContents(req),
	}
	if req.System != "" {
		apiReq.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 || req.Temperature != nil {
		apiReq.GenerationConfig = &generationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return llm.NewFailure(llm.ProviderGemini, "gemini: marshal request: "+err.Error())
	}

	path := fmt.Sprintf("/models/%s:generateContent", p.cfg.Model)

	start := time.Now()
	respBody, err := p.doPost(ctx, path, body)
	latency := time.Since(start)
	if err != nil {
		p.logger.Warn("gemini request failed",
			zap.String("feature", string(req.Feature)),
			zap.Duration("latency", latency),
			zap.Error(err),
		)
		resp := llm.NewFailure(llm.ProviderGemini, mapError(err).Error())
		resp.Model = p.cfg.Model
		resp.LatencyMs = int(latency.Milliseconds())
		return resp
	}
	defer respBody.Close()

	var apiResp generateResponse
	if err := json.NewDecoder(respBody).Decode(&apiResp); err != nil {
		resp := llm.NewFailure(llm.ProviderGemini, "gemini: decode response: "+err.Error())
		resp.Model = p.cfg.Model
		resp.LatencyMs = int(latency.Milliseconds())
		return resp
	}

	if len(apiResp.Candidates) == 0 {
		resp := llm.NewFailure(llm.ProviderGemini, "gemini: response contained no candidates")
		resp.Model = p.cfg.Model
		resp.LatencyMs = int(latency.Milliseconds())
		return resp
	}

	candidate := apiResp.Candidates[0]
	var text strings.Builder
	for _, pt := range candidate.Content.Parts {
		text.WriteString(pt.Text)
	}

	in := apiResp.UsageMetadata.PromptTokenCount
	out := apiResp.UsageMetadata.CandidatesTokenCount
	resp := llm.NewSuccess(llm.ProviderGemini, p.cfg.Model, text.String(), in, out, int(latency.Milliseconds()))
	resp.CostCents = p.EstimateCostCents(in, out)
	resp.StopReason = candidate.FinishReason
	return resp
}

// buildContents converts history plus the current message to the Gemini
// contents list. Gemini uses "model" where others use "assistant".
func buildContents(req *llm.Request) []content {
	contents := make([]content, 0, len(req.History)+1)
	for _, m := range req.History {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	contents = append(contents, content{Role: "user", Parts: []part{{Text: req.UserMessage}}})
	return contents
}

// doPost sends an authenticated POST request and returns the response body.
func (p *Provider) doPost(ctx context.Context, path string, body []byte) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

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
			Status  string `json:"status"`
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
		Type:       errResp.Error.Status,
		Message:    msg,
	}
}

// --- Gemini generateContent API types (internal) ---

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}
