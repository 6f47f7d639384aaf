package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sensorvision/pilot/pkg/llm"
	"github.com/sensorvision/pilot/pkg/llm/llmtest"
	"go.uber.org/zap"
)

// newTestProvider creates a Provider pointing at the given httptest server URL.
func newTestProvider(t *testing.T, serverURL string) *Provider {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = serverURL
	cfg.Timeout = 10 * time.Second
	return New(cfg, "test-key", zap.NewNop())
}

// mockGemini returns an httptest server that handles generateContent.
func mockGemini(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /models/gemini-1.5-pro:generateContent", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			http.Error(w, `{"error":{"status":"UNAUTHENTICATED","message":"invalid api key"}}`, http.StatusUnauthorized)
			return
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var resp generateResponse
		resp.Candidates = []struct {
			Content      content `json:"content"`
			FinishReason string  `json:"finishReason"`
		}{
			{
				Content:      content{Role: "model", Parts: []part{{Text: "Energy use doubled overnight."}}},
				FinishReason: "STOP",
			},
		}
		resp.UsageMetadata.PromptTokenCount = 300
		resp.UsageMetadata.CandidatesTokenCount = 60

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_Success(t *testing.T) {
	srv := mockGemini(t)
	p := newTestProvider(t, srv.URL)

	resp := p.Complete(context.Background(), &llm.Request{
		Feature:     llm.FeatureReportGeneration,
		System:      "You are a telemetry analyst.",
		UserMessage: "Summarize energy usage.",
	})

	if !resp.Success {
		t.Fatalf("Complete() failed: %s", resp.ErrorMessage)
	}
	if resp.Content != "Energy use doubled overnight." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.InputTokens != 300 || resp.OutputTokens != 60 {
		t.Errorf("tokens = %d/%d, want 300/60", resp.InputTokens, resp.OutputTokens)
	}
	if resp.StopReason != "STOP" {
		t.Errorf("StopReason = %q, want STOP", resp.StopReason)
	}
	// 300*125 + 60*500 = 67_500 micro-cents, rounds up to 1 cent.
	if resp.CostCents != 1 {
		t.Errorf("CostCents = %d, want 1", resp.CostCents)
	}
}

func TestComplete_AssistantRoleMapped(t *testing.T) {
	var captured generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured) //nolint:errcheck
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"ok"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":1}}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	p := newTestProvider(t, srv.URL)
	p.Complete(context.Background(), &llm.Request{
		System:      "system prompt",
		UserMessage: "question",
		History: []llm.Message{
			{Role: llm.RoleUser, Content: "earlier question"},
			{Role: llm.RoleAssistant, Content: "earlier answer"},
		},
	})

	if captured.SystemInstruction == nil || captured.SystemInstruction.Parts[0].Text != "system prompt" {
		t.Error("expected system prompt in systemInstruction")
	}
	if len(captured.Contents) != 3 {
		t.Fatalf("len(contents) = %d, want 3", len(captured.Contents))
	}
	if captured.Contents[1].Role != "model" {
		t.Errorf("contents[1].role = %q, want model for assistant turns", captured.Contents[1].Role)
	}
}

func TestComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"status":"RESOURCE_EXHAUSTED","message":"quota exceeded"}}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	p := newTestProvider(t, srv.URL)
	resp := p.Complete(context.Background(), &llm.Request{UserMessage: "hi"})

	if resp.Success {
		t.Fatal("expected failure response")
	}
	if !strings.Contains(resp.ErrorMessage, "quota exceeded") {
		t.Errorf("ErrorMessage = %q, want vendor message included", resp.ErrorMessage)
	}
}

func TestComplete_NoKey(t *testing.T) {
	p := New(DefaultConfig(), "", zap.NewNop())

	if p.Available() {
		t.Error("Available() = true without api key")
	}

	resp := p.Complete(context.Background(), &llm.Request{UserMessage: "hi"})
	if resp.Success {
		t.Fatal("expected failure response without api key")
	}
}

func TestContract(t *testing.T) {
	srv := mockGemini(t)
	llmtest.TestProviderContract(t, func() llm.Provider {
		return newTestProvider(t, srv.URL)
	})
}
